package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/lukjok/ampdedup/stats"
	"github.com/pterm/pterm"
)

func count(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}

func factor(f *stats.Factor) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(float64(*f), 'f', 3, 64)
}

// RenderResults writes the analysis results as a table.
func RenderResults(w io.Writer, results []stats.Result) error {
	data := pterm.TableData{
		{"Run", "Package", "Execs", "Inputs", "Paths", "Msg types", "Amp types", "Max L2", "Max L7"},
	}
	for _, r := range results {
		data = append(data, []string{
			filepath.Base(r.Dir),
			r.Package,
			count(r.NExecs),
			count(r.NInputs),
			count(r.NPaths),
			count(r.NMsgTypes),
			count(r.NAmpTypes),
			factor(r.MaxAmpL2),
			factor(r.MaxAmpL7),
		})
	}
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

// RenderReplays writes one line per replayed input.
func RenderReplays(w io.Writer, records []ReplayRecord) error {
	data := pterm.TableData{{"Input", "Path", "Responses", "Amp", "Result"}}
	for _, r := range records {
		a := "-"
		if r.Amp != nil {
			a = r.Amp.String()
		}
		data = append(data, []string{filepath.Base(r.File), r.PathID, strconv.Itoa(r.Responses), a, r.Result})
	}
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}
