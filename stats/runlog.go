package stats

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseRunLog reads the header and the final row of a fuzzer CSV log. A
// truncated final row falls back to the row before it.
func ParseRunLog(path string) (RunSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunSummary{}, errors.Errorf("Failed to open run log: %s", err)
	}
	defer f.Close()

	var (
		header, prev, last string
		rows               int
	)
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if header == "" {
				header = line
			} else {
				prev, last = last, line
				rows++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return RunSummary{}, errors.Errorf("Failed to read run log: %s", err)
		}
	}
	if rows == 0 {
		return RunSummary{}, errors.Wrapf(models.ErrMalformedArtifact, "Run log %s has no rows", path)
	}

	s, err := parseRow(header, last)
	if err != nil && prev != "" {
		s, err = parseRow(header, prev)
	}
	if err != nil {
		return RunSummary{}, errors.Wrapf(models.ErrMalformedArtifact, "Run log %s: %s", path, err)
	}
	return s, nil
}

func parseRow(header, row string) (RunSummary, error) {
	var s RunSummary
	if !strings.HasSuffix(header, "\n") {
		header += "\n"
	}
	records, err := csv.NewReader(strings.NewReader(header + row)).ReadAll()
	if err != nil {
		return s, err
	}
	if len(records) != 2 {
		return s, errors.Errorf("expected one row, got %d", len(records)-1)
	}

	cols := make(map[string]string, len(records[0]))
	for i, name := range records[0] {
		cols[strings.TrimSpace(name)] = records[1][i]
	}

	counters := []struct {
		name string
		dst  *int
	}{
		{"execs", &s.Execs},
		{"inputs", &s.Inputs},
		{"amp_inputs", &s.AmpInputs},
		{"paths", &s.Paths},
		{"amp_paths", &s.AmpPaths},
	}
	for _, c := range counters {
		v, ok := cols[c.name]
		if !ok {
			return s, errors.Errorf("missing column %s", c.name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return s, errors.Errorf("invalid %s %q", c.name, v)
		}
		*c.dst = n
		delete(cols, c.name)
	}

	raw, ok := cols["amps"]
	if !ok {
		return s, errors.New("missing column amps")
	}
	if err := json.Unmarshal([]byte(raw), &s.Amps); err != nil {
		return s, errors.Errorf("invalid amps: %s", err)
	}
	delete(cols, "amps")
	s.Columns = cols
	return s, nil
}
