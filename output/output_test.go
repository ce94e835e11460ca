package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lukjok/ampdedup/amp"
	"github.com/lukjok/ampdedup/stats"
)

func TestSaveAndLoadIndex(t *testing.T) {
	fs := NewFilesystem(filepath.Join(t.TempDir(), "dedup_results"))
	if records, err := fs.LoadIndex(); err != nil || records != nil {
		t.Fatalf("Expected empty index, got %v, %v", records, err)
	}

	a := amp.MustNew([]int{10}, []int{500})
	in := []ReplayRecord{
		{ContentID: "aa", File: "queue/id:000001", Amp: &a, Responses: 1, Trace: TraceFileName("aa"), Result: "ok"},
		{ContentID: "bb", File: "amps/amp_1.0_1f_bb", PathID: "1f", Result: "no_trace"},
	}
	if err := fs.SaveIndex(in); err != nil {
		t.Fatal(err)
	}
	out, err := fs.LoadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Amp == nil || !out[0].Amp.Equal(a) || out[1].Amp != nil {
		t.Errorf("Unexpected index %+v", out)
	}
	if out[0].Trace != "track_aa.json" {
		t.Errorf("Unexpected trace name %s", out[0].Trace)
	}
}

func TestSaveResults(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem(dir)
	if err := fs.SaveResults(nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ResultsFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("Expected an empty list, got %s", data)
	}
}

func TestSaveTrace(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem(dir)
	name, err := fs.SaveTrace("cc", []byte("[]"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("Expected trace file: %s", err)
	}
}

func TestRenderResults(t *testing.T) {
	n := 3
	l2 := stats.Factor(8.656)
	results := []stats.Result{
		{Dir: "/r/ntp_1", Package: "ntp", NMsgTypes: &n, MaxAmpL2: &l2},
		{Dir: "/r/dns_1", Package: "dns"},
	}
	var buf bytes.Buffer
	if err := RenderResults(&buf, results); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	for _, want := range []string{"ntp_1", "dns_1", "8.656", "Msg types"} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %q in report:\n%s", want, s)
		}
	}
}
