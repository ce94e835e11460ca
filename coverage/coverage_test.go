package coverage

import (
	"os"
	"path/filepath"
	"testing"
)

func mapOf(targets []string, edges []Edge, doms map[string]interface{}) *Map {
	m := New()
	for _, t := range targets {
		m.Targets[StringTarget(t)] = struct{}{}
	}
	for _, e := range edges {
		m.Edges[e] = struct{}{}
	}
	for k, v := range doms {
		m.CallsiteDominators[k] = v
	}
	return m
}

func TestMergeScenario(t *testing.T) {
	a := mapOf([]string{"f1"}, []Edge{{1, 2}}, nil)
	b := mapOf([]string{"f2"}, []Edge{{1, 2}, {2, 3}}, nil)

	m := Merge(a, b)
	targets := m.SortedTargets()
	if len(targets) != 2 || targets[0] != StringTarget("f1") || targets[1] != StringTarget("f2") {
		t.Errorf("Unexpected targets %v", targets)
	}
	edges := m.SortedEdges()
	if len(edges) != 2 || edges[0] != (Edge{1, 2}) || edges[1] != (Edge{2, 3}) {
		t.Errorf("Unexpected edges %v", edges)
	}
}

func TestMergeLaws(t *testing.T) {
	a := mapOf([]string{"f1", "f3"}, []Edge{{1, 2}}, map[string]interface{}{"10": "d1"})
	b := mapOf([]string{"f2"}, []Edge{{1, 2}, {2, 3}}, map[string]interface{}{"11": "d2"})
	c := mapOf([]string{"f3", "f4"}, []Edge{{5, 6}}, map[string]interface{}{"10": "d1", "12": "d3"})

	if !Merge(a, b).Equal(Merge(b, a)) {
		t.Errorf("Merge is not commutative")
	}
	if !Merge(Merge(a, b), c).Equal(Merge(a, Merge(b, c))) {
		t.Errorf("Merge is not associative")
	}
	if !Merge(a, a).Equal(a) {
		t.Errorf("Merge is not idempotent")
	}
	if !Merge(a).Equal(a) {
		t.Errorf("Merging a single map should copy it")
	}
}

func TestDominatorsLastWriterWins(t *testing.T) {
	a := mapOf(nil, nil, map[string]interface{}{"7": "old"})
	b := mapOf(nil, nil, map[string]interface{}{"7": "new"})
	if v := Merge(a, b).CallsiteDominators["7"]; v != "new" {
		t.Errorf("Expected later map to win, got %v", v)
	}
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "targets.json")
	extra := filepath.Join(dir, "worker1.json")

	if err := os.WriteFile(base, []byte(`{"targets": ["f1"], "edges": [[1, 2]], "callsite_dominators": {"5": [1, 2]}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(extra, []byte(`{"targets": ["f2", "f1"], "edges": [[2, 3], [1, 2]], "callsite_dominators": {}}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := MergeFiles(base, extra); err != nil {
		t.Fatalf("Merge failed: %s", err)
	}
	data, err := os.ReadFile(base)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"targets":["f1","f2"],"edges":[[1,2],[2,3]],"callsite_dominators":{"5":[1,2]}}`
	if string(data) != expected {
		t.Errorf("Unexpected merged file\n%s\nexpected\n%s", data, expected)
	}

	// Folding the same worker in again changes nothing.
	if _, err := MergeFiles(base, extra); err != nil {
		t.Fatal(err)
	}
	again, _ := os.ReadFile(base)
	if string(again) != expected {
		t.Errorf("Repeated merge changed the base file")
	}

	if _, err := MergeFiles(base, filepath.Join(dir, "missing.json")); err == nil {
		t.Errorf("Expected error for a missing extra file")
	}
}

func TestMergeFilesBlockIDTargets(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "targets.json")
	extra := filepath.Join(dir, "worker1.json")

	if err := os.WriteFile(base, []byte("{\n\"targets\": [3, 17],\n\"edges\": [[3, 17]],\n\"callsite_dominators\": {}}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(extra, []byte(`{"targets": [100, 3.0, 5], "edges": [], "callsite_dominators": {}}`), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := MergeFiles(base, extra)
	if err != nil {
		t.Fatalf("Merge failed: %s", err)
	}
	if len(m.Targets) != 4 {
		t.Errorf("Expected 4 distinct targets, got %v", m.SortedTargets())
	}
	data, err := os.ReadFile(base)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"targets":[3,5,17,100],"edges":[[3,17]],"callsite_dominators":{}}`
	if string(data) != expected {
		t.Errorf("Unexpected merged file\n%s\nexpected\n%s", data, expected)
	}
}

func TestNewTarget(t *testing.T) {
	cases := []struct {
		raw      string
		expected Target
	}{
		{`17`, "17"},
		{`17.0`, "17"},
		{`1e2`, "100"},
		{`2.5`, "2.5"},
		{`"f1"`, `"f1"`},
		{`null`, "null"},
	}
	for _, c := range cases {
		got, err := NewTarget([]byte(c.raw))
		if err != nil || got != c.expected {
			t.Errorf("NewTarget(%s): expected %s, got %s, %v", c.raw, c.expected, got, err)
		}
	}
	for _, raw := range []string{`[1, 2]`, `{"a": 1}`} {
		if _, err := NewTarget([]byte(raw)); err == nil {
			t.Errorf("Expected error for non-scalar target %s", raw)
		}
	}

	m := New()
	for _, tg := range []Target{`"b"`, "10", `"a"`, "9", "null"} {
		m.Targets[tg] = struct{}{}
	}
	sorted := m.SortedTargets()
	order := []Target{"null", "9", "10", `"a"`, `"b"`}
	for i := range order {
		if sorted[i] != order[i] {
			t.Errorf("Unexpected target order %v", sorted)
			break
		}
	}
}
