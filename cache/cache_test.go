package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type table struct {
	Paths map[string][]string `json:"paths"`
}

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "amps"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "amps", "amp_1"), []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSaveLoad(t *testing.T) {
	dir := setupDir(t)
	s, err := NewStore(dir, []string{"amps", "angora.log"}, Options{}, discard)
	if err != nil {
		t.Fatal(err)
	}

	var empty table
	if ok, err := s.Load(PathHashesFile, &empty); ok || err != nil {
		t.Fatalf("Expected cache miss, got %v, %v", ok, err)
	}

	in := table{Paths: map[string][]string{"c1": {"p1", "p2"}}}
	if err := s.Save(PathHashesFile, in); err != nil {
		t.Fatalf("Save failed: %s", err)
	}

	var out table
	ok, err := s.Load(PathHashesFile, &out)
	if !ok || err != nil {
		t.Fatalf("Expected cache hit, got %v, %v", ok, err)
	}
	if len(out.Paths["c1"]) != 2 || out.Paths["c1"][1] != "p2" {
		t.Errorf("Unexpected cached table %+v", out)
	}
}

func TestEpochDetectsGrowth(t *testing.T) {
	dir := setupDir(t)
	s, err := NewStore(dir, []string{"amps"}, Options{}, discard)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(PathAmpsFile, table{}); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "amps", "amp_2"), []byte("more"), 0644); err != nil {
		t.Fatal(err)
	}

	grown, err := NewStore(dir, []string{"amps"}, Options{}, discard)
	if err != nil {
		t.Fatal(err)
	}
	if grown.Epoch() == s.Epoch() {
		t.Fatalf("Epoch must change when the artifact directory grows")
	}
	var out table
	if ok, _ := grown.Load(PathAmpsFile, &out); ok {
		t.Errorf("Stale cache must not be trusted")
	}

	trusting, err := NewStore(dir, []string{"amps"}, Options{TrustStale: true}, discard)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := trusting.Load(PathAmpsFile, &out); !ok {
		t.Errorf("TrustStale should load the cache verbatim")
	}
}

func TestEpochStable(t *testing.T) {
	dir := setupDir(t)
	a, err := Epoch(dir, []string{"amps", "dedup_results"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Epoch(dir, []string{"dedup_results", "amps"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("Epoch must not depend on source order")
	}
}

func TestForceAndClear(t *testing.T) {
	dir := setupDir(t)
	s, err := NewStore(dir, []string{"amps"}, Options{}, discard)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(MaxAmpsFile, table{}); err != nil {
		t.Fatal(err)
	}

	forced, err := NewStore(dir, []string{"amps"}, Options{Force: true}, discard)
	if err != nil {
		t.Fatal(err)
	}
	var out table
	if ok, _ := forced.Load(MaxAmpsFile, &out); ok {
		t.Errorf("Force must ignore the cache")
	}

	if err := s.Clear(MaxAmpsFile, PathAmpsFile); err != nil {
		t.Fatalf("Clear failed: %s", err)
	}
	if _, err := os.Stat(filepath.Join(dir, MaxAmpsFile)); !os.IsNotExist(err) {
		t.Errorf("Cache file should be gone")
	}
}

func TestUnreadableCacheIsRecomputed(t *testing.T) {
	dir := setupDir(t)
	if err := os.WriteFile(filepath.Join(dir, PathAmpsFile), []byte(`{"execs": "12"}`), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(dir, []string{"amps"}, Options{TrustStale: true}, discard)
	if err != nil {
		t.Fatal(err)
	}
	var out table
	ok, err := s.Load(PathAmpsFile, &out)
	if ok || err != nil {
		t.Errorf("Legacy cache without envelope should be recomputed, got %v, %v", ok, err)
	}
}
