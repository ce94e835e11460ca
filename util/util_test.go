package util

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
)

func TestConvertError(t *testing.T) {
	cases := []struct {
		err      error
		expected models.AmpFuzzError
	}{
		{nil, models.Success},
		{errors.Wrap(models.ErrMalformedArtifact, "trace"), models.MalformedArtifact},
		{errors.WithMessage(models.ErrNotReady, "ntpd"), models.NotReady},
		{models.ErrNoTrace, models.NoTrace},
		{errors.Wrapf(models.ErrDegenerateAmp, "path %s", "1f"), models.DegenerateAmp},
		{errors.Wrap(&net.OpError{Op: "read", Err: errors.New("refused")}, "probe"), models.NetworkError},
		{errors.New("boom"), models.UnknownError},
	}
	for _, c := range cases {
		if got := ConvertError(c.err); got != c.expected {
			t.Errorf("ConvertError(%v): expected %s, got %s", c.err, c.expected, got)
		}
	}
}

func TestFindDirsWithFile(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"run1", "group/run2", "group/empty"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range []string{"run1", "group/run2"} {
		if err := os.WriteFile(filepath.Join(root, d, "fuzz.cfg"), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	dirs, err := FindDirsWithFile(root, "fuzz.cfg")
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 2 {
		t.Fatalf("Expected 2 run directories, got %v", dirs)
	}
	if !DirectoryExists(dirs[0]) || DirectoryExists(filepath.Join(root, "nope")) {
		t.Errorf("DirectoryExists misreports")
	}
	if !FileExists(filepath.Join(dirs[0], "fuzz.cfg")) || FileExists(dirs[0]) {
		t.Errorf("FileExists misreports")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	if _, _, err := NewLogger("loud", ""); err == nil {
		t.Errorf("Expected error for unknown level")
	}
	logFile := filepath.Join(t.TempDir(), "ampdedup.log")
	logger, closer, err := NewLogger("debug", logFile)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello", "k", 1)
	closer.Close()

	data, err := os.ReadFile(logFile)
	if err != nil || len(data) == 0 {
		t.Errorf("Expected log output in file, got %q, %v", data, err)
	}
}
