// Package semaphore implements the readiness signal of a replayed target: a
// named FIFO the target writes one byte to once it listens on its socket.
package semaphore

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// EnvVar names the environment variable carrying the FIFO path to the target.
const EnvVar = "AMPFUZZ_LISTEN_FIFO"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Semaphore struct {
	path string
	f    *os.File
}

// Name derives a FIFO file name from an input file name.
func Name(inputFile string) string {
	return "listen_" + unsafeChars.ReplaceAllString(filepath.Base(inputFile), "_")
}

// New creates the FIFO dir/name and keeps it open so the target can signal
// before Wait is called.
func New(dir, name string) (*Semaphore, error) {
	p := filepath.Join(dir, name)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return nil, errors.Errorf("Failed to remove stale semaphore %s: %s", p, err)
	}
	if err := unix.Mkfifo(p, 0600); err != nil {
		return nil, errors.Errorf("Failed to create semaphore %s: %s", p, err)
	}
	// O_RDWR never blocks on a FIFO and keeps a writer attached.
	f, err := os.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		os.Remove(p)
		return nil, errors.Errorf("Failed to open semaphore %s: %s", p, err)
	}
	return &Semaphore{path: p, f: f}, nil
}

func (s *Semaphore) Path() string {
	return s.path
}

// Env returns the NAME=value entry handing the semaphore to a child process.
func (s *Semaphore) Env() string {
	return EnvVar + "=" + s.path
}

// Wait blocks until the target signals readiness or timeout elapses.
func (s *Semaphore) Wait(timeout time.Duration) error {
	if err := s.f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return errors.Errorf("Failed to arm semaphore deadline: %s", err)
	}
	buf := make([]byte, 1)
	if _, err := s.f.Read(buf); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return errors.Wrapf(models.ErrNotReady, "No readiness signal within %s", timeout)
		}
		return errors.Errorf("Failed to read semaphore: %s", err)
	}
	return nil
}

// Signal writes the readiness byte to the FIFO at path.
func Signal(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Errorf("Failed to open semaphore %s: %s", path, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte{1}); err != nil {
		return errors.Errorf("Failed to signal semaphore %s: %s", path, err)
	}
	return nil
}

// Close releases and removes the FIFO.
func (s *Semaphore) Close() error {
	s.f.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Errorf("Failed to remove semaphore %s: %s", s.path, err)
	}
	return nil
}
