package watcher

import (
	"io"
	"os/exec"
	"sync"
	"time"
)

// ProcessSpec describes one bounded execution of an external program.
type ProcessSpec struct {
	Command []string
	// Env entries (KEY=VALUE) are appended to the current environment.
	Env             []string
	Dir             string
	StartupTimeout  time.Duration
	ResponseTimeout time.Duration
	KillGrace       time.Duration
	Stdout          io.Writer
	Stderr          io.Writer
}

// Process is a running ProcessSpec.
type Process struct {
	spec     ProcessSpec
	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}
