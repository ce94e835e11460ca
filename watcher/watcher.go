package watcher

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const defaultKillGrace = 5 * time.Second

// Start launches spec in its own process group.
func Start(spec ProcessSpec) (*Process, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("Empty command")
	}
	if spec.KillGrace <= 0 {
		spec.KillGrace = defaultKillGrace
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, errors.Errorf("Failed to start %s: %s", spec.Command[0], err)
	}

	p := &Process{spec: spec, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop terminates the process group and kills it when it is still alive after
// the kill grace period. It returns once the process has been reaped.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		if p.Exited() {
			return
		}
		pgid := -p.cmd.Process.Pid
		unix.Kill(pgid, unix.SIGTERM)

		t := time.NewTimer(p.spec.KillGrace)
		defer t.Stop()
		select {
		case <-p.done:
		case <-t.C:
			unix.Kill(pgid, unix.SIGKILL)
			<-p.done
		}
	})
	return nil
}

// ExitError returns the result of the process once it exited.
func (p *Process) ExitError() error {
	<-p.done
	return p.waitErr
}

// Run starts spec, hands the process to fn and stops it on every exit path,
// including cancellation of ctx.
func Run(ctx context.Context, spec ProcessSpec, fn func(context.Context, *Process) error) error {
	p, err := Start(spec)
	if err != nil {
		return err
	}
	defer p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.done:
		}
	}()

	return fn(ctx, p)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
