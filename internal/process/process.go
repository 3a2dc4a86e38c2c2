package process

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// killGrace bounds the wait for reaping after a hard kill.
const killGrace = 2 * time.Second

// Process is a started child. A single goroutine waits on it; everyone else
// observes the exit through Done.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	mu        sync.Mutex
	status    Status
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	done      chan struct{}
}

// Start launches spec. Output goes to the rotated files of spec.Log, or is
// discarded when none are configured.
func Start(spec Spec) (*Process, error) {
	cmd, err := spec.BuildCommand()
	if err != nil {
		return nil, err
	}
	outW, errW, err := spec.Log.ProcessWriters(spec.Name)
	if err != nil {
		return nil, err
	}
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	r := &Process{spec: spec, cmd: cmd, outCloser: outW, errCloser: errW, done: make(chan struct{})}
	if err := cmd.Start(); err != nil {
		r.closeWriters()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	r.status = Status{
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	go r.wait()
	return r, nil
}

func (r *Process) wait() {
	err := r.cmd.Wait()
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	r.status.ExitErr = err
	r.mu.Unlock()
	r.closeWriters()
	close(r.done)
}

func (r *Process) PID() int { return r.cmd.Process.Pid }

// Done is closed once the child exited and was reaped.
func (r *Process) Done() <-chan struct{} { return r.done }

// Exited reports whether the child is gone, without blocking.
func (r *Process) Exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	s := r.status
	r.mu.Unlock()
	return s
}

// Stop asks the child to exit and kills it if it is still alive after wait.
// It returns the child's exit error, if any.
func (r *Process) Stop(wait time.Duration) error {
	if r.Exited() {
		return r.Snapshot().ExitErr
	}
	if err := terminate(r.PID()); err != nil || wait <= 0 {
		return r.Kill()
	}
	select {
	case <-r.done:
		return r.Snapshot().ExitErr
	case <-time.After(wait):
		return r.Kill()
	}
}

// Kill terminates the child immediately and waits briefly for it to be
// reaped.
func (r *Process) Kill() error {
	if r.Exited() {
		return r.Snapshot().ExitErr
	}
	if err := kill(r.cmd.Process); err != nil && !r.Exited() {
		return err
	}
	select {
	case <-r.done:
	case <-time.After(killGrace):
	}
	return r.Snapshot().ExitErr
}

func (r *Process) closeWriters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
}
