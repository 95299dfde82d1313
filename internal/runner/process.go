package runner

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Process is a handle on a running child process. Signals are delivered to
// the child's whole process group where the platform supports it, so
// helpers spawned by the tool go down with it.
type Process struct {
	proc *os.Process
	done chan struct{}

	exited      atomic.Bool
	termOnce    sync.Once
	terminating atomic.Bool
}

func newProcess(p *os.Process) *Process {
	return &Process{
		proc: p,
		done: make(chan struct{}),
	}
}

// Pid returns the process ID.
func (p *Process) Pid() int {
	return p.proc.Pid
}

// Signal sends sig to the process group. It returns os.ErrProcessDone once
// the process has exited.
func (p *Process) Signal(sig syscall.Signal) error {
	if p.Exited() {
		return os.ErrProcessDone
	}
	return signalGroup(p.proc, sig)
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	return p.exited.Load()
}

// Done returns a channel closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Terminate sends SIGTERM and, if the process is still alive after grace,
// SIGKILL. It returns immediately; only the first call has any effect.
func (p *Process) Terminate(grace time.Duration) {
	p.termOnce.Do(func() {
		p.terminating.Store(true)
		_ = p.Signal(syscall.SIGTERM)

		go func() {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-p.done:
			case <-timer.C:
				p.Kill()
			}
		}()
	})
}

// Kill sends SIGKILL to the process group.
func (p *Process) Kill() {
	p.terminating.Store(true)
	_ = p.Signal(syscall.SIGKILL)
}

func (p *Process) terminated() bool {
	return p.terminating.Load()
}

func (p *Process) markExited() {
	if p.exited.CompareAndSwap(false, true) {
		close(p.done)
	}
}
