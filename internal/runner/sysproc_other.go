//go:build !unix

package runner

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(*exec.Cmd) {}

// signalGroup signals p. Without process groups the only portable
// escalation is Kill, so any signal other than SIGKILL is attempted first and
// falls back to it.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	if err := p.Signal(sig); err != nil {
		return p.Kill()
	}
	return nil
}
