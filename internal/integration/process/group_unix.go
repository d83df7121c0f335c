//go:build unix

package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// GroupAttr returns the SysProcAttr that places a child in its own
// process group, so a later KillGroup reaches the whole group — a
// shell pipeline or any other descendant a streamed command might
// spawn — rather than only the immediate child.
func GroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// KillGroup signals the process's entire group rather than just the
// immediate child.
func (p *Process) KillGroup(sig syscall.Signal) error {
	pid := p.PID()
	if pid <= 0 {
		return ErrProcessNotStarted
	}
	return unix.Kill(-pid, sig)
}
