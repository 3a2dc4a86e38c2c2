//go:build !windows

package process

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate sends SIGTERM to the child's process group.
func terminate(pid int) error {
	return unix.Kill(-pid, unix.SIGTERM)
}

func kill(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
