//go:build unix

package orchestrator

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the player's process group.
func terminate(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGTERM); err != nil {
		return p.Signal(unix.SIGTERM)
	}
	return nil
}

func kill(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
