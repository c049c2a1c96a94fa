//go:build !unix

package orchestrator

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {}

// terminate has no graceful variant without unix signals.
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
