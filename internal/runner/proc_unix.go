//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the tool in its own process group so a cancelled
// build terminates everything it spawned (wineserver children included).
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
}
