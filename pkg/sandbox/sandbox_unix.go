//go:build unix

package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureGroup places the process in a new process group and makes
// cancellation interrupt the whole group.
func configureGroup(command *exec.Cmd) {
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.Cancel = func() error {
		if command.Process == nil {
			return nil
		}
		err := unix.Kill(-command.Process.Pid, unix.SIGINT)
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}

func start(command *exec.Cmd) (func() error, error) {
	return nil, command.Start()
}
