package sandbox

import (
	"os/exec"

	"github.com/kolesnikovae/go-winjob"
)

// Cancellation kills the direct child; the job object takes the rest of the
// tree down when the process is closed.
func configureGroup(*exec.Cmd) {}

// start runs command inside a job object that kills every process in it when
// the job is closed.
func start(command *exec.Cmd) (func() error, error) {
	job, err := winjob.Start(command, winjob.WithKillOnJobClose())
	if err != nil {
		return nil, err
	}
	return job.Close, nil
}
