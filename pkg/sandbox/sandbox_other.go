//go:build !unix && !windows

package sandbox

import "os/exec"

// Elsewhere exec.CommandContext's default kill-on-cancel applies to the
// direct child only.
func configureGroup(*exec.Cmd) {}

func start(command *exec.Cmd) (func() error, error) {
	return nil, command.Start()
}
