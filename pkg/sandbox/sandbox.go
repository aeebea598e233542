// Package sandbox starts external tool processes so that cancellation reaches
// every child the tool spawns: a process group on unix, a job object on
// Windows.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Process encapsulates a single running tool process.
type Process interface {
	// Command returns the process handle.
	Command() *exec.Cmd
	// Wait waits for the process to exit.
	Wait() error
	// Close terminates the process tree if it's still running.
	Close() error
}

// Config controls how a process is started.
type Config struct {
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// GracePeriod is how long a cancelled process has to exit after the
	// interrupt before it is killed. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// DefaultGracePeriod is used when Config.GracePeriod is zero.
const DefaultGracePeriod = 10 * time.Second

type process struct {
	// cancel cancels the context associated with the process.
	cancel context.CancelFunc
	// command is the process handle.
	command *exec.Cmd
	// release frees platform resources holding the process tree. May be nil.
	release func() error
}

// Command implements Process.Command.
func (p *process) Command() *exec.Cmd {
	return p.command
}

// Wait implements Process.Wait.
func (p *process) Wait() error {
	return p.command.Wait()
}

// Close implements Process.Close.
func (p *process) Close() error {
	p.cancel()
	if p.release != nil {
		return p.release()
	}
	return nil
}

// Create starts name with arg under ctx. When ctx is cancelled the whole
// process group is interrupted, then killed after the grace period. The
// modifier callback (which may be nil) can configure the command, e.g. its
// output streams, before it is started.
func Create(ctx context.Context, cfg Config, modifier func(*exec.Cmd), name string, arg ...string) (Process, error) {
	// Create a subcontext we can use to regulate the process lifetime.
	ctx, cancel := context.WithCancel(ctx)

	command := exec.CommandContext(ctx, name, arg...)
	command.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		command.Env = append(command.Environ(), cfg.Env...)
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	command.WaitDelay = grace
	configureGroup(command)
	if modifier != nil {
		modifier(command)
	}

	release, err := start(command)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("unable to start process: %w", err)
	}
	return &process{
		cancel:  cancel,
		command: command,
		release: release,
	}, nil
}
