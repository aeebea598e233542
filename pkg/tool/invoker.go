// Package tool runs external command-line tools and captures what they print.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/sandbox"
	"github.com/docker/model-converter/pkg/tailbuffer"
)

// stderrTailSize is how much of the diagnostic stream is kept for error
// messages.
const stderrTailSize = 4 * 1024

// Command describes one tool invocation.
type Command struct {
	// Path is the executable. It is resolved through PATH when it contains
	// no separator.
	Path string
	Args []string
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env entries are added to the inherited environment.
	Env []string
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'\\$") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Output is the result of a successful invocation.
type Output struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner runs a command to completion. It is implemented by *Invoker and can
// be faked in tests.
type Runner interface {
	Invoke(ctx context.Context, cmd Command) (*Output, error)
}

// Invoker runs commands as child processes.
type Invoker struct {
	Log logging.Logger
	// GracePeriod bounds how long an interrupted tool may take to exit.
	GracePeriod time.Duration
}

// NewInvoker creates an Invoker that streams tool output into log at debug
// level.
func NewInvoker(log logging.Logger) *Invoker {
	return &Invoker{Log: log}
}

// Invoke runs cmd and waits for it to finish. Both output streams are
// captured in full. Exit code zero is success; anything else yields a
// *ToolError. Tools are never retried.
func (i *Invoker) Invoke(ctx context.Context, cmd Command) (*Output, error) {
	log := i.Log.WithFields(logrus.Fields{
		"tool":    filepath.Base(cmd.Path),
		"command": logging.SanitizeForLog(cmd.String()),
	})

	var stdout, stderr bytes.Buffer
	tail := tailbuffer.New(stderrTailSize)
	logStdout := log.WriterLevel(logrus.DebugLevel)
	logStderr := log.WriterLevel(logrus.DebugLevel)
	defer logStdout.Close()
	defer logStderr.Close()

	log.Info("Running tool")
	start := time.Now()
	proc, err := sandbox.Create(ctx, sandbox.Config{
		Dir:         cmd.Dir,
		Env:         cmd.Env,
		GracePeriod: i.GracePeriod,
	}, func(c *exec.Cmd) {
		c.Stdout = io.MultiWriter(&stdout, logStdout)
		c.Stderr = io.MultiWriter(&stderr, tail, logStderr)
	}, cmd.Path, cmd.Args...)
	if err != nil {
		return nil, &ToolError{
			Kind:     SpawnFailed,
			Command:  cmd.String(),
			ExitCode: -1,
			Err:      err,
		}
	}
	defer proc.Close()
	log.WithField("pid", proc.Command().Process.Pid).Debug("Tool started")

	waitErr := proc.Wait()
	elapsed := time.Since(start)
	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if waitErr == nil && ctx.Err() == nil {
		log.WithField("duration", elapsed.Round(time.Millisecond)).Info("Tool finished")
		return out, nil
	}

	toolErr := &ToolError{
		Kind:       NonZeroExit,
		Command:    cmd.String(),
		ExitCode:   -1,
		Stdout:     out.Stdout,
		Stderr:     out.Stderr,
		StderrTail: tail.String(),
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	switch {
	case ctx.Err() != nil:
		toolErr.Err = ctx.Err()
	case exitErr == nil:
		toolErr.Err = waitErr
	}
	log.WithFields(logrus.Fields{
		"exit_code": toolErr.ExitCode,
		"duration":  elapsed.Round(time.Millisecond),
	}).Warn("Tool failed")
	return nil, toolErr
}

// ParseCommandLine splits a configured command line such as
// "python3 /opt/llama.cpp/convert_hf_to_gguf.py" into an executable and its
// leading arguments. Shell quoting is honoured; variable expansion is not.
func ParseCommandLine(line string) (string, []string, error) {
	parser := shellwords.NewParser()
	words, err := parser.Parse(line)
	if err != nil {
		return "", nil, fmt.Errorf("parse command line %q: %w", line, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty command line")
	}
	return words[0], words[1:], nil
}
