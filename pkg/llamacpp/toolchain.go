// Package llamacpp drives the llama.cpp conversion and quantization tools.
package llamacpp

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/tool"
)

const (
	// DefaultConverter is the conversion script shipped with llama.cpp.
	DefaultConverter = "python3 llama.cpp/convert_hf_to_gguf.py"
	// DefaultQuantizer is the quantization binary built from llama.cpp.
	DefaultQuantizer = "llama.cpp/llama-quantize"
)

// CommandLine is an executable plus its leading arguments.
type CommandLine struct {
	Path string
	Args []string
}

// ParseCommandLine parses a configured tool command line.
func ParseCommandLine(line string) (CommandLine, error) {
	path, args, err := tool.ParseCommandLine(line)
	if err != nil {
		return CommandLine{}, err
	}
	return CommandLine{Path: path, Args: args}, nil
}

func (c CommandLine) command(args ...string) tool.Command {
	all := make([]string, 0, len(c.Args)+len(args))
	all = append(all, c.Args...)
	all = append(all, args...)
	return tool.Command{Path: c.Path, Args: all}
}

// Artifact is a GGUF file produced by one of the tools.
type Artifact struct {
	Path string
	Size int64
	// Metadata is read best-effort; it is zero when the header is unreadable.
	Metadata Metadata
}

// Toolchain runs the converter and the quantizer.
type Toolchain struct {
	Converter CommandLine
	Quantizer CommandLine
	// ConverterArgs are appended after the converter's fixed arguments.
	ConverterArgs []string
	Runner        tool.Runner
	Log           logging.Logger
}

// Convert turns the bundle in bundleDir into a single full-precision GGUF
// file at outFile:
//
//	<converter> <bundleDir> --outfile <outFile> [ConverterArgs...]
func (t *Toolchain) Convert(ctx context.Context, bundleDir, outFile string) (*Artifact, error) {
	args := append([]string{bundleDir, "--outfile", outFile}, t.ConverterArgs...)
	return t.run(ctx, t.Converter.command(args...), outFile)
}

// Quantize reduces the precision of inFile into outFile using scheme:
//
//	<quantizer> <inFile> <outFile> <scheme>
func (t *Toolchain) Quantize(ctx context.Context, inFile, outFile, scheme string) (*Artifact, error) {
	return t.run(ctx, t.Quantizer.command(inFile, outFile, scheme), outFile)
}

func (t *Toolchain) run(ctx context.Context, cmd tool.Command, outFile string) (*Artifact, error) {
	out, err := t.Runner.Invoke(ctx, cmd)
	if err != nil {
		return nil, err
	}

	fi, statErr := os.Stat(outFile)
	if statErr != nil || fi.Size() == 0 || !fi.Mode().IsRegular() {
		cause := statErr
		if cause == nil {
			cause = fmt.Errorf("%s is empty", outFile)
		}
		return nil, &tool.ToolError{
			Kind:    tool.MissingOutput,
			Command: cmd.String(),
			Stdout:  out.Stdout,
			Stderr:  out.Stderr,
			Err:     cause,
		}
	}

	artifact := &Artifact{Path: outFile, Size: fi.Size()}
	if md, err := Inspect(outFile); err != nil {
		t.Log.WithError(err).Debug("Could not read GGUF header")
	} else {
		artifact.Metadata = md
	}
	t.Log.WithFields(logrus.Fields{
		"file":         outFile,
		"size":         units.HumanSize(float64(fi.Size())),
		"architecture": artifact.Metadata.Architecture,
		"file_type":    artifact.Metadata.FileType,
	}).Info("GGUF file written")
	return artifact, nil
}
