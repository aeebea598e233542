// Package config holds the settings of one conversion run. Values come from
// an optional YAML file overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docker/model-converter/pkg/llamacpp"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/publish"
	"github.com/docker/model-converter/pkg/source/huggingface"
	"github.com/docker/model-converter/pkg/tool"
)

const (
	SourceHuggingFace = "huggingface"
	SourceDir         = "dir"

	DestinationDir = "dir"
	DestinationS3  = "s3"
	DestinationOCI = "oci"

	DefaultScheme       = "Q8_0"
	DefaultSkipListPath = "skiplist.txt"
	DefaultDestRoot     = "./published"
	DefaultLicense      = "other"
)

// Config is the complete configuration of a run.
type Config struct {
	RepoID       string            `yaml:"repo_id"`
	Scheme       string            `yaml:"quant_scheme"`
	SkipListPath string            `yaml:"skiplist_path"`
	WorkDir      string            `yaml:"work_dir"`
	KeepWorkDir  bool              `yaml:"keep_work_dir"`
	MetricsFile  string            `yaml:"metrics_file"`
	Source       SourceConfig      `yaml:"source"`
	Destination  DestinationConfig `yaml:"destination"`
	Tools        ToolsConfig       `yaml:"tools"`
	Log          LogConfig         `yaml:"log"`
}

// SourceConfig selects and configures the source registry.
type SourceConfig struct {
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Revision string `yaml:"revision"`
	// Concurrency bounds parallel file downloads.
	Concurrency int `yaml:"concurrency"`
	// Ignore holds glob patterns of repository files not to download.
	Ignore []string `yaml:"ignore"`
}

// DestinationConfig selects and configures the destination registry.
type DestinationConfig struct {
	Kind      string `yaml:"kind"`
	Namespace string `yaml:"namespace"`
	// Root is the directory for "dir", "bucket[/prefix]" for "s3" and the
	// registry host for "oci".
	Root     string `yaml:"root"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	// PathStyle forces path-style S3 addressing.
	PathStyle bool `yaml:"path_style"`
	// Insecure allows plain HTTP registries.
	Insecure      bool   `yaml:"insecure"`
	Visibility    string `yaml:"visibility"`
	License       string `yaml:"license"`
	DisplayName   string `yaml:"display_name"`
	CommitMessage string `yaml:"commit_message"`
}

// ToolsConfig holds the external tool command lines.
type ToolsConfig struct {
	Converter string `yaml:"converter"`
	// ConverterArgs are extra arguments appended to every conversion, in
	// shell syntax.
	ConverterArgs string `yaml:"converter_args"`
	Quantizer     string `yaml:"quantizer"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Scheme:       DefaultScheme,
		SkipListPath: DefaultSkipListPath,
		Source: SourceConfig{
			Kind:        SourceHuggingFace,
			Endpoint:    huggingface.DefaultEndpoint,
			Revision:    huggingface.DefaultRevision,
			Concurrency: huggingface.DefaultConcurrency,
		},
		Destination: DestinationConfig{
			Kind:       DestinationDir,
			Root:       DefaultDestRoot,
			Visibility: string(publish.Public),
			License:    DefaultLicense,
		},
		Tools: ToolsConfig{
			Converter: llamacpp.DefaultConverter,
			Quantizer: llamacpp.DefaultQuantizer,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration and canonicalises the quantization
// scheme. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.RepoID == "" {
		errs = append(errs, errors.New("REPO_ID is required"))
	} else if _, err := model.Parse(c.RepoID); err != nil {
		errs = append(errs, err)
	}

	if scheme, err := llamacpp.ValidateScheme(c.Scheme); err != nil {
		errs = append(errs, err)
	} else {
		c.Scheme = scheme
	}

	switch c.Source.Kind {
	case SourceHuggingFace, SourceDir:
	default:
		errs = append(errs, fmt.Errorf("unknown source kind %q (want %q or %q)", c.Source.Kind, SourceHuggingFace, SourceDir))
	}
	if c.Source.Kind == SourceDir && c.Source.Endpoint == "" {
		errs = append(errs, errors.New("source endpoint (mirror root) is required for the dir source"))
	}

	d := c.Destination
	if d.Namespace == "" {
		errs = append(errs, errors.New("DEST_NAMESPACE is required"))
	} else if strings.ContainsAny(d.Namespace, "/ \t") {
		errs = append(errs, fmt.Errorf("invalid destination namespace %q", d.Namespace))
	}
	switch d.Kind {
	case DestinationDir, DestinationS3, DestinationOCI:
	default:
		errs = append(errs, fmt.Errorf("unknown destination kind %q (want %q, %q or %q)", d.Kind, DestinationDir, DestinationS3, DestinationOCI))
	}
	if d.Root == "" {
		errs = append(errs, fmt.Errorf("destination root is required for the %s destination", d.Kind))
	}
	if _, err := publish.ParseVisibility(d.Visibility); err != nil {
		errs = append(errs, err)
	}

	if _, _, err := tool.ParseCommandLine(c.Tools.Converter); err != nil {
		errs = append(errs, fmt.Errorf("converter: %w", err))
	}
	if _, _, err := tool.ParseCommandLine(c.Tools.Quantizer); err != nil {
		errs = append(errs, fmt.Errorf("quantizer: %w", err))
	}
	if _, err := c.ConverterArgs(); err != nil {
		errs = append(errs, fmt.Errorf("converter args: %w", err))
	}

	return errors.Join(errs...)
}

// ID returns the parsed RepoID. Call Validate first.
func (c *Config) ID() (model.ID, error) {
	return model.Parse(c.RepoID)
}

// ConverterArgs splits Tools.ConverterArgs.
func (c *Config) ConverterArgs() ([]string, error) {
	if strings.TrimSpace(c.Tools.ConverterArgs) == "" {
		return nil, nil
	}
	path, args, err := tool.ParseCommandLine(c.Tools.ConverterArgs)
	if err != nil {
		return nil, err
	}
	return append([]string{path}, args...), nil
}

// PublishOptions returns the entry options for id.
func (c *Config) PublishOptions(id model.ID) (publish.Options, error) {
	visibility, err := publish.ParseVisibility(c.Destination.Visibility)
	if err != nil {
		return publish.Options{}, err
	}
	displayName := c.Destination.DisplayName
	if displayName == "" {
		displayName = model.DestinationName(id, c.Scheme)
	}
	commitMessage := c.Destination.CommitMessage
	if commitMessage == "" {
		commitMessage = fmt.Sprintf("Add %s GGUF conversion of %s", c.Scheme, id)
	}
	return publish.Options{
		Visibility:    visibility,
		License:       c.Destination.License,
		DisplayName:   displayName,
		CommitMessage: commitMessage,
		Description:   fmt.Sprintf("%s quantized GGUF conversion of %s", c.Scheme, id),
	}, nil
}
