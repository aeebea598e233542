package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/go-units"
	"github.com/elastic/go-sysinfo"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/config"
	"github.com/docker/model-converter/pkg/llamacpp"
	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/metrics"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/modelcard"
	"github.com/docker/model-converter/pkg/pipeline"
	"github.com/docker/model-converter/pkg/publish"
	publishdir "github.com/docker/model-converter/pkg/publish/dir"
	"github.com/docker/model-converter/pkg/publish/oci"
	"github.com/docker/model-converter/pkg/publish/s3"
	"github.com/docker/model-converter/pkg/skiplist"
	"github.com/docker/model-converter/pkg/source"
	sourcedir "github.com/docker/model-converter/pkg/source/dir"
	"github.com/docker/model-converter/pkg/source/huggingface"
	"github.com/docker/model-converter/pkg/tool"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.LookupEnv, os.Stderr)
	cancel()
	os.Exit(code)
}

// run performs one conversion configured from the environment and returns
// the process exit code.
func run(ctx context.Context, lookup func(string) (string, bool), stderr io.Writer) int {
	cfg, err := config.LoadFromEnv(lookup)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return pipeline.ExitConfigError
	}

	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "Cannot open log file: %v\n", err)
			return pipeline.ExitConfigError
		}
		defer f.Close()
		opts.File = f
	}
	log, err := logging.New(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log configuration: %v\n", err)
		return pipeline.ExitConfigError
	}

	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return pipeline.ExitConfigError
	}
	id, err := cfg.ID()
	if err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return pipeline.ExitConfigError
	}

	logHostMemory(log)

	p, err := newPipeline(ctx, cfg, id, log)
	if err != nil {
		log.Errorf("Unable to initialize pipeline: %v", err)
		return pipeline.ExitConfigError
	}

	outcome, err := p.Run(ctx, id)
	code := outcome.ExitCode()
	if err != nil {
		log.Errorf("Run aborted: %v", err)
		code = pipeline.ExitConfigError
		p.Metrics.SetOutcome("Aborted", code)
	}
	if err := p.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warnf("Could not write metrics file: %v", err)
	}
	return code
}

func newPipeline(ctx context.Context, cfg *config.Config, id model.ID, log *logrus.Logger) (*pipeline.Pipeline, error) {
	src, sourceURL, err := newSource(cfg, log.WithField("component", "source"))
	if err != nil {
		return nil, err
	}
	dest, err := newDestination(ctx, cfg, log.WithField("component", "destination"))
	if err != nil {
		return nil, err
	}
	toolchain, err := newToolchain(cfg, log.WithField("component", "llama.cpp"))
	if err != nil {
		return nil, err
	}
	publishOpts, err := cfg.PublishOptions(id)
	if err != nil {
		return nil, err
	}
	publishOpts.SourceURL = sourceURL(id)

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder(id.String())
	}

	return &pipeline.Pipeline{
		Namespace:   cfg.Destination.Namespace,
		Scheme:      cfg.Scheme,
		WorkRoot:    cfg.WorkDir,
		KeepWorkDir: cfg.KeepWorkDir,
		Publish:     publishOpts,
		SkipList:    skiplist.Open(cfg.SkipListPath),
		Source:      src,
		Toolchain:   toolchain,
		Metadata: &modelcard.Fetcher{
			Source: src,
			Log:    log.WithField("component", "modelcard"),
		},
		Cards:       &modelcard.Builder{SourceURL: sourceURL},
		Destination: dest,
		Log:         log,
		Metrics:     recorder,
	}, nil
}

func newSource(cfg *config.Config, log logging.Logger) (source.Source, func(model.ID) string, error) {
	switch cfg.Source.Kind {
	case config.SourceDir:
		s := sourcedir.New(cfg.Source.Endpoint, log)
		return s, s.ModelURL, nil
	case config.SourceHuggingFace:
		c := huggingface.NewClient(cfg.Source.Endpoint, cfg.Source.Token, log)
		if cfg.Source.Revision != "" {
			c.Revision = cfg.Source.Revision
		}
		if cfg.Source.Concurrency > 0 {
			c.Concurrency = cfg.Source.Concurrency
		}
		c.Ignore = cfg.Source.Ignore
		return c, c.ModelURL, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func newDestination(ctx context.Context, cfg *config.Config, log logging.Logger) (publish.Destination, error) {
	d := cfg.Destination
	switch d.Kind {
	case config.DestinationDir:
		return publishdir.New(d.Root, log), nil
	case config.DestinationS3:
		bucket, prefix := s3.ParsePath(d.Root)
		return s3.New(ctx, s3.Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       d.Region,
			Endpoint:     d.Endpoint,
			UsePathStyle: d.PathStyle,
		}, log)
	case config.DestinationOCI:
		return oci.New(oci.Config{
			Registry: d.Root,
			Username: d.Username,
			Password: d.Token,
			Insecure: d.Insecure,
		}, log)
	default:
		return nil, fmt.Errorf("unknown destination kind %q", d.Kind)
	}
}

func newToolchain(cfg *config.Config, log logging.Logger) (*llamacpp.Toolchain, error) {
	converter, err := llamacpp.ParseCommandLine(cfg.Tools.Converter)
	if err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}
	quantizer, err := llamacpp.ParseCommandLine(cfg.Tools.Quantizer)
	if err != nil {
		return nil, fmt.Errorf("quantizer: %w", err)
	}
	extra, err := cfg.ConverterArgs()
	if err != nil {
		return nil, fmt.Errorf("converter args: %w", err)
	}
	return &llamacpp.Toolchain{
		Converter:     converter,
		Quantizer:     quantizer,
		ConverterArgs: extra,
		Runner:        tool.NewInvoker(log),
		Log:           log,
	}, nil
}

// logHostMemory reports the host's memory; conversion of large models needs
// several times the weight size in RAM.
func logHostMemory(log logging.Logger) {
	host, err := sysinfo.Host()
	if err != nil {
		log.Warnf("Could not read host info: %s", err)
		return
	}
	mem, err := host.Memory()
	if err != nil {
		log.Warnf("Could not read host memory: %s", err)
		return
	}
	log.WithFields(logrus.Fields{
		"total":     units.BytesSize(float64(mem.Total)),
		"available": units.BytesSize(float64(mem.Available)),
	}).Info("Host memory")
}
