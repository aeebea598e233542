// Package pipeline drives one model through skip check, download,
// validation, conversion, quantization, model card generation and
// publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/bundle"
	"github.com/docker/model-converter/pkg/llamacpp"
	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/metrics"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/modelcard"
	"github.com/docker/model-converter/pkg/publish"
	"github.com/docker/model-converter/pkg/source"
	"github.com/docker/model-converter/pkg/tool"
)

// Stage names, as they appear in logs and metrics.
const (
	StageSkipCheck = "skip_check"
	StageAcquire   = "acquire"
	StageValidate  = "validate"
	StageConvert   = "convert"
	StageQuantize  = "quantize"
	StageDescribe  = "describe"
	StagePublish   = "publish"
)

// intermediateFileName is the full-precision GGUF written by the converter.
const intermediateFileName = "intermediate.gguf"

// SkipList is the store of models known not to convert.
type SkipList interface {
	Contains(id string) (bool, error)
	Record(id string) error
}

// Toolchain converts a bundle to GGUF and quantizes it.
type Toolchain interface {
	Convert(ctx context.Context, bundleDir, outFile string) (*llamacpp.Artifact, error)
	Quantize(ctx context.Context, inFile, outFile, scheme string) (*llamacpp.Artifact, error)
}

// MetadataFetcher returns the upstream metadata block of a model. It never
// fails.
type MetadataFetcher interface {
	FetchUpstreamMetadata(ctx context.Context, id model.ID) string
}

// Pipeline holds the collaborators of a run.
type Pipeline struct {
	// Namespace is the destination namespace.
	Namespace string
	// Scheme is the canonical quantization scheme.
	Scheme string
	// WorkRoot is where per-run work directories are created. Empty means
	// the system temporary directory.
	WorkRoot    string
	KeepWorkDir bool
	// Publish are the destination entry options.
	Publish publish.Options

	SkipList SkipList
	Source   source.Source
	// Validator checks the downloaded bundle. Nil means bundle.Validate.
	Validator   func(dir string) (*bundle.Bundle, error)
	Toolchain   Toolchain
	Metadata    MetadataFetcher
	Cards       *modelcard.Builder
	Destination publish.Destination

	Log     logging.Logger
	Metrics *metrics.Recorder
}

type run struct {
	*Pipeline
	id      model.ID
	destID  string
	log     *logrus.Entry
	workDir string
}

// Run converts and publishes id. Every stage failure is reported through
// the returned Outcome. The error is non-nil only when the skip-list cannot
// be read, in which case no Outcome is produced.
func (p *Pipeline) Run(ctx context.Context, id model.ID) (Outcome, error) {
	r := &run{
		Pipeline: p,
		id:       id,
		destID:   model.DestinationID(p.Namespace, id, p.Scheme),
		log: p.Log.WithFields(logrus.Fields{
			"model":  logging.SanitizeForLog(id.String()),
			"run_id": uuid.NewString(),
		}),
	}
	r.log.WithFields(logrus.Fields{
		"destination": r.destID,
		"scheme":      p.Scheme,
	}).Info("Starting conversion")

	var skipped bool
	err := r.stage(StageSkipCheck, func(*logrus.Entry) error {
		var err error
		skipped, err = p.SkipList.Contains(id.String())
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("check skip-list: %w", err)
	}
	if skipped {
		r.log.Info("Model is on the skip-list, nothing to do")
		return r.finish(Outcome{Status: SkippedKnownUnsupported}), nil
	}

	outcome := r.convertAndPublish(ctx)
	r.cleanup(ctx)
	return r.finish(outcome), nil
}

func (r *run) convertAndPublish(ctx context.Context) Outcome {
	fail := func(status Status, err error) Outcome {
		return Outcome{Status: status, DestinationID: r.destID, Err: err}
	}

	var bundleDir string
	err := r.stage(StageAcquire, func(log *logrus.Entry) error {
		dir, err := os.MkdirTemp(r.WorkRoot, "convert-"+r.id.Name()+"-*")
		if err != nil {
			return fmt.Errorf("create work directory: %w", err)
		}
		r.workDir = dir
		log.WithField("work_dir", dir).Debug("Created work directory")
		bundleDir, err = r.Source.Download(ctx, r.id, filepath.Join(dir, "bundle"))
		return err
	})
	if err != nil {
		return fail(FailedValidation, err)
	}

	err = r.stage(StageValidate, func(log *logrus.Entry) error {
		validate := r.Validator
		if validate == nil {
			validate = bundle.Validate
		}
		b, err := validate(bundleDir)
		if err != nil {
			return err
		}
		fields := logrus.Fields{"weight_files": len(b.WeightFiles)}
		if size, err := b.Size(); err == nil {
			fields["weights_size"] = units.HumanSize(float64(size))
		}
		log.WithFields(fields).Info("Bundle is valid")
		return nil
	})
	if err != nil {
		return fail(FailedValidation, err)
	}

	var intermediate *llamacpp.Artifact
	err = r.stage(StageConvert, func(*logrus.Entry) error {
		var err error
		intermediate, err = r.Toolchain.Convert(ctx, bundleDir, filepath.Join(r.workDir, intermediateFileName))
		return err
	})
	if err != nil {
		r.recordUnsupported(ctx, err)
		return fail(FailedConversion, err)
	}
	if err := os.RemoveAll(bundleDir); err != nil {
		r.log.WithError(err).Warn("Could not remove downloaded bundle")
	}

	var artifact *llamacpp.Artifact
	err = r.stage(StageQuantize, func(*logrus.Entry) error {
		var err error
		out := filepath.Join(r.workDir, model.ArtifactFileName(r.id, r.Scheme))
		artifact, err = r.Toolchain.Quantize(ctx, intermediate.Path, out, r.Scheme)
		return err
	})
	if err != nil {
		return fail(FailedQuantization, err)
	}
	r.Metrics.SetArtifactSize(artifact.Size)
	if err := os.Remove(intermediate.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.WithError(err).Warn("Could not remove intermediate GGUF file")
	}

	var card modelcard.Document
	_ = r.stage(StageDescribe, func(*logrus.Entry) error {
		card = r.describe(ctx)
		return nil
	})

	err = r.stage(StagePublish, func(log *logrus.Entry) error {
		return r.publish(ctx, log, artifact, card)
	})
	if err != nil {
		return fail(FailedPublish, err)
	}
	return Outcome{Status: Succeeded, DestinationID: r.destID}
}

func (r *run) describe(ctx context.Context) modelcard.Document {
	var upstream string
	if r.Metadata != nil {
		upstream = r.Metadata.FetchUpstreamMetadata(ctx, r.id)
	}
	var b modelcard.Builder
	if r.Cards != nil {
		b = *r.Cards
	}
	b.Scheme = r.Scheme
	b.Namespace = r.Namespace
	return b.Build(r.id, upstream)
}

// publish creates the entry, then uploads the artifact and the model card
// as two separate writes. A failed card upload does not undo the artifact.
func (r *run) publish(ctx context.Context, log *logrus.Entry, artifact *llamacpp.Artifact, card modelcard.Document) error {
	if err := r.Destination.EnsureEntry(ctx, r.destID, r.Publish); err != nil {
		return err
	}

	artifactName := filepath.Base(artifact.Path)
	if err := r.Destination.UploadFile(ctx, r.destID, artifact.Path, artifactName, r.Publish.CommitMessage); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file": artifactName,
		"size": units.HumanSize(float64(artifact.Size)),
	}).Info("Uploaded artifact")

	cardPath := filepath.Join(r.workDir, modelcard.ReadmeFileName)
	if err := os.WriteFile(cardPath, card.Bytes(), 0o644); err != nil {
		return publish.NewError(r.destID, "write model card", err)
	}
	if err := r.Destination.UploadFile(ctx, r.destID, cardPath, modelcard.ReadmeFileName, r.Publish.CommitMessage); err != nil {
		log.Warn("Artifact was uploaded but the model card was not; the entry is incomplete")
		return err
	}
	log.WithField("file", modelcard.ReadmeFileName).Info("Uploaded model card")
	return nil
}

// recordUnsupported adds the model to the skip-list after a converter
// failure. Failures caused by cancellation are not evidence against the
// model and are not recorded.
func (r *run) recordUnsupported(ctx context.Context, err error) {
	if _, ok := tool.AsToolError(err); !ok || ctx.Err() != nil {
		return
	}
	if err := r.SkipList.Record(r.id.String()); err != nil {
		r.log.WithError(err).Error("Could not record model on the skip-list")
		return
	}
	r.log.Warn("Recorded model on the skip-list, future runs will skip it")
}

func (r *run) cleanup(ctx context.Context) {
	if r.workDir == "" {
		return
	}
	log := r.log.WithField("work_dir", r.workDir)
	switch {
	case r.KeepWorkDir:
		log.Info("Keeping work directory")
	case ctx.Err() != nil:
		log.Warn("Run was cancelled, leaving work directory in place")
	default:
		if err := os.RemoveAll(r.workDir); err != nil {
			log.WithError(err).Warn("Could not remove work directory")
		}
	}
}

// stage runs fn as the named stage, logging its start, end and duration.
func (r *run) stage(name string, fn func(log *logrus.Entry) error) error {
	log := r.log.WithField("stage", name)
	log.Debug("Stage started")
	start := time.Now()
	err := fn(log)
	elapsed := time.Since(start)
	r.Metrics.ObserveStage(name, elapsed)

	log = log.WithField("duration", elapsed.Round(time.Millisecond))
	if err == nil {
		log.Info("Stage finished")
		return nil
	}
	log = log.WithError(err)
	if toolErr, ok := tool.AsToolError(err); ok {
		log = log.WithFields(logrus.Fields{
			"command":   toolErr.Command,
			"exit_code": toolErr.ExitCode,
			"stdout":    toolErr.Stdout,
			"stderr":    toolErr.Stderr,
		})
	}
	log.Error("Stage failed")
	return err
}

func (r *run) finish(o Outcome) Outcome {
	r.Metrics.SetOutcome(o.Status.String(), o.ExitCode())
	log := r.log.WithFields(logrus.Fields{
		"status":    o.Status.String(),
		"exit_code": o.ExitCode(),
	})
	if o.DestinationID != "" {
		log = log.WithField("destination", o.DestinationID)
	}
	if o.Status.Failed() {
		log.Error("Conversion failed")
	} else {
		log.Info("Conversion finished")
	}
	return o
}
