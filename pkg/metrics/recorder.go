// Package metrics records what happened during one conversion run and
// exports it in the Prometheus text format, for node_exporter's textfile
// collector.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "model_converter"

// Recorder collects the metrics of one run. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	mu            sync.Mutex
	model         string
	stages        map[string]time.Duration
	status        string
	exitCode      int
	artifactBytes int64
	finished      time.Time
	now           func() time.Time
}

// NewRecorder creates a Recorder for model.
func NewRecorder(model string) *Recorder {
	return &Recorder{
		model:  model,
		stages: make(map[string]time.Duration),
		now:    time.Now,
	}
}

// ObserveStage records how long stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage] = d
}

// SetArtifactSize records the size of the published artifact.
func (r *Recorder) SetArtifactSize(n int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifactBytes = n
}

// SetOutcome records the final status of the run.
func (r *Recorder) SetOutcome(status string, exitCode int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.exitCode = exitCode
	r.finished = r.now()
}

// Families returns the recorded metrics, sorted by name.
func (r *Recorder) Families() []*dto.MetricFamily {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	modelLabel := label("model", r.model)
	var families []*dto.MetricFamily

	if len(r.stages) > 0 {
		stages := make([]string, 0, len(r.stages))
		for s := range r.stages {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		fam := gaugeFamily("stage_duration_seconds", "Wall-clock duration of each pipeline stage.")
		for _, s := range stages {
			fam.Metric = append(fam.Metric, gauge(r.stages[s].Seconds(), modelLabel, label("stage", s)))
		}
		families = append(families, fam)
	}

	if r.status != "" {
		outcome := gaugeFamily("run_outcome", "Outcome of the last run; the status label carries the value.")
		outcome.Metric = append(outcome.Metric, gauge(1, modelLabel, label("status", r.status)))
		exit := gaugeFamily("run_exit_code", "Process exit code of the last run.")
		exit.Metric = append(exit.Metric, gauge(float64(r.exitCode), modelLabel))
		ts := gaugeFamily("last_run_timestamp_seconds", "Unix time the last run finished.")
		ts.Metric = append(ts.Metric, gauge(float64(r.finished.Unix()), modelLabel))
		families = append(families, outcome, exit, ts)
	}

	if r.artifactBytes > 0 {
		fam := gaugeFamily("artifact_bytes", "Size of the published GGUF artifact.")
		fam.Metric = append(fam.Metric, gauge(float64(r.artifactBytes), modelLabel))
		families = append(families, fam)
	}

	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	return families
}

// Encode writes the recorded metrics to w in the Prometheus text format.
func (r *Recorder) Encode(w io.Writer) error {
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range r.Families() {
		if err := encoder.Encode(family); err != nil {
			return fmt.Errorf("encode metric family %s: %w", family.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile atomically replaces path with the recorded metrics. The
// textfile collector must never see a partially written file.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := r.Encode(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename metrics file: %w", err)
	}
	return nil
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(namespace + "_" + name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: ptr(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T {
	return &v
}
