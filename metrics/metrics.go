// Package metrics exports run statistics in the Prometheus format.
//
// A Recorder owns a private registry; it never touches the global default
// registry, so several recorders (one per run) can coexist in one process.
// Batch runs have no scrape endpoint; WriteTextfile dumps the registry for
// the node_exporter textfile collector instead.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/clinagents/core"
)

const namespace = "clinagents"

// Recorder collects metrics from finished transcripts. It implements
// runner.Observer and is safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	cases       *prometheus.CounterVec
	turns       *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	violations  *prometheus.CounterVec
	modelCalls  *prometheus.CounterVec
	modelErrors *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
}

// NewRecorder creates a Recorder. constLabels (e.g. experiment) are attached
// to every series.
func NewRecorder(constLabels prometheus.Labels) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cases_total",
			Help:        "Finished case runs by mode and termination reason.",
			ConstLabels: constLabels,
		}, []string{"mode", "termination"}),
		turns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "case_turns",
			Help:        "Turns per case run.",
			ConstLabels: constLabels,
			Buckets:     prometheus.LinearBuckets(1, 2, 10),
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "case_duration_seconds",
			Help:        "Wall-clock duration of a case run.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"mode"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "protocol_violations_total",
			Help:        "Rejected malformed agent replies.",
			ConstLabels: constLabels,
		}, []string{"role"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "model_calls_total",
			Help:        "Model calls including retries.",
			ConstLabels: constLabels,
		}, []string{"role", "model"}),
		modelErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "model_call_errors_total",
			Help:        "Failed model calls.",
			ConstLabels: constLabels,
		}, []string{"role", "model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "model_tokens_total",
			Help:        "Model tokens by direction.",
			ConstLabels: constLabels,
		}, []string{"role", "model", "direction"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "model_call_duration_seconds",
			Help:        "Latency of a single model call.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"role", "model"}),
	}

	r.registry.MustRegister(
		r.cases, r.turns, r.duration, r.violations,
		r.modelCalls, r.modelErrors, r.tokens, r.callLatency,
	)

	return r
}

// Registry exposes the registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveTranscript records one finished case run.
func (r *Recorder) ObserveTranscript(tr core.Transcript) {
	mode := string(tr.Mode)

	r.cases.WithLabelValues(mode, string(tr.Termination)).Inc()
	r.turns.WithLabelValues(mode).Observe(float64(len(tr.Turns)))
	r.duration.WithLabelValues(mode).Observe(tr.Duration.Seconds())

	for _, t := range tr.Turns {
		if n := len(t.Violations); n > 0 {
			r.violations.WithLabelValues(string(t.Role)).Add(float64(n))
		}
	}

	for _, c := range tr.Calls {
		role := string(c.Role)

		r.modelCalls.WithLabelValues(role, c.Model).Inc()
		if c.Error != "" {
			r.modelErrors.WithLabelValues(role, c.Model).Inc()
		}
		r.tokens.WithLabelValues(role, c.Model, "input").Add(float64(c.Usage.InputTokens))
		r.tokens.WithLabelValues(role, c.Model, "output").Add(float64(c.Usage.OutputTokens))
		r.callLatency.WithLabelValues(role, c.Model).Observe(c.Usage.Latency.Seconds())
	}
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics: empty textfile path")
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
