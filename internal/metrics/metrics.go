// Package metrics exposes Prometheus RED/USE metrics for the
// orchestration core, adapted directly from the teacher's
// internal/metrics/metrics.go (jobs_* counters/histograms/gauges)
// relabeled to this domain's suite/test/node/invocation lifecycle. It
// implements the suite listener interface so it plugs into
// internal/listener like any other observer, and the Test Runner's result
// observer and the orchestrator's graph observer — it reports, it does
// not render (reporters in the XML/HTML/JUnit sense stay out of scope,
// §1).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrel-run/kestrel/pkg/model"
)

// Recorder owns the Prometheus collectors and satisfies the suite
// listener, result observer and graph observer shapes used elsewhere in
// this module.
type Recorder struct {
	InvocationsTotal   *prometheus.CounterVec
	SkippedTotal       prometheus.Counter
	NodesScheduled     prometheus.Counter
	NodesRunning       prometheus.Gauge
	NodesReady         prometheus.Gauge
	InvocationDuration prometheus.Histogram
}

// New constructs a Recorder and registers its collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production (mirrors the teacher's
// metrics.go constructor pattern).
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		InvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_invocations_total",
			Help: "Total test-method invocations, labeled by result status.",
		}, []string{"status"}),
		SkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_skipped_invocations_total",
			Help: "Total invocations synthesised as skipped by cascade-skip.",
		}),
		NodesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_nodes_scheduled_total",
			Help: "Total DAG work nodes submitted to the worker pool.",
		}),
		NodesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kestrel_nodes_running",
			Help: "Work nodes currently in the running state.",
		}),
		NodesReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kestrel_nodes_ready",
			Help: "Work nodes currently free to run.",
		}),
		InvocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_invocation_duration_seconds",
			Help:    "Wall-clock duration of one test-method invocation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(r.InvocationsTotal, r.SkippedTotal, r.NodesScheduled, r.NodesRunning, r.NodesReady, r.InvocationDuration)
	return r
}

// OnStart satisfies suite.SuiteListener; metrics have nothing to record
// at suite start beyond being attached.
func (r *Recorder) OnStart(*model.SuiteDescription) {}

// OnFinish satisfies suite.SuiteListener; it has no suite-level summary
// to emit beyond the already-incremented per-invocation counters.
func (r *Recorder) OnFinish(*model.SuiteDescription, *model.SuiteResult) {}

// ObserveResult records one Test Result's status and duration. Satisfies
// testrunner.ResultObserver; the Test Runner calls it for every result a
// Method Runner produces.
func (r *Recorder) ObserveResult(res *model.TestResult) {
	if res == nil {
		return
	}
	r.InvocationsTotal.WithLabelValues(string(res.Status)).Inc()
	if res.Status == model.StatusSkipped {
		r.SkippedTotal.Inc()
	}
	if !res.Start.IsZero() && !res.End.IsZero() {
		r.InvocationDuration.Observe(res.End.Sub(res.Start).Seconds())
	}
}

// NodeScheduled records one DAG work node being submitted. Satisfies
// orchestrator.GraphObserver.
func (r *Recorder) NodeScheduled() { r.NodesScheduled.Inc() }

// GraphGauges sets the instantaneous ready/running gauges, called once
// per scheduling round. Satisfies orchestrator.GraphObserver.
func (r *Recorder) GraphGauges(ready, running int) {
	r.NodesReady.Set(float64(ready))
	r.NodesRunning.Set(float64(running))
}
