// Package metrics records extraction runs as Prometheus metrics.
//
// Metrics live on a private registry rather than the global one, so a
// command can export exactly what it measured to a node-exporter textfile
// and tests can build as many instances as they like.
//
// Collected series:
//   - egx_runs_total{extractor,status}
//   - egx_run_duration_seconds{extractor}
//   - egx_dag_cost{graph,extractor} (last successful run)
//   - egx_extract_work_total{extractor,kind} (evaluations, commits, batches)
//   - egx_ilp_pass_changes_total{pass}
package metrics

import (
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/egx/internal/extract"
	"github.com/roach88/egx/internal/ilp"
)

const namespace = "egx"

// Run status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Recorder holds the egx collectors and the registry they belong to.
//
// All methods are safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	dagCost     *prometheus.GaugeVec
	work        *prometheus.CounterVec
	passChanges *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Extraction runs by extractor and status",
			},
			[]string{"extractor", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of one extraction",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"extractor"},
		),
		dagCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dag_cost",
				Help:      "DAG cost of the last successful run per graph and extractor",
			},
			[]string{"graph", "extractor"},
		),
		work: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extract_work_total",
				Help:      "Work counters reported by extractors",
			},
			[]string{"extractor", "kind"},
		),
		passChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ilp_pass_changes_total",
				Help:      "Candidates or classes changed by each ILP reduction pass",
			},
			[]string{"pass"},
		),
	}
	r.registry.MustRegister(r.runs, r.duration, r.dagCost, r.work, r.passChanges)
	return r
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records one extraction of graph.
func (r *Recorder) ObserveRun(graph string, out extract.Outcome) {
	status := StatusOK
	if !out.OK() {
		status = StatusFailed
	}
	r.runs.WithLabelValues(out.Extractor, status).Inc()
	r.duration.WithLabelValues(out.Extractor).Observe(out.Duration.Seconds())

	if out.Result != nil {
		st := out.Result.Stats
		r.work.WithLabelValues(out.Extractor, "evaluations").Add(float64(st.Evaluations))
		r.work.WithLabelValues(out.Extractor, "commits").Add(float64(st.Commits))
		r.work.WithLabelValues(out.Extractor, "batches").Add(float64(st.Batches))
	}
	if status == StatusOK && !math.IsInf(out.DAGCost, 0) {
		r.dagCost.WithLabelValues(graph, out.Extractor).Set(out.DAGCost)
	}
}

// ObservePass is an ilp.Extractor OnPass hook.
func (r *Recorder) ObservePass(ps ilp.PassStat) {
	r.passChanges.WithLabelValues(ps.Pass).Add(float64(ps.Changed))
}

// WriteTextfile writes every metric in the text exposition format,
// atomically replacing path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
