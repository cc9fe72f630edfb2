package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/aretw0/thicket/pkg/undo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thicket"

// Metrics holds the collectors describing editing activity.
type Metrics struct {
	gatherer prometheus.Gatherer

	Operations *prometheus.CounterVec
	Merges     prometheus.Counter
	Reversals  *prometheus.CounterVec
	Conflicts  *prometheus.CounterVec
	Submits    *prometheus.CounterVec
	Latency    prometheus.Histogram
	Patches    *prometheus.CounterVec
	Faults     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_operations_total",
			Help:      "Operations committed to the undo history, by label.",
		}, []string{"label"}),
		Merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_merges_total",
			Help:      "Operations merged into the previous history entry.",
		}),
		Reversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_reversals_total",
			Help:      "Undo and redo steps, by direction.",
		}, []string{"direction"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_rejected_patches_total",
			Help:      "Patches rejected by the authority, by tree.",
		}, []string{"tree_id"}),
		Submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authority_submits_total",
			Help:      "Submissions sent to the authority, by outcome.",
		}, []string{"outcome"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authority_submit_duration_seconds",
			Help:      "Round trip of one submission.",
			Buckets:   prometheus.DefBuckets,
		}),
		Patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authority_patches_total",
			Help:      "Patches judged by the authority, by status.",
		}, []string{"status"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Structural faults reported, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.Operations, m.Merges, m.Reversals, m.Conflicts, m.Submits, m.Latency, m.Patches, m.Faults)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Hooks returns undo hooks feeding the collectors.
func (m *Metrics) Hooks() undo.Hooks {
	return undo.Hooks{
		OnCommit: func(op *undo.Operation) {
			m.Operations.WithLabelValues(string(op.Label)).Inc()
		},
		OnMerge: func(*undo.Operation) {
			m.Merges.Inc()
		},
		OnUndo: func(*undo.Operation) {
			m.Reversals.WithLabelValues("undo").Inc()
		},
		OnRedo: func(*undo.Operation) {
			m.Reversals.WithLabelValues("redo").Inc()
		},
		OnConflict: func(treeID string, rejected, _ int) {
			m.Conflicts.WithLabelValues(treeID).Add(float64(rejected))
		},
		OnSubmit: func(_ string, elapsed time.Duration, err error) {
			m.Latency.Observe(elapsed.Seconds())
			m.Submits.WithLabelValues(outcome(err)).Inc()
		},
	}
}

// Reporter returns an error reporter counting faults before forwarding them
// to next, if any.
func (m *Metrics) Reporter(next ports.ErrorReporter) ports.ErrorReporter {
	return reporterFunc(func(ctx context.Context, err error) {
		kind := "other"
		if errors.Is(err, domain.ErrCorruption) {
			kind = "corruption"
		}
		m.Faults.WithLabelValues(kind).Inc()
		if next != nil {
			next.Report(ctx, err)
		}
	})
}

type reporterFunc func(ctx context.Context, err error)

func (f reporterFunc) Report(ctx context.Context, err error) { f(ctx, err) }

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
