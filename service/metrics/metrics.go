// Package metrics exposes container statistics and flow transitions to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/fsmflow/model/types"
)

// Stats is the statistics source of a container
type Stats interface {
	Name() string
	CreatedCount() int64
	HandledCount() int64
	CompletedCount() int64
	BypassCount() int64
	RejectedCount() int64
	AliveCount() int64
}

// Metrics collects container counters on scrape and counts transitions as they happen.
// It is registered on a container as a state change listener.
type Metrics struct {
	stats       Stats
	created     *prometheus.Desc
	handled     *prometheus.Desc
	completed   *prometheus.Desc
	bypassed    *prometheus.Desc
	rejected    *prometheus.Desc
	alive       *prometheus.Desc
	transitions *prometheus.CounterVec
	lifetime    *prometheus.HistogramVec
}

// New creates metrics for stats under namespace
func New(namespace string, stats Stats) *Metrics {
	labels := prometheus.Labels{"container": stats.Name()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "flows", name), help, nil, labels)
	}
	return &Metrics{
		stats:     stats,
		created:   desc("created_total", "Total number of flows created"),
		handled:   desc("handled_total", "Total number of flows accepted for handling"),
		completed: desc("completed_total", "Total number of flows destroyed"),
		bypassed:  desc("bypassed_events_total", "Total number of events offered to destroyed flows"),
		rejected:  desc("rejected_total", "Total number of flows rejected by admission"),
		alive:     desc("alive", "Number of live flows"),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "flows",
			Name:        "transitions_total",
			Help:        "Total number of state transitions",
			ConstLabels: labels,
		}, []string{"flow", "from", "to"}),
		lifetime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "flows",
			Name:        "lifetime_seconds",
			Help:        "Time from flow creation to destruction",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"flow"}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.created
	ch <- m.handled
	ch <- m.completed
	ch <- m.bypassed
	ch <- m.rejected
	ch <- m.alive
	m.transitions.Describe(ch)
	m.lifetime.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.created, prometheus.CounterValue, float64(m.stats.CreatedCount()))
	ch <- prometheus.MustNewConstMetric(m.handled, prometheus.CounterValue, float64(m.stats.HandledCount()))
	ch <- prometheus.MustNewConstMetric(m.completed, prometheus.CounterValue, float64(m.stats.CompletedCount()))
	ch <- prometheus.MustNewConstMetric(m.bypassed, prometheus.CounterValue, float64(m.stats.BypassCount()))
	ch <- prometheus.MustNewConstMetric(m.rejected, prometheus.CounterValue, float64(m.stats.RejectedCount()))
	ch <- prometheus.MustNewConstMetric(m.alive, prometheus.GaugeValue, float64(m.stats.AliveCount()))
	m.transitions.Collect(ch)
	m.lifetime.Collect(ch)
}

// BeforeFlowChangeTo counts the transition
func (m *Metrics) BeforeFlowChangeTo(ctx types.FlowContext, next types.EventHandler, _ string, _ []any) error {
	from := ""
	if current := ctx.CurrentHandler(); current != nil {
		from = current.Name()
	}
	m.transitions.WithLabelValues(ctx.Name(), from, next.Name()).Inc()
	return nil
}

// AfterFlowDestroy observes the flow lifetime
func (m *Metrics) AfterFlowDestroy(ctx types.FlowContext) error {
	m.lifetime.WithLabelValues(ctx.Name()).Observe(ctx.TimeToLive().Seconds())
	return nil
}

var _ prometheus.Collector = (*Metrics)(nil)
var _ types.StateChangeListener = (*Metrics)(nil)
