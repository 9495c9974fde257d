package client

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// dispatcherMetrics holds the counters of one Dispatcher. Every dispatcher owns its
// own set, so several dispatchers in one process do not share values.
type dispatcherMetrics struct {
	set *metrics.Set

	calls       *metrics.Counter
	unavailable *metrics.Counter
	failures    *metrics.Counter
	retries     *metrics.Counter
	refreshes   *metrics.Counter
	rebuilds    *metrics.Counter
	duration    *metrics.Histogram
}

func newDispatcherMetrics(members func() float64) *dispatcherMetrics {
	set := metrics.NewSet()
	m := &dispatcherMetrics{
		set:         set,
		calls:       set.NewCounter("sentinel_calls_total"),
		unavailable: set.NewCounter("sentinel_calls_unavailable_total"),
		failures:    set.NewCounter("sentinel_transport_faults_total"),
		retries:     set.NewCounter("sentinel_call_retries_total"),
		refreshes:   set.NewCounter("sentinel_refreshes_total"),
		rebuilds:    set.NewCounter("sentinel_rebuilds_total"),
		duration:    set.NewHistogram("sentinel_call_duration_seconds"),
	}
	set.NewGauge("sentinel_members", members)
	return m
}

// Stats is a snapshot of the dispatcher counters
type Stats struct {
	Calls       uint64
	Unavailable uint64
	Faults      uint64
	Retries     uint64
	Refreshes   uint64
	Rebuilds    uint64
	Members     int
}

// Stats returns a snapshot of the dispatcher counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Calls:       d.metrics.calls.Get(),
		Unavailable: d.metrics.unavailable.Get(),
		Faults:      d.metrics.failures.Get(),
		Retries:     d.metrics.retries.Get(),
		Refreshes:   d.metrics.refreshes.Get(),
		Rebuilds:    d.metrics.rebuilds.Get(),
		Members:     d.cluster.Len(),
	}
}

// WritePrometheus writes the dispatcher metrics in Prometheus text format
func (d *Dispatcher) WritePrometheus(w io.Writer) {
	d.metrics.set.WritePrometheus(w)
}
