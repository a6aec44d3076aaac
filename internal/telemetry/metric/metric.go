// Package metric provides Prometheus metrics for the checkpoint subsystem.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkpoint holds the collectors updated by the statepoint I/O paths.
// A nil *Checkpoint is valid and records nothing, so library code can be
// used without metrics wired.
type Checkpoint struct {
	DatasetsWritten  prometheus.Counter
	BytesWritten     prometheus.Counter
	WriteDuration    prometheus.Histogram
	UnsupportedSkips prometheus.Counter
	BankRecords      prometheus.Counter
}

// NewCheckpoint creates the checkpoint collectors and registers them.
func NewCheckpoint(registry *prometheus.Registry) *Checkpoint {
	c := &Checkpoint{
		DatasetsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statemesh",
			Subsystem: "checkpoint",
			Name:      "datasets_written_total",
			Help:      "Named datasets written to statepoint files",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statemesh",
			Subsystem: "checkpoint",
			Name:      "bytes_written_total",
			Help:      "Payload bytes written to statepoint files",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "statemesh",
			Subsystem: "checkpoint",
			Name:      "write_duration_seconds",
			Help:      "Wall time of individual dataset writes",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		UnsupportedSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statemesh",
			Subsystem: "checkpoint",
			Name:      "unsupported_shape_skips_total",
			Help:      "Writes skipped because the active backend does not support the shape",
		}),
		BankRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statemesh",
			Subsystem: "checkpoint",
			Name:      "bank_records_written_total",
			Help:      "Source bank records persisted",
		}),
	}

	registry.MustRegister(
		c.DatasetsWritten,
		c.BytesWritten,
		c.WriteDuration,
		c.UnsupportedSkips,
		c.BankRecords,
	)
	return c
}

// ObserveWrite records one completed dataset write.
func (c *Checkpoint) ObserveWrite(bytes int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.DatasetsWritten.Inc()
	c.BytesWritten.Add(float64(bytes))
	c.WriteDuration.Observe(elapsed.Seconds())
}

// ObserveSkip records one diagnosed unsupported-shape skip.
func (c *Checkpoint) ObserveSkip() {
	if c == nil {
		return
	}
	c.UnsupportedSkips.Inc()
}

// ObserveBank records persisted source bank records.
func (c *Checkpoint) ObserveBank(records int64) {
	if c == nil {
		return
	}
	c.BankRecords.Add(float64(records))
}
