package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit writes are best-effort: a failed or dropped entry never fails the
// surrounding operation, so these counters are the only place losses
// become visible.
var (
	AuditEntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grc",
		Subsystem: "audit",
		Name:      "entries_written_total",
		Help:      "Audit log entries successfully persisted.",
	})
	AuditEntriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grc",
		Subsystem: "audit",
		Name:      "entries_dropped_total",
		Help:      "Audit log entries dropped for missing actor identity.",
	})
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grc",
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Audit log inserts absorbed after a storage failure.",
	})
)
