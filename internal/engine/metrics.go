package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPacketsHandled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "engine",
	Name:      "packets_handled_total",
	Help:      "Number of inbound advertisements processed on an enabled interface.",
})

var metricEntriesLearned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "engine",
	Name:      "entries_learned_total",
	Help:      "Number of new routing table entries created from advertisements.",
})

var metricTimeouts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "engine",
	Name:      "timeouts_total",
	Help:      "Number of entries that timed out and were marked unreachable.",
})

var metricRescues = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "engine",
	Name:      "rescues_total",
	Help:      "Number of stale entries re-homed onto a directly-connected interface instead of timing out.",
})

var metricBroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "engine",
	Name:      "broadcasts_total",
	Help:      "Number of broadcast rounds emitted (one round covers every enabled interface).",
})

var metricTableSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ripd",
	Subsystem: "engine",
	Name:      "table_size",
	Help:      "Current number of entries in the routing table.",
})
