package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricInterfacesWatched = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ripd",
	Subsystem: "runtime",
	Name:      "interfaces_watched",
	Help:      "Number of host interfaces currently known to the interface watcher.",
})
