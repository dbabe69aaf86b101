package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "transport",
	Name:      "send_errors_total",
	Help:      "Number of multicast send attempts that returned an error, by interface name.",
}, []string{"interface"})

var metricDatagramsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ripd",
	Subsystem: "transport",
	Name:      "datagrams_received_total",
	Help:      "Number of multicast datagrams read off the wire, before dispatch to the engine.",
})
