package gate

import "github.com/prometheus/client_golang/prometheus"

var rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_gate_rejections_total",
	Help: "Number of requests rejected by the security gate, by check.",
}, []string{"reason"})

func init() {
	prometheus.MustRegister(rejections)
}
