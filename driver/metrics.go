package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "twitchrec_resolve_requests_total",
	Help: "Platform requests made while resolving a channel, by stage and result",
}, []string{"stage", "result"})

func observeResolve(stage string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	resolveTotal.WithLabelValues(stage, result).Inc()
}
