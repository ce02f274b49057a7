package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twitchrec_recording_start_total",
		Help: "Total number of recording attempts, by result",
	}, []string{"result"})

	exitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twitchrec_recording_exit_total",
		Help: "Total number of ffmpeg exits, by reason",
	}, []string{"reason"})
)
