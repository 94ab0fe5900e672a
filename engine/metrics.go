package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/playout/metric"
)

type engineMetrics struct {
	eventsClassified *prometheus.CounterVec
	framesIgnored    prometheus.Counter
	channelsActive   prometheus.Gauge
}

func newEngineMetrics(reg *metric.Registry) *engineMetrics {
	m := &engineMetrics{
		eventsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_events_classified_total",
			Help: "Classified playout events by kind",
		}, []string{"kind"}),
		framesIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playout_frames_ignored_total",
			Help: "Notification frames matching no classification rule",
		}),
		channelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playout_channels",
			Help: "Number of managed channel connections",
		}),
	}

	if reg != nil {
		reg.MustRegister("engine", map[string]prometheus.Collector{
			"events_classified": m.eventsClassified,
			"frames_ignored":    m.framesIgnored,
			"channels":          m.channelsActive,
		})
	}
	return m
}
