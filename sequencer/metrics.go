package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/playout/metric"
)

// connMetrics tracks per-channel connection health and protocol traffic.
type connMetrics struct {
	connected     prometheus.Gauge
	reconnects    prometheus.Counter
	framesDecoded prometheus.Counter
	frameErrors   prometheus.Counter
	commandsSent  prometheus.Counter
	fetchTimeouts prometheus.Counter
}

func newConnMetrics(reg *metric.Registry, channelID string) *connMetrics {
	labels := prometheus.Labels{"channel": channelID}
	m := &connMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "playout_channel_connected",
			Help:        "Whether the channel connection is currently established (0 or 1)",
			ConstLabels: labels,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "playout_channel_reconnects_total",
			Help:        "Number of reconnection attempts for the channel",
			ConstLabels: labels,
		}),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "playout_channel_frames_total",
			Help:        "Protocol frames decoded from the channel",
			ConstLabels: labels,
		}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "playout_channel_frame_errors_total",
			Help:        "Malformed frames dropped without closing the connection",
			ConstLabels: labels,
		}),
		commandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "playout_channel_commands_total",
			Help:        "Commands sent to the channel",
			ConstLabels: labels,
		}),
		fetchTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "playout_channel_fetch_timeouts_total",
			Help:        "Content fetches that timed out and returned partial data",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		component := "conn-" + channelID
		reg.MustRegister(component, map[string]prometheus.Collector{
			"connected":      m.connected,
			"reconnects":     m.reconnects,
			"frames":         m.framesDecoded,
			"frame_errors":   m.frameErrors,
			"commands":       m.commandsSent,
			"fetch_timeouts": m.fetchTimeouts,
		})
	}
	return m
}
