package server

import "github.com/prometheus/client_golang/prometheus"

// metrics bundles the Prometheus collectors exported by a Server
// (SPEC_FULL.md domain stack, supplemented feature #2 for
// lowCountAck).
type metrics struct {
	framesReceived   prometheus.Counter
	framesSent       prometheus.Counter
	framesDropped    *prometheus.CounterVec
	retransmits      prometheus.Counter
	disconnects      *prometheus.CounterVec
	lowCountAck      prometheus.Counter
	activeSessions   prometheus.Gauge
	roundTripSeconds prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "frames_received_total",
			Help: "Frames accepted off the socket, before replay filtering.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "frames_sent_total",
			Help: "Frames written to the socket, including retransmissions.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Name: "frames_dropped_total",
			Help: "Frames dropped before reaching a session's Protocol.",
		}, []string{"reason"}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "retransmits_total",
			Help: "Frames rebuilt and resent by a Retransmitter.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Name: "disconnects_total",
			Help: "Sessions torn down, labeled by disconnect reason.",
		}, []string{"reason"}),
		lowCountAck: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "low_count_ack_total",
			Help: "Ack ring slots recycled before being cited ALERT_LOW_COUNT_ACK times.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay", Name: "active_sessions",
			Help: "Sessions currently registered with the server, connected or not.",
		}),
		roundTripSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay", Name: "round_trip_seconds",
			Help:    "RTT estimates sampled from sessions with a full sample window.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.framesReceived, m.framesSent, m.framesDropped, m.retransmits,
		m.disconnects, m.lowCountAck, m.activeSessions, m.roundTripSeconds,
	)
	return m
}
