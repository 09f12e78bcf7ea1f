package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizd",
		Name:      "commands_total",
		Help:      "Commands dispatched, by command and outcome.",
	}, []string{"command", "outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizd",
		Name:      "active_sessions",
		Help:      "Currently connected client sessions.",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizd",
		Name:      "sessions_total",
		Help:      "Sessions accepted since start.",
	})

	frameBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizd",
		Name:      "frame_bytes_total",
		Help:      "Payload bytes moved over the wire, by direction.",
	}, []string{"direction"})
)

func CommandProcessed(command, outcome string) {
	commandsTotal.WithLabelValues(command, outcome).Inc()
}

func SessionStarted() {
	sessionsTotal.Inc()
	activeSessions.Inc()
}

func SessionEnded() {
	activeSessions.Dec()
}

func FrameRead(payloadLen int) {
	frameBytes.WithLabelValues("in").Add(float64(payloadLen))
}

func FrameWritten(payloadLen int) {
	frameBytes.WithLabelValues("out").Add(float64(payloadLen))
}
