package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tablechat"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Dialogue turns by recognized intent.",
		},
		[]string{"intent"},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent handling one dialogue turn.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Slot extractions by the strategy that produced them.",
		},
		[]string{"source"},
	)

	oracleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_failures_total",
			Help:      "Oracle calls that timed out or failed, by kind.",
		},
		[]string{"kind"},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Booking service calls by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_updates_total",
			Help:      "Telegram updates by kind.",
		},
		[]string{"kind"},
	)

	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Conversations held in memory.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, turns, turnDuration, extractions, oracleFailures, dispatches, botUpdates, sessions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTurn(intent string) {
	turns.WithLabelValues(intent).Inc()
}

func ObserveTurn(d time.Duration) {
	turnDuration.Observe(d.Seconds())
}

func IncExtraction(source string) {
	extractions.WithLabelValues(source).Inc()
}

func IncOracleFailure(kind string) {
	oracleFailures.WithLabelValues(kind).Inc()
}

// IncDispatch counts a booking call; outcome is "ok" or a failure reason.
func IncDispatch(action, outcome string) {
	dispatches.WithLabelValues(action, outcome).Inc()
}

// IncBotUpdate counts a Telegram update: message, command, unsupported or panic.
func IncBotUpdate(kind string) {
	botUpdates.WithLabelValues(kind).Inc()
}

func SetSessions(n int) {
	sessions.Set(float64(n))
}
