package interview

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for interview sessions. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	QuestionsTotal *prometheus.CounterVec
	AnswersTotal   *prometheus.CounterVec

	AudioClipBytes prometheus.Counter
	GazeWarnings   prometheus.Counter
	LockoutsTotal  prometheus.Counter
	SubmitErrors   prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interview"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active interview sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of interview sessions",
		},
		[]string{"outcome"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Interview session duration in seconds",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 3600},
		},
	)

	questionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Total questions presented",
		},
		[]string{"kind"},
	)

	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total answers submitted",
		},
		[]string{"payload"},
	)

	audioClipBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_clip_bytes_total",
			Help:      "Total recorded audio bytes uploaded",
		},
	)

	gazeWarnings := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gaze_warnings_total",
			Help:      "Total proctoring warnings issued",
		},
	)

	lockoutsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Total sessions ended by the proctoring policy",
		},
	)

	submitErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_errors_total",
			Help:      "Total failed answer submissions",
		},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		questionsTotal,
		answersTotal,
		audioClipBytes,
		gazeWarnings,
		lockoutsTotal,
		submitErrors,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		QuestionsTotal:  questionsTotal,
		AnswersTotal:    answersTotal,
		AudioClipBytes:  audioClipBytes,
		GazeWarnings:    gazeWarnings,
		LockoutsTotal:   lockoutsTotal,
		SubmitErrors:    submitErrors,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) recordSessionEnd(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

func (m *Metrics) recordQuestion(kind Kind) {
	if m == nil {
		return
	}
	m.QuestionsTotal.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) recordAnswer(payload string) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(payload).Inc()
}

func (m *Metrics) recordClip(bytes int) {
	if m == nil {
		return
	}
	m.AudioClipBytes.Add(float64(bytes))
}

func (m *Metrics) recordGazeWarning() {
	if m == nil {
		return
	}
	m.GazeWarnings.Inc()
}

func (m *Metrics) recordLockout() {
	if m == nil {
		return
	}
	m.LockoutsTotal.Inc()
}

func (m *Metrics) recordSubmitError() {
	if m == nil {
		return
	}
	m.SubmitErrors.Inc()
}
