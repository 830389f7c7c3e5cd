package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Voice requests
	VoiceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistente_voice_requests_total",
		Help: "Voice platform requests handled, by request type and intent",
	}, []string{"request_type", "intent"})

	VoiceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asistente_voice_latency_seconds",
		Help:    "End to end handling time of one voice request",
		Buckets: prometheus.DefBuckets,
	})

	QuestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistente_questions_total",
		Help: "Questions forwarded to the answer provider, by outcome",
	}, []string{"outcome"})

	AssistantModeChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistente_assistant_mode_changes_total",
		Help: "Assistant mode transitions, by resulting state",
	}, []string{"state"})

	// Answer provider
	AnswerProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistente_answer_provider_requests_total",
		Help: "Calls to the generative language API, by status",
	}, []string{"status"})

	AnswerProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asistente_answer_provider_latency_seconds",
		Help:    "Latency of generative language API calls",
		Buckets: []float64{.1, .25, .5, 1, 2, 3, 4, 6, 8},
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "asistente_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	// Request verification
	VerificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistente_request_verification_failures_total",
		Help: "Inbound requests rejected by verification, by reason",
	}, []string{"reason"})
)
