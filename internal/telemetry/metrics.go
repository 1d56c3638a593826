package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizgen"

var (
	// QuizzesGenerated counts generation attempts by input kind and outcome.
	QuizzesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quizzes_generated_total",
		Help:      "Quiz generation attempts by input kind and outcome.",
	}, []string{"kind", "outcome"})

	// GenerationDuration observes how long the generation backend takes.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Latency of the quiz generation backend.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"kind"})

	// QuestionsGenerated counts the questions of stored quizzes by input kind.
	QuestionsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_generated_total",
		Help:      "Questions in stored quizzes by input kind.",
	}, []string{"source"})

	// AnswersSubmitted counts accepted answers by question kind and correctness.
	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Answers accepted by sessions.",
	}, []string{"kind", "correct"})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Sessions started, including resets.",
	})

	// SessionPercentage observes the final percentage of finished sessions.
	SessionPercentage = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_percentage",
		Help:      "Final percentage of finished sessions.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
)
