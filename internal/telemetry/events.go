package telemetry

import (
	"context"
	"log/slog"

	"github.com/victornm/quizgen/internal/domain"
	"github.com/victornm/quizgen/internal/event"
)

// SubscribeEvents records domain events published on eb.
func SubscribeEvents(eb *event.Bus) {
	eb.Subscribe(domain.EventNameQuizGenerated, "telemetry", func(ctx context.Context, e event.Event) error {
		RecordQuizGenerated(ctx, e.(domain.EventQuizGenerated))
		return nil
	})
}

func RecordQuizGenerated(ctx context.Context, e domain.EventQuizGenerated) {
	QuestionsGenerated.WithLabelValues(e.Quiz.Source).Add(float64(e.Questions))
	slog.InfoContext(ctx, "quiz generated",
		"quiz", e.Quiz.QuizID,
		"source", e.Quiz.Source,
		"questions", e.Questions,
	)
}
