package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizgen/internal/domain"
	"github.com/victornm/quizgen/internal/errors"
	"github.com/victornm/quizgen/internal/event"
	"github.com/victornm/quizgen/internal/quiz"
	"github.com/victornm/quizgen/internal/session"
)

func TestService_PlayThrough(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()

	var (
		mu       sync.Mutex
		finished []domain.EventSessionFinished
	)
	eb.Subscribe(domain.EventNameSessionFinished, "test", func(_ context.Context, e event.Event) error {
		mu.Lock()
		finished = append(finished, e.(domain.EventSessionFinished))
		mu.Unlock()
		return nil
	})

	s := makeService(t, withEventBus(eb))

	q, err := s.CreateQuiz(ctx, session.CreateQuizRequest{Content: makeContent(2, 1), Source: "text"})
	require.NoError(t, err)

	v, err := s.StartSession(ctx, session.StartSessionRequest{QuizID: q.QuizID, Username: "u1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAnswering, v.Snapshot.State)
	assert.Equal(t, 3, v.Snapshot.Total)

	answers := []quiz.Answer{quiz.Choice(1), quiz.Choice(0), quiz.Truth(true)}
	for i, a := range answers {
		resp, err := s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: a})
		require.NoError(t, err)
		assert.Equal(t, i != 1, resp.Correct)
		assert.Equal(t, session.StateRevealed, resp.View.Snapshot.State)

		_, err = s.Report(ctx, session.ReportRequest{SessionID: v.SessionID})
		assert.Equal(t, errors.CodeFailedPrecondition, errors.CodeOf(err))

		_, err = s.Advance(ctx, session.AdvanceRequest{SessionID: v.SessionID})
		require.NoError(t, err)
	}

	got, err := s.GetSession(ctx, session.GetSessionRequest{SessionID: v.SessionID})
	require.NoError(t, err)
	assert.Equal(t, session.StateFinished, got.Snapshot.State)

	r, err := s.Report(ctx, session.ReportRequest{SessionID: v.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Score)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 67, r.Percentage)
	assert.Len(t, r.History, 3)

	eb.Stop()
	require.Len(t, finished, 1)
	res := finished[0].Result
	assert.Equal(t, v.SessionID, res.SessionID)
	assert.Equal(t, q.QuizID, res.QuizID)
	assert.Equal(t, "u1", res.Username)
	assert.Equal(t, 67, res.Percentage)
	assert.Equal(t, "fair", res.Tier)
	assert.Equal(t, []domain.Answer{
		{Question: "mcq 0", Correct: true},
		{Question: "mcq 1", Correct: false},
		{Question: "tf 0", Correct: true},
	}, res.History)
}

func TestService_AnonymousSessionIsNotPublished(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()

	published := false
	eb.Subscribe(domain.EventNameSessionFinished, "test", func(context.Context, event.Event) error {
		published = true
		return nil
	})

	s := makeService(t, withEventBus(eb))
	v := startSession(t, s, makeContent(1, 0), "")

	_, err := s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: quiz.Choice(1)})
	require.NoError(t, err)
	_, err = s.Advance(ctx, session.AdvanceRequest{SessionID: v.SessionID})
	require.NoError(t, err)

	eb.Stop()
	assert.False(t, published)
}

func TestService_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)
	v := startSession(t, s, makeContent(2, 0), "u1")

	_, err := s.Advance(ctx, session.AdvanceRequest{SessionID: v.SessionID})
	assert.Equal(t, errors.CodeFailedPrecondition, errors.CodeOf(err))

	_, err = s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID})
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))

	_, err = s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: quiz.Choice(1)})
	require.NoError(t, err)

	_, err = s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: quiz.Choice(1)})
	assert.Equal(t, errors.CodeFailedPrecondition, errors.CodeOf(err))

	got, err := s.GetSession(ctx, session.GetSessionRequest{SessionID: v.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Snapshot.Score, "a rejected second answer must not score")
}

func TestService_ConcurrentSubmitsScoreOnce(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)
	v := startSession(t, s, makeContent(1, 0), "u1")

	var (
		eg       errgroup.Group
		mu       sync.Mutex
		accepted int
	)
	for range 10 {
		eg.Go(func() error {
			_, err := s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: quiz.Choice(1)})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return nil
			}
			if c := errors.CodeOf(err); c != errors.CodeFailedPrecondition && c != errors.CodeUnavailable {
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, 1, accepted)

	got, err := s.GetSession(ctx, session.GetSessionRequest{SessionID: v.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Snapshot.Score)
}

func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)
	v := startSession(t, s, makeContent(1, 0), "u1")

	_, err := s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: quiz.Choice(1)})
	require.NoError(t, err)
	_, err = s.Advance(ctx, session.AdvanceRequest{SessionID: v.SessionID})
	require.NoError(t, err)

	t.Run("reset keeps the quiz", func(t *testing.T) {
		got, err := s.Reset(ctx, session.ResetRequest{SessionID: v.SessionID})
		require.NoError(t, err)
		assert.Equal(t, v.QuizID, got.QuizID)
		assert.Equal(t, session.StateAnswering, got.Snapshot.State)
		assert.Equal(t, 0, got.Snapshot.Score)
		assert.Equal(t, 0, got.Snapshot.Position)
	})

	t.Run("reset switches to another quiz", func(t *testing.T) {
		other, err := s.CreateQuiz(ctx, session.CreateQuizRequest{Content: makeContent(3, 2)})
		require.NoError(t, err)

		got, err := s.Reset(ctx, session.ResetRequest{SessionID: v.SessionID, QuizID: other.QuizID})
		require.NoError(t, err)
		assert.Equal(t, other.QuizID, got.QuizID)
		assert.Equal(t, 5, got.Snapshot.Total)
	})

	t.Run("reset to an unknown quiz leaves the session alone", func(t *testing.T) {
		before, err := s.GetSession(ctx, session.GetSessionRequest{SessionID: v.SessionID})
		require.NoError(t, err)

		_, err = s.Reset(ctx, session.ResetRequest{SessionID: v.SessionID, QuizID: "missing"})
		assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

		after, err := s.GetSession(ctx, session.GetSessionRequest{SessionID: v.SessionID})
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	_, err := s.GetQuiz(ctx, session.GetQuizRequest{QuizID: "nope"})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	_, err = s.StartSession(ctx, session.StartSessionRequest{QuizID: "nope"})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	_, err = s.GetSession(ctx, session.GetSessionRequest{SessionID: "nope"})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	_, err = s.Advance(ctx, session.AdvanceRequest{SessionID: "nope"})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestService_CreateQuiz_RejectsEmptyContent(t *testing.T) {
	s := makeService(t)

	for _, c := range []*quiz.Content{nil, {}, {TrueFalse: []quiz.TrueFalse{{}}}} {
		_, err := s.CreateQuiz(context.Background(), session.CreateQuizRequest{Content: c})
		assert.ErrorIs(t, err, quiz.ErrEmpty)
		assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
	}
}

func TestService_Expiry(t *testing.T) {
	rs := miniredis.RunT(t)
	s := makeService(t, withMiniredis(rs), withTTL(time.Minute))
	v := startSession(t, s, makeContent(1, 0), "")

	rs.FastForward(2 * time.Minute)

	_, err := s.GetSession(context.Background(), session.GetSessionRequest{SessionID: v.SessionID})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestService_ActiveSessionKeepsQuiz(t *testing.T) {
	ctx := context.Background()
	rs := miniredis.RunT(t)
	s := makeService(t, withMiniredis(rs), withTTL(time.Minute))
	v := startSession(t, s, makeContent(1, 0), "")

	rs.FastForward(50 * time.Second)
	_, err := s.SubmitAnswer(ctx, session.SubmitAnswerRequest{SessionID: v.SessionID, Answer: quiz.Choice(1)})
	require.NoError(t, err)

	rs.FastForward(20 * time.Second)
	assert.True(t, rs.Exists("test:quiz:"+v.QuizID))

	_, err = s.Advance(ctx, session.AdvanceRequest{SessionID: v.SessionID})
	require.NoError(t, err)

	_, err = s.StartSession(ctx, session.StartSessionRequest{QuizID: v.QuizID})
	require.NoError(t, err)
}

func startSession(t *testing.T, s *session.Service, c *quiz.Content, username string) *session.View {
	q, err := s.CreateQuiz(context.Background(), session.CreateQuizRequest{Content: c})
	require.NoError(t, err)

	v, err := s.StartSession(context.Background(), session.StartSessionRequest{QuizID: q.QuizID, Username: username})
	require.NoError(t, err)

	return v
}

type serviceOptions struct {
	rs *miniredis.Miniredis
	c  session.Config
}

type options func(o *serviceOptions)

func withEventBus(eb *event.Bus) options {
	return func(o *serviceOptions) {
		o.c.EventBus = eb
	}
}

func withMiniredis(rs *miniredis.Miniredis) options {
	return func(o *serviceOptions) {
		o.rs = rs
	}
}

func withTTL(d time.Duration) options {
	return func(o *serviceOptions) {
		o.c.TTL = d
	}
}

func makeService(t *testing.T, opts ...options) *session.Service {
	o := serviceOptions{
		c: session.Config{
			EventBus: event.NewBus(),
			Prefix:   "test",
		},
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.rs == nil {
		o.rs = miniredis.RunT(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{o.rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")
	t.Cleanup(func() { rc.Close() })

	o.c.Redis = rc
	return session.NewService(o.c)
}
