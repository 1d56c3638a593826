package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizgen/internal/domain"
	"github.com/victornm/quizgen/internal/errors"
	"github.com/victornm/quizgen/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultPrefix   = "quizgen"
	defaultTTL      = 24 * time.Hour
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// TTL is refreshed on every update, so a leaderboard lives as long as its quiz is played.
	TTL time.Duration
}

// Service ranks the users who finished a quiz by their best percentage.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}

	s.eb.Subscribe(domain.EventNameSessionFinished, "leaderboard", func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventSessionFinished))
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
	// Limit caps the number of entries. Zero returns everyone.
	Limit int
}

// GetLeaderboard returns the users who finished a quiz, best percentage first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := int64(req.Limit) - 1
	if req.Limit <= 0 {
		stop = -1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(req.QuizID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: quiz=%s", req.QuizID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Username:   z.Member.(string),
			Percentage: z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// UpdateLeaderboard records a finished attempt. Only a better percentage replaces the
// user's current entry.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventSessionFinished) error {
	r := e.Result
	if r.Username == "" {
		return nil
	}

	key := s.leaderboardKey(r.QuizID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddGT(ctx, key, redis.Z{
			Score:  float64(r.Percentage),
			Member: r.Username,
		})
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, r)
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per quiz within
// publishInterval. The first result inside a running window schedules one trailing
// publish at the end of the window, which carries every result recorded until then.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, r domain.Result) error {
	ok, err := s.redis.SetNX(ctx, s.publishTimeKey(r.QuizID), r.FinishTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if ok {
		return s.publishLeaderboard(ctx, r.QuizID)
	}

	ok, err = s.redis.SetNX(ctx, s.publishPendingKey(r.QuizID), r.FinishTime.UnixMilli(), 2*publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx pending: %w", err)
	}

	if !ok {
		return nil
	}

	wait, err := s.redis.PTTL(ctx, s.publishTimeKey(r.QuizID)).Result()
	if err != nil || wait <= 0 || wait > publishInterval {
		wait = publishInterval
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	// Results recorded after this point schedule their own publish.
	if err := s.redis.Del(ctx, s.publishPendingKey(r.QuizID)).Err(); err != nil {
		return fmt.Errorf("del pending: %w", err)
	}

	return s.publishLeaderboard(ctx, r.QuizID)
}

func (s *Service) publishLeaderboard(ctx context.Context, quizID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%s: %w", quizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) leaderboardKey(quiz string) string {
	return fmt.Sprintf("%s:leaderboard:%s", s.prefix, quiz)
}

func (s *Service) publishTimeKey(quiz string) string {
	return fmt.Sprintf("%s:leaderboard:%s:time", s.prefix, quiz)
}

func (s *Service) publishPendingKey(quiz string) string {
	return fmt.Sprintf("%s:leaderboard:%s:pending", s.prefix, quiz)
}
