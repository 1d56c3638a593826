package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizgen/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		QuizID  string             `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank       int     `json:"rank"`
		Username   string  `json:"username"`
		Percentage float64 `json:"percentage"`
	}
)

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	res := Leaderboard{
		QuizID:  l.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for i, e := range l.Entries {
		res.Entries = append(res.Entries, LeaderboardEntry{
			Rank:       i + 1,
			Username:   e.Username,
			Percentage: e.Percentage,
		})
	}

	return res
}

// PublishLeaderboardUpdated sends the new leaderboard to every user ranked on it.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Username, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, UserChannel(a.prefix, user), b).Err()
}

// UserChannel is the pubsub channel carrying notifications for user.
func UserChannel(prefix, user string) string {
	return fmt.Sprintf("%s:user:%s", prefix, user)
}
