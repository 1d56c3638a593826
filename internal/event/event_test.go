package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizgen/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber only receives the events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("session.finished"),
						eventWithName("quiz.generated"),
					},
					subscribers: []subscriber{
						{name: "archive", subscribeTo: []string{"session.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("session.finished")}, out.received["archive"])
			},
		},

		"every finished session reaches every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("session.finished"),
						eventWithName("session.finished"),
					},
					subscribers: []subscriber{
						{name: "archive", subscribeTo: []string{"session.finished"}},
						{name: "leaderboard", subscribeTo: []string{"session.finished"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				twice := []event.Event{eventWithName("session.finished"), eventWithName("session.finished")}
				assert.ElementsMatch(t, twice, out.received["archive"])
				assert.ElementsMatch(t, twice, out.received["leaderboard"])
			},
		},

		"mixed events fan out by name": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("quiz.generated"),
						eventWithName("session.finished"),
						eventWithName("leaderboard.updated"),
						eventWithName("session.finished"),
					},
					subscribers: []subscriber{
						{name: "metrics", subscribeTo: []string{"quiz.generated", "session.finished"}},
						{name: "notifier", subscribeTo: []string{"leaderboard.updated"}},
						{name: "idle", subscribeTo: []string{"quiz.deleted"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{
					eventWithName("quiz.generated"),
					eventWithName("session.finished"),
					eventWithName("session.finished"),
				}, out.received["metrics"])
				assert.ElementsMatch(t, []event.Event{eventWithName("leaderboard.updated")}, out.received["notifier"])
				assert.Empty(t, out.received["idle"])
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus(event.WithPoolSize(2))
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, s.name, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_HandlerFailuresAreContained(t *testing.T) {
	var calls atomic.Int32

	b := event.NewBus()
	b.Subscribe("e", "panics", func(context.Context, event.Event) error {
		calls.Add(1)
		panic("boom")
	})
	b.Subscribe("e", "fails", func(context.Context, event.Event) error {
		calls.Add(1)
		return errors.New("failed")
	})
	b.Subscribe("e", "works", func(context.Context, event.Event) error {
		calls.Add(1)
		return nil
	})

	b.Publish(context.Background(), eventWithName("e"))
	b.Stop()

	assert.Equal(t, int32(3), calls.Load())
}

func TestBus_HandlerOutlivesPublisherContext(t *testing.T) {
	b := event.NewBus(event.WithTimeout(time.Second))

	var handlerErr error
	b.Subscribe("e", "slow", func(ctx context.Context, _ event.Event) error {
		time.Sleep(10 * time.Millisecond)
		handlerErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.Publish(ctx, eventWithName("e"))
	cancel()
	b.Stop()

	assert.NoError(t, handlerErr)
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
