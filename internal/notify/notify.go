// Package notify pushes leaderboard snapshots to redis pub/sub so clients
// can watch standings without polling LEADERBOARD over the quiz protocol.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/event"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Username string `json:"username"`
		Total    int64  `json:"total"`
	}
)

// Redis is the single redis capability the notifier uses.
type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

type Notifier struct {
	redis  Redis
	prefix string
}

func New(c Config) *Notifier {
	n := &Notifier{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return n.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return n
}

// PublishLeaderboardUpdated fans the snapshot out to each listed user's
// channel.
func (n *Notifier) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := Leaderboard{
		Entries: make([]LeaderboardEntry, 0, len(e.Entries)),
	}

	for _, entry := range e.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Username: entry.Username,
			Total:    entry.Total,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return n.publish(ctx, entry.Username, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (n *Notifier) publish(ctx context.Context, user, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %v", event, err)
	}

	return n.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", n.prefix, user), b).Err()
}
