package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/event"
	"github.com/victornm/quizd/internal/notify"
)

func TestNotifier_PublishLeaderboardUpdated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })

	eb := event.NewBus()
	n := notify.New(notify.Config{
		EventBus: eb,
		Redis:    rc,
		Prefix:   "test",
	})

	sub := rc.Subscribe(ctx, "test:user:alice")
	t.Cleanup(func() { sub.Close() })

	// Wait for the subscription before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	err = n.PublishLeaderboardUpdated(ctx, domain.EventLeaderboardUpdated{
		Entries: []domain.LeaderboardEntry{
			{Username: "alice", Total: 2},
			{Username: "bob", Total: 1},
		},
	})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got notify.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, domain.EventNameLeaderboardUpdated, got.Event)

	b, err := json.Marshal(got.Data)
	require.NoError(t, err)

	var board notify.Leaderboard
	require.NoError(t, json.Unmarshal(b, &board))
	require.Equal(t, notify.Leaderboard{
		Entries: []notify.LeaderboardEntry{
			{Username: "alice", Total: 2},
			{Username: "bob", Total: 1},
		},
	}, board)
}
