package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/event"
	"github.com/victornm/quizd/internal/leaderboard"
)

func TestService_OnScoreUpdated(t *testing.T) {
	s := makeService(t)

	err := s.OnScoreUpdated(context.Background(), domain.EventScoreUpdated{
		UserID:   "u-1",
		Username: "alice",
		Total:    3,
	})
	require.NoError(t, err)

	got, err := s.Totals(context.Background())
	require.NoError(t, err)

	want := []domain.LeaderboardEntry{
		{Username: "alice", Total: 3},
	}
	require.Equal(t, want, got)
}

func TestService_Totals_Ordering(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	for _, e := range []domain.EventScoreUpdated{
		{Username: "alice", Total: 1},
		{Username: "bob", Total: 5},
		{Username: "carol", Total: 3},
	} {
		require.NoError(t, s.OnScoreUpdated(ctx, e))
	}

	got, err := s.Totals(ctx)
	require.NoError(t, err)

	want := []domain.LeaderboardEntry{
		{Username: "bob", Total: 5},
		{Username: "carol", Total: 3},
		{Username: "alice", Total: 1},
	}
	require.Equal(t, want, got)
}

func TestService_Totals_RebuildsColdCache(t *testing.T) {
	stored := []domain.LeaderboardEntry{
		{Username: "bob", Total: 2},
		{Username: "alice", Total: 1},
	}

	s := makeService(t,
		withGateway(gatewayFunc(func(context.Context) ([]domain.LeaderboardEntry, error) {
			return stored, nil
		})),
	)

	// First read: empty sorted set, served from the store and backfilled.
	got, err := s.Totals(context.Background())
	require.NoError(t, err)
	require.Equal(t, stored, got)

	// Second read: now served from the warm cache, same result.
	got, err = s.Totals(context.Background())
	require.NoError(t, err)
	require.Equal(t, stored, got)
}

func TestService_Totals_FallsBackWhenRedisDown(t *testing.T) {
	stored := []domain.LeaderboardEntry{
		{Username: "alice", Total: 1},
	}

	rs := miniredis.RunT(t)
	s := makeService(t,
		withRedis(makeRedis(t, rs.Addr())),
		withGateway(gatewayFunc(func(context.Context) ([]domain.LeaderboardEntry, error) {
			return stored, nil
		})),
	)

	rs.Close()

	got, err := s.Totals(context.Background())
	require.NoError(t, err)
	require.Equal(t, stored, got)
}

func TestService_PublishThrottling(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventScoreUpdated
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"one score update publishes one snapshot": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{Username: "alice", Total: 1},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1)
				require.Equal(t, []domain.LeaderboardEntry{
					{Username: "alice", Total: 1},
				}, out.publishedEvents[0].Entries)
			},
		},

		"a burst of score updates within the interval publishes one snapshot": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventScoreUpdated{
						{Username: "alice", Total: 1},
						{Username: "bob", Total: 1},
						{Username: "alice", Total: 2},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "publishes are throttled to one per interval")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t,
				withEventBus(eb),
			)

			for _, e := range in.receivedEvents {
				require.NoError(t, s.OnScoreUpdated(context.Background(), e))
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_RepopulatesAfterCacheLoss(t *testing.T) {
	stored := []domain.LeaderboardEntry{
		{Username: "alice", Total: 5},
		{Username: "bob", Total: 2},
	}

	rs := miniredis.RunT(t)
	s := makeService(t,
		withRedis(makeRedis(t, rs.Addr())),
		withGateway(gatewayFunc(func(context.Context) ([]domain.LeaderboardEntry, error) {
			return stored, nil
		})),
	)
	ctx := context.Background()

	// Warm the cache, then lose everything redis held.
	require.NoError(t, s.OnScoreUpdated(ctx, domain.EventScoreUpdated{Username: "alice", Total: 5}))
	rs.FlushAll()

	// The next increment must not leave a one-member cache behind.
	require.NoError(t, s.OnScoreUpdated(ctx, domain.EventScoreUpdated{Username: "bob", Total: 2}))

	got, err := s.Totals(ctx)
	require.NoError(t, err)
	require.Equal(t, stored, got, "users outside the increment must survive the cache loss")
}

func TestService_SkipsAnonymousIncrements(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	require.NoError(t, s.OnScoreUpdated(ctx, domain.EventScoreUpdated{
		UserID: "ghost", Username: "", Total: 1,
	}))

	got, err := s.Totals(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

type gatewayFunc func(ctx context.Context) ([]domain.LeaderboardEntry, error)

func (f gatewayFunc) LeaderboardTotals(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	return f(ctx)
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	t.Helper()

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Gateway: gatewayFunc(func(context.Context) ([]domain.LeaderboardEntry, error) {
			return nil, nil
		}),
		Prefix: "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.Redis == nil {
		rs := miniredis.RunT(t)
		c.Redis = makeRedis(t, rs.Addr())
	}

	return leaderboard.NewService(c)
}

func makeRedis(t *testing.T, addr string) redis.UniversalClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return rc
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withGateway(gw leaderboard.Gateway) options {
	return func(c *leaderboard.Config) {
		c.Gateway = gw
	}
}

func withRedis(rc redis.UniversalClient) options {
	return func(c *leaderboard.Config) {
		c.Redis = rc
	}
}
