// Package leaderboard keeps the aggregated standings in a redis sorted set
// in front of the persistence gateway. Score updates arrive as events; cold
// or flushed caches are rebuilt from the store on read.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/event"
)

// publishInterval throttles leaderboard.updated events: many scores can
// change in a short burst, one snapshot per interval is enough.
const publishInterval = 200 * time.Millisecond

// Gateway is the slice of the persistence store the leaderboard needs.
type Gateway interface {
	LeaderboardTotals(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	EventBus *event.Bus
	Gateway  Gateway
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	gw     Gateway
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		gw:     c.Gateway,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.OnScoreUpdated(ctx, e.(domain.EventScoreUpdated))
	})

	return s
}

// Totals returns the standings, highest total first. Served from the redis
// sorted set when warm; rebuilt from the gateway when the set is empty. A
// redis outage degrades to a direct gateway read.
func (s *Service) Totals(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.standingsKey(), 0, -1).Result()
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: cache read failed, serving from store", "error", err)
		return s.gw.LeaderboardTotals(ctx)
	}

	if len(res) == 0 {
		return s.rebuild(ctx)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Username: z.Member.(string),
			Total:    int64(z.Score),
		})
	}

	return entries, nil
}

// rebuild loads totals from the store and backfills the sorted set.
func (s *Service) rebuild(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	entries, err := s.gw.LeaderboardTotals(ctx)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return entries, nil
	}

	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: float64(e.Total), Member: e.Username})
	}

	if err := s.redis.ZAdd(ctx, s.standingsKey(), members...).Err(); err != nil {
		slog.WarnContext(ctx, "leaderboard: cache backfill failed", "error", err)
	}

	return entries, nil
}

// OnScoreUpdated writes the user's new total into the sorted set and
// schedules a snapshot publication.
func (s *Service) OnScoreUpdated(ctx context.Context, e domain.EventScoreUpdated) error {
	// Increments for user ids without an account row have no display name;
	// the store join drops them too.
	if e.Username == "" {
		return nil
	}

	// If redis lost the set since the last read, writing a lone member
	// would leave a partial cache that Totals then trusts. Repopulate from
	// the store first; the store already holds this event's increment.
	n, err := s.redis.Exists(ctx, s.standingsKey()).Result()
	if err != nil {
		return fmt.Errorf("check standings: %w", err)
	}
	if n == 0 {
		if _, err := s.rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild standings: %w", err)
		}
	}

	if err := s.redis.ZAdd(ctx, s.standingsKey(), redis.Z{
		Score:  float64(e.Total),
		Member: e.Username,
	}).Err(); err != nil {
		return fmt.Errorf("update standings: %w", err)
	}

	return s.schedulePublish(ctx)
}

// schedulePublish publishes at most one leaderboard.updated snapshot per
// interval. The SetNX key doubles as the cross-instance election so only
// one publisher wins the interval.
func (s *Service) schedulePublish(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	entries, err := s.Totals(ctx)
	if err != nil {
		return fmt.Errorf("snapshot standings: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Entries: entries})
	return nil
}

func (s *Service) standingsKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) throttleKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
