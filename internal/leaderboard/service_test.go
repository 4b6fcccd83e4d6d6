package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
	"github.com/osmelnikov/quizrush/internal/event"
	"github.com/osmelnikov/quizrush/internal/leaderboard"
)

func TestService_RecordResult(t *testing.T) {
	s := makeService(t)

	now := time.Now()
	for _, e := range []domain.EventSessionEnded{
		{UserID: "u1", League: domain.LeagueSilver, Outcome: domain.StatusWon, Score: 2585, EndedAt: now},
		{UserID: "u2", League: domain.LeagueSilver, Outcome: domain.StatusCashedOut, Score: 35, EndedAt: now},
		{UserID: "u2", League: domain.LeagueSilver, Outcome: domain.StatusLost, Score: 15, EndedAt: now},
		{UserID: "u3", League: domain.LeagueGold, Outcome: domain.StatusWon, Score: 100, EndedAt: now},
	} {
		require.NoError(t, s.RecordResult(context.Background(), e))
	}

	l, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{League: domain.LeagueSilver})
	require.NoError(t, err)

	want := []domain.LeaderboardEntry{
		{UserID: "u1", Score: 2585},
		{UserID: "u2", Score: 50},
	}
	assert.Equal(t, want, l.Entries, "scores accumulate per user within a league and week")

	rank, err := s.GetRank(context.Background(), domain.LeagueSilver, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rank)
}

func TestService_ZeroScoreDoesNotRank(t *testing.T) {
	s := makeService(t)

	err := s.RecordResult(context.Background(), domain.EventSessionEnded{
		UserID: "u1", League: domain.LeagueBronze, Outcome: domain.StatusTimedOut, Score: 0, EndedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{League: domain.LeagueBronze})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestService_PublishThrottle(t *testing.T) {
	tests := map[string]struct {
		arrange func() []domain.EventSessionEnded
		assert  func(t *testing.T, published []domain.EventLeaderboardUpdated)
	}{
		"a burst of settlements in one league publishes once": {
			arrange: func() []domain.EventSessionEnded {
				now := time.Now()
				return []domain.EventSessionEnded{
					{UserID: "u1", League: domain.LeagueSilver, Score: 5, EndedAt: now},
					{UserID: "u2", League: domain.LeagueSilver, Score: 15, EndedAt: now},
					{UserID: "u3", League: domain.LeagueSilver, Score: 35, EndedAt: now},
				}
			},
			assert: func(t *testing.T, published []domain.EventLeaderboardUpdated) {
				require.Len(t, published, 1)
				assert.Equal(t, domain.LeagueSilver, published[0].Leaderboard.League)
			},
		},

		"different leagues throttle independently": {
			arrange: func() []domain.EventSessionEnded {
				now := time.Now()
				return []domain.EventSessionEnded{
					{UserID: "u1", League: domain.LeagueSilver, Score: 5, EndedAt: now},
					{UserID: "u2", League: domain.LeagueGold, Score: 100, EndedAt: now},
				}
			},
			assert: func(t *testing.T, published []domain.EventLeaderboardUpdated) {
				require.Len(t, published, 2)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			eb := event.NewBus()

			var (
				mu        sync.Mutex
				published []domain.EventLeaderboardUpdated
			)
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(_ context.Context, e event.Event) error {
				mu.Lock()
				published = append(published, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))

			for _, e := range tt.arrange() {
				require.NoError(t, s.RecordResult(context.Background(), e))
			}

			eb.Stop()

			mu.Lock()
			defer mu.Unlock()
			tt.assert(t, published)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test:rating",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
