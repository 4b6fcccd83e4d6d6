// Package leaderboard keeps the weekly per-league score rating.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
	"github.com/osmelnikov/quizrush/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond

	// ratingTTL keeps two weeks of ratings around before redis drops them.
	ratingTTL = 14 * 24 * time.Hour

	defaultTopN = 10
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return s.RecordResult(ctx, e.(domain.EventSessionEnded))
	})

	return s
}

// RecordResult adds a settled session's final score to the current week's
// rating for its league. Every outcome counts; losing with a banked score
// of 40 still ranks the run, as the reference deployment did.
func (s *Service) RecordResult(ctx context.Context, e domain.EventSessionEnded) error {
	if e.Score == 0 {
		return nil
	}

	key := s.ratingKey(e.League, weekOf(e.EndedAt))

	pipe := s.redis.TxPipeline()
	pipe.ZIncrBy(ctx, key, float64(e.Score), e.UserID)
	pipe.Expire(ctx, key, ratingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	return s.schedulePublish(ctx, e)
}

type GetLeaderboardRequest struct {
	League domain.League
	// Week in ISO yyyy-Www form; empty means the current week.
	Week string
	// Limit caps the number of entries; zero takes the default.
	Limit int
}

func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	week := req.Week
	if week == "" {
		week = weekOf(time.Now())
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTopN
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.ratingKey(req.League, week), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no rating yet: league=%s week=%s", req.League, week))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  int64(z.Score),
		})
	}

	return &domain.Leaderboard{
		League:  req.League,
		Week:    week,
		Entries: entries,
	}, nil
}

// GetRank returns the user's 1-based position in the current week's rating
// for the league.
func (s *Service) GetRank(ctx context.Context, league domain.League, userID string) (int64, error) {
	rank, err := s.redis.ZRevRank(ctx, s.ratingKey(league, weekOf(time.Now())), userID).Result()
	if err == redis.Nil {
		return 0, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user is not ranked: league=%s user=%s", league, userID))
	}
	if err != nil {
		return 0, fmt.Errorf("get rank: %w", err)
	}

	return rank + 1, nil
}

// schedulePublish throttles leaderboard.updated events: many sessions can
// settle in a short burst and fanning out a notification per settlement is
// waste. SetNX elects at most one publisher per interval.
func (s *Service) schedulePublish(ctx context.Context, e domain.EventSessionEnded) error {
	ok, err := s.redis.SetNX(ctx, s.throttleKey(e.League), e.EndedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{League: e.League})
	if err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})
	return nil
}

func (s *Service) ratingKey(league domain.League, week string) string {
	return fmt.Sprintf("%s:%s:%s:rating", s.prefix, league, week)
}

func (s *Service) throttleKey(league domain.League) string {
	return fmt.Sprintf("%s:%s:publish", s.prefix, league)
}

func weekOf(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
