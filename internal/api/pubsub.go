package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osmelnikov/quizrush/internal/domain"
)

const maxConcurrent = 100

// Notification is the envelope pushed onto a user's redis channel. The
// presentation layer (bot, web client) subscribes to its user's channel and
// renders these.
type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	QuestionPresented struct {
		SessionID     string    `json:"session_id"`
		QuestionIndex int       `json:"question_index"`
		QuestionText  string    `json:"question_text"`
		Options       []Option  `json:"options"`
		Deadline      time.Time `json:"deadline"`
	}

	AnswerResult struct {
		QuestionIndex int   `json:"question_index"`
		Correct       bool  `json:"correct"`
		Score         int64 `json:"score"`
	}

	SessionEnded struct {
		SessionID string `json:"session_id"`
		League    string `json:"league"`
		Reason    string `json:"reason"`
		Score     int64  `json:"score"`
		Payout    int64  `json:"payout"`
	}

	Leaderboard struct {
		League  string             `json:"league"`
		Week    string             `json:"week"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		UserID string `json:"user_id"`
		Score  int64  `json:"score"`
	}
)

func (a *API) NotifyQuestionPresented(ctx context.Context, e domain.EventQuestionPresented) error {
	return a.publishNotification(ctx, e.UserID, e.Name(), QuestionPresented{
		SessionID:     e.SessionID,
		QuestionIndex: e.QuestionIndex,
		QuestionText:  e.QuestionText,
		Options:       options(e.Options),
		Deadline:      e.Deadline,
	})
}

func (a *API) NotifyAnswerResult(ctx context.Context, e domain.EventAnswerResult) error {
	return a.publishNotification(ctx, e.UserID, e.Name(), AnswerResult{
		QuestionIndex: e.QuestionIndex,
		Correct:       e.Correct,
		Score:         e.Score,
	})
}

func (a *API) NotifySessionEnded(ctx context.Context, e domain.EventSessionEnded) error {
	return a.publishNotification(ctx, e.UserID, e.Name(), SessionEnded{
		SessionID: e.SessionID,
		League:    string(e.League),
		Reason:    string(e.Outcome),
		Score:     e.Score,
		Payout:    e.Payout,
	})
}

// NotifyLeaderboardUpdated fans the refreshed rating out to every ranked
// user's channel.
func (a *API) NotifyLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := leaderboardView(l)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.UserID, e.Name(), data)
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

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}

func leaderboardView(l domain.Leaderboard) Leaderboard {
	v := Leaderboard{
		League:  string(l.League),
		Week:    l.Week,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		v.Entries = append(v.Entries, LeaderboardEntry{UserID: e.UserID, Score: e.Score})
	}
	return v
}
