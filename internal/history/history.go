// Package history archives settled games.
package history

import (
	"context"
	"time"

	"github.com/osmelnikov/quizrush/internal/domain"
)

type Game struct {
	SessionID string
	UserID    string
	League    domain.League
	Outcome   domain.Status
	Score     int64
	Payout    int64
	EndedAt   time.Time
}

type Archive interface {
	Record(ctx context.Context, g Game) error
}
