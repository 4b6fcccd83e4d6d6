package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGConfig struct {
	DB *pgxpool.Pool
}

type PG struct {
	db *pgxpool.Pool
}

func NewPG(c PGConfig) *PG {
	return &PG{db: c.DB}
}

func (a *PG) Record(ctx context.Context, g Game) (err error) {
	const stmt = `
INSERT INTO games (session_id, user_id, league, outcome, score, payout, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id) DO NOTHING;`

	if _, err = a.db.Exec(ctx, stmt, g.SessionID, g.UserID, g.League, g.Outcome, g.Score, g.Payout, g.EndedAt); err != nil {
		return fmt.Errorf("record game: %w", err)
	}

	return nil
}
