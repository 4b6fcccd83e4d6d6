package question

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
)

type PGConfig struct {
	DB *pgxpool.Pool
}

// PG draws question batches from the questions table.
type PG struct {
	db *pgxpool.Pool
}

func NewPG(c PGConfig) *PG {
	return &PG{db: c.DB}
}

func (s *PG) FetchBatch(ctx context.Context, league domain.League, perDifficulty int) ([]domain.Question, error) {
	batch := make([]domain.Question, 0, perDifficulty*len(domain.Difficulties))

	for _, d := range domain.Difficulties {
		qs, err := s.fetchTier(ctx, league, d, perDifficulty)
		if err != nil {
			return nil, err
		}

		if len(qs) < perDifficulty {
			return nil, errors.New(errors.CodeResourceExhausted,
				errors.WithReason(errors.ReasonInsufficientQuestions),
				errors.WithMessagef("not enough questions: league=%s difficulty=%s want=%d have=%d",
					league, d, perDifficulty, len(qs)),
			)
		}

		batch = append(batch, qs...)
	}

	return batch, nil
}

func (s *PG) fetchTier(ctx context.Context, league domain.League, d domain.Difficulty, count int) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, question_text, correct_answer, answer_2, answer_3, answer_4
FROM questions
WHERE league = $1 AND difficulty = $2
ORDER BY random()
LIMIT $3;`

	rows, err := s.db.Query(ctx, stmt, league, d, count)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			id      int64
			text    string
			correct string
			wrong   [3]string
		)
		if err := r.Scan(&id, &text, &correct, &wrong[0], &wrong[1], &wrong[2]); err != nil {
			return domain.Question{}, err
		}

		return shuffled(strconv.FormatInt(id, 10), text, correct, wrong), nil
	})
}
