package question

import (
	"context"
	"fmt"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
)

// Static serves a fixed pool of questions from memory. Used in tests and
// the standalone dev mode.
type Static struct {
	pool map[domain.League]map[domain.Difficulty][]Row
}

// Row is an authored question before shuffling.
type Row struct {
	Text    string
	Correct string
	Wrong   [3]string
}

func NewStatic() *Static {
	return &Static{pool: make(map[domain.League]map[domain.Difficulty][]Row)}
}

func (s *Static) Add(league domain.League, d domain.Difficulty, rows ...Row) {
	if s.pool[league] == nil {
		s.pool[league] = make(map[domain.Difficulty][]Row)
	}
	s.pool[league][d] = append(s.pool[league][d], rows...)
}

// Fill seeds count generated questions per difficulty, enough for a full
// batch. The correct answer is always the text "correct".
func (s *Static) Fill(league domain.League, count int) {
	for _, d := range domain.Difficulties {
		for i := 0; i < count; i++ {
			s.Add(league, d, Row{
				Text:    fmt.Sprintf("%s %s question #%d", league, d, i),
				Correct: "correct",
				Wrong:   [3]string{"wrong 1", "wrong 2", "wrong 3"},
			})
		}
	}
}

func (s *Static) FetchBatch(_ context.Context, league domain.League, perDifficulty int) ([]domain.Question, error) {
	batch := make([]domain.Question, 0, perDifficulty*len(domain.Difficulties))

	for _, d := range domain.Difficulties {
		rows := s.pool[league][d]
		if len(rows) < perDifficulty {
			return nil, errors.New(errors.CodeResourceExhausted,
				errors.WithReason(errors.ReasonInsufficientQuestions),
				errors.WithMessagef("not enough questions: league=%s difficulty=%s want=%d have=%d",
					league, d, perDifficulty, len(rows)),
			)
		}

		for i, row := range rows[:perDifficulty] {
			batch = append(batch, shuffled(fmt.Sprintf("%s-%s-%d", league, d, i), row.Text, row.Correct, row.Wrong))
		}
	}

	return batch, nil
}
