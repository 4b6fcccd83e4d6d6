// Package question supplies randomized question batches for a league.
package question

import (
	"context"
	"math/rand/v2"

	"github.com/osmelnikov/quizrush/internal/domain"
)

type Supply interface {
	// FetchBatch draws perDifficulty questions for every difficulty of the
	// league, sampling without replacement within the draw. It fails with
	// InsufficientQuestions when any difficulty has fewer eligible rows
	// than requested.
	FetchBatch(ctx context.Context, league domain.League, perDifficulty int) ([]domain.Question, error)
}

var optionIDs = []string{"A", "B", "C", "D"}

// shuffled builds the presented question: the correct answer and the three
// wrong ones in random order, labeled A through D.
func shuffled(questionID, text, correct string, wrong [3]string) domain.Question {
	answers := []string{correct, wrong[0], wrong[1], wrong[2]}
	rand.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	q := domain.Question{
		QuestionID:   questionID,
		QuestionText: text,
		Options:      make([]domain.Option, 0, len(answers)),
	}

	for i, a := range answers {
		q.Options = append(q.Options, domain.Option{
			OptionID:   optionIDs[i],
			OptionText: a,
		})
		if a == correct {
			q.Correct = optionIDs[i]
		}
	}

	return q
}
