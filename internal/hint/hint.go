// Package hint evaluates the rules for the three one-shot assistance
// actions. It holds no state of its own; the session carries the used-flags.
package hint

import (
	"math/rand/v2"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
)

// Check validates that kind may be applied to the session right now.
// It never mutates the session.
func Check(s *domain.Session, kind domain.HintKind) error {
	if s.Status != domain.StatusActive {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonSessionNotActive),
			errors.WithMessagef("session is not active: user=%s", s.UserID),
		)
	}

	switch kind {
	case domain.HintInsure, domain.HintRemoveTwo:
		if s.HintsUsed[kind] {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithReason(errors.ReasonHintAlreadyUsed),
				errors.WithMessagef("hint already used: user=%s hint=%s", s.UserID, kind),
			)
		}
	case domain.HintCashOut:
		// Cash-out is terminal, so "once per session" needs no flag.
	default:
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown hint kind: %s", kind),
		)
	}

	if kind == domain.HintRemoveTwo && len(s.VisibleOptions) < 4 {
		// The current question was already reduced.
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonHintAlreadyUsed),
			errors.WithMessagef("options already reduced: user=%s", s.UserID),
		)
	}

	return nil
}

// ReduceOptions implements RemoveTwo: of the three wrong options, two are
// dropped at random; the correct option and one wrong survivor remain, in
// their presented order.
func ReduceOptions(q domain.Question, visible []domain.Option) []domain.Option {
	var wrong []domain.Option
	for _, o := range visible {
		if o.OptionID != q.Correct {
			wrong = append(wrong, o)
		}
	}

	survivor := wrong[rand.IntN(len(wrong))]

	reduced := make([]domain.Option, 0, 2)
	for _, o := range visible {
		if o.OptionID == q.Correct || o.OptionID == survivor.OptionID {
			reduced = append(reduced, o)
		}
	}

	return reduced
}
