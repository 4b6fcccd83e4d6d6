// Package engine is the session state machine. It owns a session from entry
// to settlement: sequencing questions, applying hints, racing the answer
// against the deadline timer, and crediting the payout exactly once.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
	"github.com/osmelnikov/quizrush/internal/event"
	"github.com/osmelnikov/quizrush/internal/hint"
	"github.com/osmelnikov/quizrush/internal/history"
	"github.com/osmelnikov/quizrush/internal/ladder"
	"github.com/osmelnikov/quizrush/internal/ledger"
	"github.com/osmelnikov/quizrush/internal/question"
	"github.com/osmelnikov/quizrush/internal/store"
	"github.com/osmelnikov/quizrush/internal/telemetry"
)

const (
	defaultQuestionsPerDifficulty = 5
	defaultSessionTTL             = 10 * time.Minute
	defaultSweepInterval          = time.Minute
)

type Config struct {
	Store    *store.Store
	Supply   question.Supply
	Ledger   ledger.Ledger
	History  history.Archive
	EventBus *event.Bus

	// Ladder defaults to the reference 15-step ladder.
	Ladder ladder.Ladder
	// Leagues defaults to domain.DefaultLeagues. Tests inject leagues with
	// millisecond deadlines here.
	Leagues map[domain.League]domain.LeagueSettings

	// QuestionsPerDifficulty defaults to 5 (a 15 question batch).
	QuestionsPerDifficulty int

	// SessionTTL bounds how long an untouched session may linger before the
	// sweeper reaps it. Zero takes the default; negative disables sweeping.
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

type Service struct {
	store   *store.Store
	supply  question.Supply
	ledger  ledger.Ledger
	history history.Archive
	eb      *event.Bus

	ladder  ladder.Ladder
	leagues map[domain.League]domain.LeagueSettings
	perDiff int

	timers timerSet
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		supply:  c.Supply,
		ledger:  c.Ledger,
		history: c.History,
		eb:      c.EventBus,
		ladder:  c.Ladder,
		leagues: c.Leagues,
		perDiff: c.QuestionsPerDifficulty,
	}

	if s.ladder == nil {
		s.ladder = ladder.Default
	}
	if s.leagues == nil {
		s.leagues = domain.DefaultLeagues()
	}
	if s.perDiff == 0 {
		s.perDiff = defaultQuestionsPerDifficulty
	}

	ttl := c.SessionTTL
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	interval := c.SweepInterval
	if interval == 0 {
		interval = defaultSweepInterval
	}
	if ttl > 0 {
		s.store.StartSweeper(interval, ttl, s.reap)
	}

	return s
}

func (s *Service) Close() {
	s.timers.stopAll()
	s.store.Close()
}

type StartRequest struct {
	UserID string
	League domain.League
}

type StartResponse struct {
	SessionID     string
	QuestionIndex int
	QuestionText  string
	Options       []domain.Option
	Deadline      time.Time
}

// Start enters the user into a session: the entry fee is debited and the
// question batch drawn while the user's store slot is held, so a failed draw
// refunds the debit and leaves no session behind.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	if !req.League.Valid() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown league: %s", req.League),
		)
	}
	settings := s.leagues[req.League]

	sess, err := s.store.Create(req.UserID, func() (*domain.Session, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate session ID: %w", err)
		}

		if err := s.ledger.Debit(ctx, req.UserID, settings.Currency, settings.EntryCost); err != nil {
			return nil, err
		}

		batch, err := s.supply.FetchBatch(ctx, req.League, s.perDiff)
		if err != nil {
			// Debit and draw are one conceptual transaction: a failed draw
			// means no charge occurred.
			if rerr := s.ledger.Credit(ctx, req.UserID, settings.Currency, settings.EntryCost, "refund:"+id.String()); rerr != nil {
				slog.ErrorContext(ctx, "engine: refund entry fee failed",
					"user", req.UserID, "session", id.String(), "error", rerr)
			}
			return nil, err
		}

		sess := &domain.Session{
			SessionID:      id.String(),
			UserID:         req.UserID,
			League:         req.League,
			Questions:      batch,
			VisibleOptions: batch[0].Options,
			HintsUsed:      make(map[domain.HintKind]bool),
			Status:         domain.StatusActive,
			Deadline:       time.Now().Add(settings.AnswerDeadline),
		}

		// Armed before the session becomes visible; an early fire just
		// blocks on the slot until Create returns.
		s.armTimer(sess.UserID, sess.SessionID, 0, settings.AnswerDeadline)

		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.SessionsStarted.WithLabelValues(string(req.League)).Inc()

	q := sess.Questions[0]
	s.eb.Publish(ctx, domain.EventQuestionPresented{
		UserID:        sess.UserID,
		SessionID:     sess.SessionID,
		QuestionIndex: 0,
		QuestionText:  q.QuestionText,
		Options:       sess.VisibleOptions,
		Deadline:      sess.Deadline,
	})

	return &StartResponse{
		SessionID:     sess.SessionID,
		QuestionIndex: 0,
		QuestionText:  q.QuestionText,
		Options:       sess.VisibleOptions,
		Deadline:      sess.Deadline,
	}, nil
}

type AnswerRequest struct {
	UserID        string
	QuestionIndex int
	OptionID      string
}

type AnswerResponse struct {
	Correct bool
	Score   int64
	Status  domain.Status
	Payout  int64
}

// Answer applies a submitted answer. Answers for any index other than the
// session's current one are rejected as stale; that is the idempotency
// guard against double submission and the loser of the answer-vs-timeout
// race observing the advanced state.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	var (
		resp      AnswerResponse
		out       outcome
		sessionID string
	)

	err := s.store.Update(req.UserID, func(sess *domain.Session) error {
		if sess.Status != domain.StatusActive {
			return errSessionNotActive(req.UserID)
		}
		sessionID = sess.SessionID

		if req.QuestionIndex != sess.QuestionIndex {
			return errStale(req.UserID, req.QuestionIndex, sess.QuestionIndex)
		}

		var chosen *domain.Option
		for i := range sess.VisibleOptions {
			if sess.VisibleOptions[i].OptionID == req.OptionID {
				chosen = &sess.VisibleOptions[i]
			}
		}
		if chosen == nil {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("option is not available: user=%s option=%s", req.UserID, req.OptionID),
			)
		}

		q := sess.CurrentQuestion()
		resp.Correct = q.Correct == req.OptionID

		if resp.Correct {
			sess.CurrentScore += s.ladder.ValueAt(sess.QuestionIndex)
			sess.QuestionIndex++

			if sess.Finished() {
				s.terminate(ctx, sess, domain.StatusWon, &out)
			} else {
				s.present(sess, &out)
			}
		} else {
			s.terminate(ctx, sess, domain.StatusLost, &out)
		}

		resp.Score = sess.CurrentScore
		resp.Status = out.status(sess)
		resp.Payout = out.payout
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.events = append([]event.Event{domain.EventAnswerResult{
		UserID:        req.UserID,
		SessionID:     sessionID,
		QuestionIndex: req.QuestionIndex,
		Correct:       resp.Correct,
		Score:         resp.Score,
	}}, out.events...)

	s.finish(ctx, req.UserID, &out)
	return &resp, nil
}

type HintRequest struct {
	UserID string
	Kind   domain.HintKind
}

type HintResponse struct {
	Status       domain.Status
	Score        int64
	InsuredFloor int64
	Options      []domain.Option
	Payout       int64
}

// Hint applies one of the three one-shot assistance actions.
func (s *Service) Hint(ctx context.Context, req HintRequest) (*HintResponse, error) {
	var (
		resp HintResponse
		out  outcome
	)

	err := s.store.Update(req.UserID, func(sess *domain.Session) error {
		if err := hint.Check(sess, req.Kind); err != nil {
			return err
		}

		switch req.Kind {
		case domain.HintInsure:
			sess.HintsUsed[domain.HintInsure] = true
			sess.InsuredFloor = sess.CurrentScore

		case domain.HintRemoveTwo:
			sess.HintsUsed[domain.HintRemoveTwo] = true
			sess.VisibleOptions = hint.ReduceOptions(sess.CurrentQuestion(), sess.VisibleOptions)

			// Re-present with the reduced options; the deadline keeps
			// running, hints buy information, not time.
			out.events = append(out.events, domain.EventQuestionPresented{
				UserID:        sess.UserID,
				SessionID:     sess.SessionID,
				QuestionIndex: sess.QuestionIndex,
				QuestionText:  sess.CurrentQuestion().QuestionText,
				Options:       sess.VisibleOptions,
				Deadline:      sess.Deadline,
			})

		case domain.HintCashOut:
			s.terminate(ctx, sess, domain.StatusCashedOut, &out)
		}

		resp.Status = out.status(sess)
		resp.Score = sess.CurrentScore
		resp.InsuredFloor = sess.InsuredFloor
		resp.Options = sess.VisibleOptions
		resp.Payout = out.payout
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.HintsUsed.WithLabelValues(string(req.Kind)).Inc()

	s.finish(ctx, req.UserID, &out)
	return &resp, nil
}

// Session returns a snapshot of the user's live session.
func (s *Service) Session(userID string) (domain.Session, bool) {
	return s.store.Get(userID)
}

// expire is raised by the deadline timer. It loses the race against an
// answer for the same index by finding the state advanced, in which case it
// is a silent no-op.
func (s *Service) expire(userID, sessionID string, questionIndex int) {
	ctx := context.Background()

	var out outcome
	err := s.store.Update(userID, func(sess *domain.Session) error {
		if sess.Status != domain.StatusActive ||
			sess.SessionID != sessionID ||
			sess.QuestionIndex != questionIndex {
			return nil
		}

		s.terminate(ctx, sess, domain.StatusTimedOut, &out)
		return nil
	})
	if err != nil && !errors.ReasonIs(err, errors.ReasonSessionNotActive) {
		slog.ErrorContext(ctx, "engine: deadline handling failed",
			"user", userID, "session", sessionID, "error", err)
	}

	s.finish(ctx, userID, &out)
}

// reap handles sessions the sweeper found idle: an Active one missed its
// timer somehow and is timed out; a terminal one is a settlement that
// failed earlier and is retried. The ledger's idempotency key makes the
// retry safe.
func (s *Service) reap(userID string) {
	ctx := context.Background()

	var out outcome
	err := s.store.Update(userID, func(sess *domain.Session) error {
		switch sess.Status {
		case domain.StatusActive:
			s.terminate(ctx, sess, domain.StatusTimedOut, &out)
		case domain.StatusSettled:
			// Settled already; the session is about to leave the store.
		default:
			s.settle(ctx, sess, &out)
		}
		return nil
	})
	if err != nil && !errors.ReasonIs(err, errors.ReasonSessionNotActive) {
		slog.ErrorContext(ctx, "engine: reap failed", "user", userID, "error", err)
	}

	s.finish(ctx, userID, &out)
}

// terminate moves an Active session into the given terminal status and
// settles it. Caller holds the per-user lock.
func (s *Service) terminate(ctx context.Context, sess *domain.Session, status domain.Status, out *outcome) {
	sess.Status = status
	s.timers.stop(sess.UserID)

	s.settle(ctx, sess, out)
}

// settle credits the payout exactly once, archives the game and schedules
// the session for removal. A failed credit leaves the session in its
// terminal status for the sweeper to retry; the settlement key guarantees
// the retry cannot double-credit.
func (s *Service) settle(ctx context.Context, sess *domain.Session, out *outcome) {
	payout := payoutFor(sess)
	settings := s.leagues[sess.League]

	if payout > 0 {
		credit := func() error {
			err := s.ledger.Credit(ctx, sess.UserID, settings.Currency,
				decimal.NewFromInt(payout), "settle:"+sess.SessionID)
			if err != nil {
				telemetry.SettlementRetries.Inc()
			}
			return err
		}

		if err := backoff.Retry(credit, settlementBackoff(ctx)); err != nil {
			slog.ErrorContext(ctx, "engine: settlement credit failed, will retry on sweep",
				"user", sess.UserID, "session", sess.SessionID, "payout", payout, "error", err)
			return
		}
	}

	ended := time.Now()
	if s.history != nil {
		err := s.history.Record(ctx, history.Game{
			SessionID: sess.SessionID,
			UserID:    sess.UserID,
			League:    sess.League,
			Outcome:   sess.Status,
			Score:     sess.CurrentScore,
			Payout:    payout,
			EndedAt:   ended,
		})
		if err != nil {
			// The payout is already safe; history is best effort.
			slog.ErrorContext(ctx, "engine: archive game failed",
				"session", sess.SessionID, "error", err)
		}
	}

	telemetry.SessionsSettled.WithLabelValues(string(sess.League), string(sess.Status)).Inc()

	out.ended = &domain.EventSessionEnded{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		League:    sess.League,
		Outcome:   sess.Status,
		Score:     sess.CurrentScore,
		Payout:    payout,
		EndedAt:   ended,
	}
	out.payout = payout

	sess.Status = domain.StatusSettled
}

// present exposes the session's current question and restarts the deadline
// clock. Caller holds the per-user lock.
func (s *Service) present(sess *domain.Session, out *outcome) {
	settings := s.leagues[sess.League]
	q := sess.CurrentQuestion()

	sess.VisibleOptions = q.Options
	sess.Deadline = time.Now().Add(settings.AnswerDeadline)

	s.armTimer(sess.UserID, sess.SessionID, sess.QuestionIndex, settings.AnswerDeadline)

	out.events = append(out.events, domain.EventQuestionPresented{
		UserID:        sess.UserID,
		SessionID:     sess.SessionID,
		QuestionIndex: sess.QuestionIndex,
		QuestionText:  q.QuestionText,
		Options:       sess.VisibleOptions,
		Deadline:      sess.Deadline,
	})
}

// finish runs after the per-user lock is released: removes a settled
// session from the store and publishes the collected notifications.
func (s *Service) finish(ctx context.Context, userID string, out *outcome) {
	if out.ended != nil {
		s.store.Delete(userID)
	}

	for _, e := range out.events {
		s.eb.Publish(ctx, e)
	}
	if out.ended != nil {
		s.eb.Publish(ctx, *out.ended)
	}
}

func (s *Service) armTimer(userID, sessionID string, questionIndex int, d time.Duration) {
	s.timers.arm(userID, d, func() {
		s.expire(userID, sessionID, questionIndex)
	})
}

// outcome collects what must happen after the per-user lock is released.
type outcome struct {
	events []event.Event
	ended  *domain.EventSessionEnded
	payout int64
}

// status reports the session's terminal outcome to the caller, hiding the
// internal Settled hop.
func (o *outcome) status(sess *domain.Session) domain.Status {
	if o.ended != nil {
		return o.ended.Outcome
	}
	return sess.Status
}

// payoutFor applies the settlement rule: full score on Won and CashedOut,
// the insured floor (or nothing) on Lost and TimedOut.
func payoutFor(sess *domain.Session) int64 {
	switch sess.Status {
	case domain.StatusWon, domain.StatusCashedOut:
		return sess.CurrentScore
	case domain.StatusLost, domain.StatusTimedOut:
		if sess.HintsUsed[domain.HintInsure] {
			return sess.InsuredFloor
		}
		return 0
	}
	return 0
}

func settlementBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	// The payout must survive the caller hanging up.
	return backoff.WithContext(b, context.WithoutCancel(ctx))
}

func errSessionNotActive(userID string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(errors.ReasonSessionNotActive),
		errors.WithMessagef("session is not active: user=%s", userID),
	)
}

func errStale(userID string, got, want int) error {
	return errors.New(errors.CodeOutOfRange,
		errors.WithReason(errors.ReasonStaleEvent),
		errors.WithMessagef("stale answer: user=%s index=%d current=%d", userID, got, want),
	)
}
