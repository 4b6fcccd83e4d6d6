package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// League is a stakes bracket. It fixes the entry cost, the currency the
// cost and payout are denominated in, and the per-question deadline.
type League string

const (
	LeagueBronze League = "bronze"
	LeagueSilver League = "silver"
	LeagueGold   League = "gold"
)

func (l League) Valid() bool {
	switch l {
	case LeagueBronze, LeagueSilver, LeagueGold:
		return true
	}
	return false
}

type LeagueSettings struct {
	EntryCost      decimal.Decimal
	Currency       string
	AnswerDeadline time.Duration
}

// DefaultLeagues mirrors the reference deployment: higher-value leagues get
// shorter deadlines on purpose.
func DefaultLeagues() map[League]LeagueSettings {
	return map[League]LeagueSettings{
		LeagueBronze: {EntryCost: decimal.Zero, Currency: "silver", AnswerDeadline: 60 * time.Second},
		LeagueSilver: {EntryCost: decimal.NewFromInt(1000), Currency: "silver", AnswerDeadline: 50 * time.Second},
		LeagueGold:   {EntryCost: decimal.NewFromInt(500), Currency: "gold", AnswerDeadline: 40 * time.Second},
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties in ladder order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

type Question struct {
	QuestionID   string
	QuestionText string
	Options      []Option
	// Correct is the OptionID of the correct option.
	Correct string
}

type Option struct {
	OptionID   string
	OptionText string
}

type HintKind string

const (
	HintInsure    HintKind = "insure"
	HintRemoveTwo HintKind = "remove_two"
	HintCashOut   HintKind = "cash_out"
)

func (h HintKind) Valid() bool {
	switch h {
	case HintInsure, HintRemoveTwo, HintCashOut:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusCashedOut Status = "cashed_out"
	StatusTimedOut  Status = "timed_out"
	StatusSettled   Status = "settled"
)

// Terminal reports whether the session can never be mutated again.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Session is one user's live quiz run. At most one exists per user at any
// instant; all mutation goes through the engine under the per-user lock.
type Session struct {
	SessionID string
	UserID    string
	League    League

	QuestionIndex int
	Questions     []Question

	CurrentScore int64
	// InsuredFloor is meaningful only when HintsUsed[HintInsure] is set.
	InsuredFloor int64
	HintsUsed    map[HintKind]bool

	// VisibleOptions is the current question's option list; RemoveTwo is
	// the only thing that ever shrinks it.
	VisibleOptions []Option

	Status   Status
	Deadline time.Time
	Touched  time.Time
}

// Leaderboard is one league's weekly rating, sorted by score descending.
type Leaderboard struct {
	League  League
	Week    string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID string
	Score  int64
}

// CurrentQuestion returns the question at the session's current index.
// Callers must not invoke it once QuestionIndex has run off the batch.
func (s *Session) CurrentQuestion() Question {
	return s.Questions[s.QuestionIndex]
}

func (s *Session) Finished() bool {
	return s.QuestionIndex >= len(s.Questions)
}
