package domain

import "time"

const (
	EventNameQuestionPresented  = "question.presented"
	EventNameAnswerResult       = "answer.result"
	EventNameSessionEnded       = "session.ended"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuestionPresented struct {
	UserID        string
	SessionID     string
	QuestionIndex int
	QuestionText  string
	Options       []Option
	Deadline      time.Time
}

func (EventQuestionPresented) Name() string { return EventNameQuestionPresented }

type EventAnswerResult struct {
	UserID        string
	SessionID     string
	QuestionIndex int
	Correct       bool
	Score         int64
}

func (EventAnswerResult) Name() string { return EventNameAnswerResult }

type EventSessionEnded struct {
	UserID    string
	SessionID string
	League    League
	Outcome   Status
	Score     int64
	Payout    int64
	EndedAt   time.Time
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
