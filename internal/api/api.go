package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/engine"
	"github.com/osmelnikov/quizrush/internal/errors"
	"github.com/osmelnikov/quizrush/internal/event"
	"github.com/osmelnikov/quizrush/internal/leaderboard"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Engine       *engine.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	engine *engine.Service
	lb     *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		engine: c.Engine,
		lb:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/sessions", a.StartSession)
	v1.GET("/sessions/:user_id", a.GetSession)
	v1.POST("/sessions/:user_id/answers", a.SubmitAnswer)
	v1.POST("/sessions/:user_id/hints", a.InvokeHint)
	v1.GET("/leaderboards/:league", a.GetLeaderboard)

	// Engine events become per-user notifications.
	c.EventBus.Subscribe(domain.EventNameQuestionPresented, func(ctx context.Context, e event.Event) error {
		return a.NotifyQuestionPresented(ctx, e.(domain.EventQuestionPresented))
	})
	c.EventBus.Subscribe(domain.EventNameAnswerResult, func(ctx context.Context, e event.Event) error {
		return a.NotifyAnswerResult(ctx, e.(domain.EventAnswerResult))
	})
	c.EventBus.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return a.NotifySessionEnded(ctx, e.(domain.EventSessionEnded))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.NotifyLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type (
	StartSessionRequest struct {
		UserID string `json:"user_id" binding:"required"`
		League string `json:"league" binding:"required"`
	}

	SessionView struct {
		SessionID     string    `json:"session_id"`
		League        string    `json:"league"`
		QuestionIndex int       `json:"question_index"`
		QuestionText  string    `json:"question_text"`
		Options       []Option  `json:"options"`
		Score         int64     `json:"score"`
		Deadline      time.Time `json:"deadline"`
	}

	Option struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
)

func (a *API) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.engine.Start(c.Request.Context(), engine.StartRequest{
		UserID: req.UserID,
		League: domain.League(req.League),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionView{
		SessionID:     resp.SessionID,
		League:        req.League,
		QuestionIndex: resp.QuestionIndex,
		QuestionText:  resp.QuestionText,
		Options:       options(resp.Options),
		Deadline:      resp.Deadline,
	})
}

func (a *API) GetSession(c *gin.Context) {
	s, ok := a.engine.Session(c.Param("user_id"))
	if !ok || s.Status != domain.StatusActive || s.Finished() {
		abortWithError(c, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no live session: user=%s", c.Param("user_id"))))
		return
	}

	c.JSON(http.StatusOK, SessionView{
		SessionID:     s.SessionID,
		League:        string(s.League),
		QuestionIndex: s.QuestionIndex,
		QuestionText:  s.CurrentQuestion().QuestionText,
		Options:       options(s.VisibleOptions),
		Score:         s.CurrentScore,
		Deadline:      s.Deadline,
	})
}

type (
	SubmitAnswerRequest struct {
		QuestionIndex *int   `json:"question_index" binding:"required"`
		Option        string `json:"option" binding:"required"`
	}

	SubmitAnswerResponse struct {
		Correct bool   `json:"correct"`
		Score   int64  `json:"score"`
		Status  string `json:"status"`
		Payout  int64  `json:"payout,omitempty"`
	}
)

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.engine.Answer(c.Request.Context(), engine.AnswerRequest{
		UserID:        c.Param("user_id"),
		QuestionIndex: *req.QuestionIndex,
		OptionID:      req.Option,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswerResponse{
		Correct: resp.Correct,
		Score:   resp.Score,
		Status:  string(resp.Status),
		Payout:  resp.Payout,
	})
}

type (
	InvokeHintRequest struct {
		Kind string `json:"kind" binding:"required"`
	}

	InvokeHintResponse struct {
		Status       string   `json:"status"`
		Score        int64    `json:"score"`
		InsuredFloor int64    `json:"insured_floor,omitempty"`
		Options      []Option `json:"options,omitempty"`
		Payout       int64    `json:"payout,omitempty"`
	}
)

func (a *API) InvokeHint(c *gin.Context) {
	var req InvokeHintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.engine.Hint(c.Request.Context(), engine.HintRequest{
		UserID: c.Param("user_id"),
		Kind:   domain.HintKind(req.Kind),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, InvokeHintResponse{
		Status:       string(resp.Status),
		Score:        resp.Score,
		InsuredFloor: resp.InsuredFloor,
		Options:      options(resp.Options),
		Payout:       resp.Payout,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.lb.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		League: domain.League(c.Param("league")),
		Week:   c.Query("week"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, leaderboardView(*l))
}

func options(opts []domain.Option) []Option {
	out := make([]Option, 0, len(opts))
	for _, o := range opts {
		out = append(out, Option{ID: o.OptionID, Text: o.OptionText})
	}
	return out
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
