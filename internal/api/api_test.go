package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmelnikov/quizrush/internal/api"
	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/engine"
	"github.com/osmelnikov/quizrush/internal/event"
	"github.com/osmelnikov/quizrush/internal/history"
	"github.com/osmelnikov/quizrush/internal/leaderboard"
	"github.com/osmelnikov/quizrush/internal/ledger"
	"github.com/osmelnikov/quizrush/internal/question"
	"github.com/osmelnikov/quizrush/internal/store"
)

func TestAPI_PlayASession(t *testing.T) {
	f := makeAPI(t)
	f.ledger.SetBalance("u1", "silver", decimal.NewFromInt(1000))

	// Enter the silver league.
	w := f.do(http.MethodPost, "/v1/sessions", `{"user_id":"u1","league":"silver"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sv api.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sv))
	assert.Len(t, sv.Options, 4)

	// A second entry conflicts.
	w = f.do(http.MethodPost, "/v1/sessions", `{"user_id":"u1","league":"silver"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	// Answer the first question correctly.
	s, ok := f.engine.Session("u1")
	require.True(t, ok)

	w = f.do(http.MethodPost, "/v1/sessions/u1/answers",
		fmt.Sprintf(`{"question_index":0,"option":%q}`, s.CurrentQuestion().Correct))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var av api.SubmitAnswerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &av))
	assert.True(t, av.Correct)
	assert.EqualValues(t, 5, av.Score)

	// A duplicate submission for the same index is stale.
	w = f.do(http.MethodPost, "/v1/sessions/u1/answers", `{"question_index":0,"option":"A"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	// Cash out.
	w = f.do(http.MethodPost, "/v1/sessions/u1/hints", `{"kind":"cash_out"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var hv api.InvokeHintResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hv))
	assert.Equal(t, "cashed_out", hv.Status)
	assert.EqualValues(t, 5, hv.Payout)

	// The session is gone afterwards.
	w = f.do(http.MethodGet, "/v1/sessions/u1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_HintErrors(t *testing.T) {
	f := makeAPI(t)
	f.ledger.SetBalance("u1", "silver", decimal.NewFromInt(1000))

	w := f.do(http.MethodPost, "/v1/sessions", `{"user_id":"u1","league":"silver"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/v1/sessions/u1/hints", `{"kind":"insure"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/sessions/u1/hints", `{"kind":"insure"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "HINT_ALREADY_USED")

	w = f.do(http.MethodPost, "/v1/sessions/u1/hints", `{"kind":"phone_a_friend"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_InsufficientFunds(t *testing.T) {
	f := makeAPI(t)

	w := f.do(http.MethodPost, "/v1/sessions", `{"user_id":"broke","league":"gold"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_FUNDS")
}

func TestAPI_Notifications(t *testing.T) {
	f := makeAPI(t)
	f.ledger.SetBalance("u1", "silver", decimal.NewFromInt(1000))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := f.redis.Subscribe(ctx, "test:pubsub:user:u1")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/v1/sessions", `{"user_id":"u1","league":"silver"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var n struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	require.Equal(t, domain.EventNameQuestionPresented, n.Event)

	var qp api.QuestionPresented
	require.NoError(t, json.Unmarshal(n.Data, &qp))
	assert.Equal(t, 0, qp.QuestionIndex)
	assert.Len(t, qp.Options, 4)
	assert.NotEmpty(t, qp.QuestionText)
}

// --- fixture ---

type fixture struct {
	router *gin.Engine
	engine *engine.Service
	ledger *ledger.Memory
	redis  redis.UniversalClient
	bus    *event.Bus
}

func makeAPI(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err())

	bus := event.NewBus()
	mem := ledger.NewMemory()

	supply := question.NewStatic()
	for _, l := range []domain.League{domain.LeagueBronze, domain.LeagueSilver, domain.LeagueGold} {
		supply.Fill(l, 5)
	}

	eng := engine.NewService(engine.Config{
		Store:      store.New(),
		Supply:     supply,
		Ledger:     mem,
		History:    history.NewMemory(),
		EventBus:   bus,
		SessionTTL: -1,
	})
	t.Cleanup(eng.Close)

	lb := leaderboard.NewService(leaderboard.Config{
		EventBus: bus,
		Redis:    rc,
		Prefix:   "test:rating",
	})

	router := gin.New()
	api.New(api.Config{
		Router:       router,
		EventBus:     bus,
		Engine:       eng,
		Leaderboard:  lb,
		Redis:        rc,
		PubsubPrefix: "test:pubsub",
	})

	return &fixture{
		router: router,
		engine: eng,
		ledger: mem,
		redis:  rc,
		bus:    bus,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}
