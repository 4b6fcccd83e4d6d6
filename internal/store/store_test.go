package store_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
	"github.com/osmelnikov/quizrush/internal/store"
)

func TestStore_CreateIsAtomic(t *testing.T) {
	t.Parallel()

	st := store.New()
	defer st.Close()

	const attempts = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := st.Create("u1", func() (*domain.Session, error) {
				return &domain.Session{UserID: "u1", Status: domain.StatusActive}, nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.ReasonIs(err, errors.ReasonAlreadyInSession) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created, "exactly one create must win")
	assert.Equal(t, attempts-1, dupes)
	assert.Equal(t, 1, st.Len())
}

func TestStore_CreateBuildFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	st := store.New()
	defer st.Close()

	_, err := st.Create("u1", func() (*domain.Session, error) {
		return nil, fmt.Errorf("draw failed")
	})
	require.Error(t, err)

	_, ok := st.Get("u1")
	assert.False(t, ok, "failed build must leave no session behind")

	_, err = st.Create("u1", func() (*domain.Session, error) {
		return &domain.Session{UserID: "u1", Status: domain.StatusActive}, nil
	})
	require.NoError(t, err)
}

func TestStore_UpdateSerializesPerUser(t *testing.T) {
	t.Parallel()

	st := store.New()
	defer st.Close()

	_, err := st.Create("u1", func() (*domain.Session, error) {
		return &domain.Session{UserID: "u1", Status: domain.StatusActive}, nil
	})
	require.NoError(t, err)

	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_ = st.Update("u1", func(s *domain.Session) error {
				s.CurrentScore++ // not atomic; relies on the per-user lock
				return nil
			})
		}()
	}
	wg.Wait()

	s, ok := st.Get("u1")
	require.True(t, ok)
	assert.EqualValues(t, n, s.CurrentScore)
}

func TestStore_UpdateAfterDelete(t *testing.T) {
	t.Parallel()

	st := store.New()
	defer st.Close()

	_, err := st.Create("u1", func() (*domain.Session, error) {
		return &domain.Session{UserID: "u1", Status: domain.StatusActive}, nil
	})
	require.NoError(t, err)

	st.Delete("u1")

	err = st.Update("u1", func(s *domain.Session) error { return nil })
	require.True(t, errors.ReasonIs(err, errors.ReasonSessionNotActive))
}

func TestStore_SweeperReportsIdleSessions(t *testing.T) {
	t.Parallel()

	st := store.New()
	defer st.Close()

	_, err := st.Create("u1", func() (*domain.Session, error) {
		return &domain.Session{UserID: "u1", Status: domain.StatusActive}, nil
	})
	require.NoError(t, err)

	idle := make(chan string, 1)
	st.StartSweeper(5*time.Millisecond, 20*time.Millisecond, func(userID string) {
		select {
		case idle <- userID:
		default:
		}
	})

	select {
	case id := <-idle:
		assert.Equal(t, "u1", id)
	case <-time.After(time.Second):
		t.Fatal("sweeper never reported the idle session")
	}
}
