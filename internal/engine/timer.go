package engine

import (
	"sync"
	"time"
)

// timerSet holds at most one deadline timer per user. Arming replaces (and
// stops) the previous timer, so a new question can never be hit by the old
// question's timeout; a timer that already fired loses the race inside
// expire instead.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func (ts *timerSet) arm(userID string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.timers == nil {
		ts.timers = make(map[string]*time.Timer)
	}

	if t, ok := ts.timers[userID]; ok {
		t.Stop()
	}
	ts.timers[userID] = time.AfterFunc(d, fn)
}

func (ts *timerSet) stop(userID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if t, ok := ts.timers[userID]; ok {
		t.Stop()
		delete(ts.timers, userID)
	}
}

func (ts *timerSet) stopAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}
