// Package stream implements the live-channel tracking engine: per-stream
// runtime state, the subscription service, and the polling loop that turns
// provider status into notifications.
package stream

import (
	"sync"
	"time"
)

// State is the runtime tracking state of one broadcast stream. It is never
// persisted; at process start every tracked stream begins offline and
// unnotified.
type State struct {
	// Online is the damped view of the provider status: it only drops back
	// to false after the stream has been absent from live status for the
	// full hysteresis window.
	Online bool
	// LastOfflineAt marks when the stream first went missing from live
	// status while Online. Zero while live or before any observation.
	LastOfflineAt time.Time
	// LastNotifiedAt is when the last notification fan-out happened.
	LastNotifiedAt time.Time
}

// Tracker owns per-stream runtime state behind a single mutex, serializing
// the polling loop against concurrent subscription mutations.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// Ensure registers a stream with fresh offline state if it is not tracked yet.
func (t *Tracker) Ensure(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[id]; !ok {
		t.states[id] = &State{}
	}
}

// Update runs fn against the stream's state under the tracker lock,
// creating fresh offline state first if needed. fn must not block.
func (t *Tracker) Update(id string, fn func(*State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		s = &State{}
		t.states[id] = s
	}
	fn(s)
}

// Forget evicts a stream's runtime state. Called when its last subscription
// is removed; later poll cycles never reference it again.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}

// Get returns a copy of the stream's state.
func (t *Tracker) Get(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Counts reports how many streams are tracked and how many are currently
// considered online.
func (t *Tracker) Counts() (tracked, online int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.states {
		if s.Online {
			online++
		}
	}
	return len(t.states), online
}
