// Package presence tracks ephemeral per-client awareness for one room.
// Nothing here is replicated or persisted; an entry lives only as long
// as its client keeps pinging or stays connected.
package presence

import (
	"sync"
	"time"

	"github.com/eldtechnologies/sketchsync/internal/models"
)

// Tracker holds the live awareness entries of one room.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]models.AwarenessState
	now    func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]models.AwarenessState),
		now:    time.Now,
	}
}

// Apply upserts one client's state, refreshing its LastSeen. A nil
// state removes the entry. It reports whether anything changed.
func (t *Tracker) Apply(clientID string, state *models.AwarenessState) bool {
	if clientID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if state == nil {
		if _, ok := t.states[clientID]; !ok {
			return false
		}
		delete(t.states, clientID)
		return true
	}
	s := *state
	s.LastSeen = t.now().UnixMilli()
	t.states[clientID] = s
	return true
}

// Remove drops one client's entry, reporting whether it existed.
func (t *Tracker) Remove(clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[clientID]; !ok {
		return false
	}
	delete(t.states, clientID)
	return true
}

// Prune removes entries that have not been seen within maxAge and
// returns the ids it dropped. It catches clients that died without a
// clean disconnect.
func (t *Tracker) Prune(maxAge time.Duration) []string {
	cutoff := t.now().Add(-maxAge).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []string
	for id, s := range t.states {
		if s.LastSeen < cutoff {
			delete(t.states, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Snapshot returns a copy of the full presence map.
func (t *Tracker) Snapshot() map[string]models.AwarenessState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := make(map[string]models.AwarenessState, len(t.states))
	for id, s := range t.states {
		snap[id] = s
	}
	return snap
}

// Len returns the number of live entries.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}
