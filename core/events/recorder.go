package events

import (
	"sync"

	"loanchain/core/types"
)

// payloadEvent is implemented by event payloads that can render their wire
// form. All ledger payloads satisfy it.
type payloadEvent interface {
	Event
	Event() *types.Event
}

// Recorder is a bounded in-memory event sink. It retains the most recent
// events so the RPC layer can serve the canonical audit log to subscribers
// that poll rather than stream.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	events []*types.Event
}

// NewRecorder creates a recorder retaining at most limit events; a
// non-positive limit defaults to 1024.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1024
	}
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payload, ok := evt.(payloadEvent)
	if !ok {
		return
	}
	wire := payload.Event()
	if wire == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, wire)
	if len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Recent returns up to n of the most recent events, newest last.
func (r *Recorder) Recent(n int) []*types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.events) {
		n = len(r.events)
	}
	out := make([]*types.Event, n)
	copy(out, r.events[len(r.events)-n:])
	return out
}
