// Package events implements the bounded event ring both engines emit
// into (§3, §5 "Resource caps": event ring bounded to 1000).
package events

import (
	"sync"
	"time"

	"bitget-marketmaker/internal/core"
)

const capacity = 1000

// Ring is a fixed-capacity, oldest-evicted event log.
type Ring struct {
	mu     sync.RWMutex
	events []core.StrategyEvent
}

// New builds an empty Ring.
func New() *Ring {
	return &Ring{events: make([]core.StrategyEvent, 0, capacity)}
}

// Emit appends an event, evicting the oldest entry once capacity is
// reached.
func (r *Ring) Emit(eventType core.EventType, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= capacity {
		r.events = r.events[1:]
	}
	r.events = append(r.events, core.StrategyEvent{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}

// Snapshot returns a copy of the events currently held, oldest first.
func (r *Ring) Snapshot() []core.StrategyEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.StrategyEvent, len(r.events))
	copy(out, r.events)
	return out
}
