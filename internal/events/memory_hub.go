package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is the per-subscriber channel depth. Graph edits arrive
// in bursts (a canvas drag emits many node_moved events); the buffer
// absorbs a burst and a subscriber that falls further behind loses events
// rather than stalling the mutation path.
const subscriberBuffer = 64

// subscription is one registered observer. The filter's event-type list is
// compiled to a set at subscribe time so Publish does a map lookup per
// subscriber instead of scanning a slice.
type subscription struct {
	ch         chan BuilderEvent
	workflowID string
	types      map[string]struct{} // nil means every event type
}

func (s *subscription) wants(e BuilderEvent) bool {
	if s.workflowID != "" && s.workflowID != e.WorkflowID {
		return false
	}
	if s.types == nil {
		return true
	}
	_, ok := s.types[e.EventType]
	return ok
}

// MemoryHub fans builder events out to in-process subscribers.
type MemoryHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription

	dropped atomic.Uint64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*subscription)}
}

// Publish delivers the event to every matching subscriber. It never
// blocks: a subscriber whose buffer is full loses this event, counted in
// Dropped.
func (h *MemoryHub) Publish(ctx context.Context, event BuilderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers an observer for events matching the filter. The
// returned cancel function detaches the subscriber; its channel is left
// open so pending events can still be drained.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan BuilderEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{
		ch:         make(chan BuilderEvent, subscriberBuffer),
		workflowID: filter.WorkflowID,
	}
	if len(filter.EventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(filter.EventTypes))
		for _, t := range filter.EventTypes {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

// Dropped reports how many events were discarded because a subscriber's
// buffer was full.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}
