package lifecycle

import (
	"context"
	"sync"

	"github.com/flowstack-dev/flowstack/internal/store"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to schema.WorkflowStatus) error

// EventAppender is satisfied by the Store; used by the FSM to journal
// transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

type hookKey struct {
	from, to schema.WorkflowStatus
}

// FSM manages the Draft → Saved → Built workflow lifecycle.
type FSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewFSM creates an FSM. appender may be nil when no journal is attached.
func NewFSM(appender EventAppender) *FSM {
	return &FSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *FSM) OnBefore(from, to schema.WorkflowStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to schema.WorkflowStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a lifecycle transition, journaling
// the corresponding event. The caller owns persisting the new state.
func (f *FSM) Transition(ctx context.Context, draftID string, from, to schema.WorkflowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid workflow transition: %s -> %s", from, to).
			WithDetails(map[string]any{"draft_id": draftID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if eventType := transitionEventType(to); eventType != "" && f.appender != nil {
		event := &store.Event{
			DraftID: draftID,
			Type:    eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "journal transition event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	return nil
}

func isValidTransition(from, to schema.WorkflowStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func transitionEventType(to schema.WorkflowStatus) string {
	switch to {
	case schema.WorkflowStatusSaved:
		return schema.EventWorkflowSaved
	case schema.WorkflowStatusBuilt:
		return schema.EventWorkflowBuilt
	default:
		return ""
	}
}

// ValidTransitions defines the allowed lifecycle transitions. Re-saving a
// Saved or Built workflow is an update, not a transition, and does not
// pass through here.
var ValidTransitions = map[schema.WorkflowStatus][]schema.WorkflowStatus{
	schema.WorkflowStatusDraft: {schema.WorkflowStatusSaved},
	schema.WorkflowStatusSaved: {schema.WorkflowStatusBuilt},
	schema.WorkflowStatusBuilt: {},
}
