package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowstack-dev/flowstack/internal/events"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// FallbackResponse is appended as the assistant message when a successful
// chat call carries no usable response text.
const FallbackResponse = "I received your message but couldn't generate a response."

// Progress hints shown while an exchange is in flight. They are
// non-authoritative display text only and never enter the transcript.
const (
	hintProcessing = "Processing your request..."
	hintConnecting = "Connecting to AI model..."
	hintGenerating = "Generating response..."
)

// Responder is the slice of the backend API the coordinator needs. An
// empty text with a nil error means the payload carried no usable
// response.
type Responder interface {
	Chat(ctx context.Context, workflowID, message string) (string, error)
}

// Notifier receives the transient user notification emitted on every
// failed exchange. Optional.
type Notifier interface {
	Notify(kind FailureKind, text string)
}

// Coordinator runs chat exchanges against a built workflow. At most one
// exchange is in flight per session; the remote call is raced against a
// fixed deadline and whichever settles first is authoritative. The loser's
// eventual settlement is discarded, never awaited.
type Coordinator struct {
	mu        sync.Mutex
	responder Responder
	notifier  Notifier
	hub       events.Hub
	logger    *slog.Logger

	session    schema.ChatSession
	pending    bool
	generation uint64
	hint       string

	deadline   time.Duration
	hintDelays [2]time.Duration
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithDeadline overrides the 45s exchange deadline.
func WithDeadline(d time.Duration) Option {
	return func(c *Coordinator) { c.deadline = d }
}

// WithHintDelays overrides when the two progress hints appear.
func WithHintDelays(connecting, generating time.Duration) Option {
	return func(c *Coordinator) { c.hintDelays = [2]time.Duration{connecting, generating} }
}

// WithNotifier attaches a transient-notification sink.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithHub attaches an event hub for chat lifecycle events.
func WithHub(h events.Hub) Option {
	return func(c *Coordinator) { c.hub = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a Coordinator for the given built workflow.
func NewCoordinator(workflowID string, responder Responder, opts ...Option) *Coordinator {
	c := &Coordinator{
		responder:  responder,
		logger:     slog.Default(),
		session:    schema.ChatSession{WorkflowID: workflowID},
		deadline:   45 * time.Second,
		hintDelays: [2]time.Duration{3 * time.Second, 8 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send runs one exchange: it appends the user message optimistically,
// issues the remote call bound to the deadline, and appends exactly one
// assistant or system message when the race settles. It blocks until the
// exchange resolves. Blank input and an exchange already in flight are
// rejected without touching the transcript.
func (c *Coordinator) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return schema.NewError(schema.ErrCodeValidation, "message is empty")
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return schema.NewError(schema.ErrCodeConflict, "a chat exchange is already in flight")
	}

	c.pending = true
	c.generation++
	gen := c.generation
	c.hint = hintProcessing

	userIdx := len(c.session.Messages)
	c.session.Messages = append(c.session.Messages, schema.Message{
		ID:        uuid.New().String(),
		Role:      schema.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	c.mu.Unlock()

	c.publish(schema.EventChatStarted, nil)

	// The resolve paths clear pending under the same lock as the
	// transcript append; this covers any path that returns before one of
	// them runs. The generation check keeps it from touching a newer
	// exchange admitted after this one resolved.
	defer func() {
		c.mu.Lock()
		if gen == c.generation && c.pending {
			c.pending = false
			c.hint = ""
		}
		c.mu.Unlock()
	}()

	c.scheduleHint(gen, c.hintDelays[0], hintConnecting)
	c.scheduleHint(gen, c.hintDelays[1], hintGenerating)

	type outcome struct {
		text string
		err  error
	}
	// Buffered so a late settlement never blocks the abandoned goroutine.
	ch := make(chan outcome, 1)
	go func() {
		t, err := c.responder.Chat(ctx, c.session.WorkflowID, text)
		ch <- outcome{text: t, err: err}
	}()

	timer := time.NewTimer(c.deadline)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			c.resolveFailure(gen, out.err)
			return out.err
		}
		c.resolveSuccess(gen, userIdx, out.text)
		return nil
	case <-timer.C:
		err := schema.NewError(schema.ErrCodeTimeout, "chat request timed out")
		c.resolveFailure(gen, err)
		return err
	}
}

// resolveSuccess confirms the optimistic user message and appends the
// assistant reply, or the fallback phrase when the payload carried no
// usable text.
func (c *Coordinator) resolveSuccess(gen uint64, userIdx int, text string) {
	if text == "" {
		text = FallbackResponse
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.session.Messages[userIdx].Confirmed = true
	c.session.Messages = append(c.session.Messages, schema.Message{
		ID:        uuid.New().String(),
		Role:      schema.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
		Confirmed: true,
	})
	c.pending = false
	c.hint = ""
	c.mu.Unlock()

	c.publish(schema.EventChatResolved, map[string]any{"outcome": "success"})
}

// resolveFailure classifies the error and appends the tailored system
// message, then emits the transient notification.
func (c *Coordinator) resolveFailure(gen uint64, err error) {
	kind := classify(err)
	content := explanation(kind)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.session.Messages = append(c.session.Messages, schema.Message{
		ID:        uuid.New().String(),
		Role:      schema.RoleSystem,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Confirmed: true,
	})
	c.pending = false
	c.hint = ""
	c.mu.Unlock()

	c.logger.Warn("chat exchange failed",
		"workflow_id", c.session.WorkflowID, "kind", string(kind), "error", err)
	if c.notifier != nil {
		c.notifier.Notify(kind, "Failed to send message")
	}
	c.publish(schema.EventChatResolved, map[string]any{"outcome": string(kind)})
}

// scheduleHint arms a progress-hint update. The hint only writes while
// the same exchange is still pending; once the race has resolved it is a
// no-op.
func (c *Coordinator) scheduleHint(gen uint64, after time.Duration, text string) {
	time.AfterFunc(after, func() {
		c.mu.Lock()
		if !c.pending || gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.hint = text
		c.mu.Unlock()

		c.publish(schema.EventChatHint, map[string]any{"hint": text})
	})
}

// Transcript returns a copy of the session messages.
func (c *Coordinator) Transcript() []schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Message, len(c.session.Messages))
	copy(out, c.session.Messages)
	return out
}

// Pending reports whether an exchange is in flight.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Hint returns the current progress-hint display text, empty when no
// exchange is in flight.
func (c *Coordinator) Hint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hint
}

// WorkflowID returns the workflow this session talks to.
func (c *Coordinator) WorkflowID() string {
	return c.session.WorkflowID
}

func (c *Coordinator) publish(eventType string, payload map[string]any) {
	if c.hub == nil {
		return
	}
	_ = c.hub.Publish(context.Background(), events.BuilderEvent{
		WorkflowID: c.session.WorkflowID,
		EventType:  eventType,
		Payload:    payload,
	})
}
