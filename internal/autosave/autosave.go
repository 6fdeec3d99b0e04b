package autosave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowstack-dev/flowstack/internal/events"
	"github.com/flowstack-dev/flowstack/internal/store"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Source exposes the workflow state the autosaver snapshots. Satisfied by
// the lifecycle orchestrator.
type Source interface {
	DraftID() string
	Workflow() schema.Workflow
}

// Autosaver periodically snapshots the workflow into the local draft
// store. It only writes when a graph mutation has happened since the last
// save; save moments are driven by a cron expression.
type Autosaver struct {
	source Source
	store  store.Store
	hub    events.Hub
	parser cron.Parser
	logger *slog.Logger

	cronExpr string
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	dirty   atomic.Bool
	nextRun time.Time
}

// Option configures the Autosaver.
type Option func(*Autosaver)

// WithInterval overrides the 1s tick granularity.
func WithInterval(d time.Duration) Option {
	return func(a *Autosaver) { a.interval = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Autosaver) { a.logger = l }
}

// New creates an Autosaver driven by a standard five-field cron
// expression (e.g. "* * * * *" for every minute).
func New(source Source, s store.Store, hub events.Hub, cronExpr string, opts ...Option) (*Autosaver, error) {
	a := &Autosaver{
		source:   source,
		store:    s,
		hub:      hub,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   slog.Default(),
		cronExpr: cronExpr,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	next, err := a.nextAfter(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	a.nextRun = next

	return a, nil
}

// Start launches the background autosave loop.
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.done != nil {
		a.mu.Unlock()
		return fmt.Errorf("autosaver already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	evs, unsubscribe, err := a.hub.Subscribe(loopCtx, dirtyingEvents)
	if err != nil {
		cancel()
		a.mu.Lock()
		a.cancel = nil
		a.done = nil
		a.mu.Unlock()
		return fmt.Errorf("subscribe autosave events: %w", err)
	}

	go a.loop(loopCtx, evs, unsubscribe)
	a.logger.Info("autosaver started", "schedule", a.cronExpr)
	return nil
}

// dirtyingEvents selects the graph mutations that make the draft stale.
var dirtyingEvents = events.Filter{
	EventTypes: []string{
		schema.EventNodeAdded,
		schema.EventNodeRemoved,
		schema.EventNodeMoved,
		schema.EventNodeConfigSet,
		schema.EventEdgeAdded,
		schema.EventEdgeRemoved,
	},
}

func (a *Autosaver) loop(ctx context.Context, evs <-chan events.BuilderEvent, unsubscribe func()) {
	defer close(a.done)
	defer unsubscribe()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush so edits made just before shutdown survive.
			a.flush(context.Background())
			return
		case <-evs:
			a.dirty.Store(true)
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick saves when a scheduled moment has passed and the draft is dirty.
func (a *Autosaver) tick(ctx context.Context) {
	now := time.Now().UTC()

	a.mu.Lock()
	due := !now.Before(a.nextRun)
	if due {
		next, err := a.nextAfter(now)
		if err == nil {
			a.nextRun = next
		}
	}
	a.mu.Unlock()

	if due {
		a.flush(ctx)
	}
}

// flush writes the current snapshot when dirty. The dirty flag is claimed
// before the write and restored on failure so the next tick retries.
func (a *Autosaver) flush(ctx context.Context) {
	if !a.dirty.CompareAndSwap(true, false) {
		return
	}

	wf := a.source.Workflow()
	draft := &store.Draft{
		ID:          a.source.DraftID(),
		RemoteID:    wf.RemoteID,
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       wf.Nodes,
		Edges:       wf.Edges,
		Status:      wf.Status,
	}

	if err := a.store.SaveDraft(ctx, draft); err != nil {
		a.dirty.Store(true)
		a.logger.Error("autosave failed", "draft_id", draft.ID, "error", err.Error())
		return
	}
	a.logger.Debug("autosaved draft", "draft_id", draft.ID)
}

// NextRun returns the next scheduled save moment.
func (a *Autosaver) NextRun() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextRun
}

// Dirty reports whether an unsaved mutation is outstanding.
func (a *Autosaver) Dirty() bool {
	return a.dirty.Load()
}

// nextAfter computes the next scheduled moment after from.
func (a *Autosaver) nextAfter(from time.Time) (time.Time, error) {
	schedule, err := a.parser.Parse(a.cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", a.cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the autosaver, flushing any pending state.
func (a *Autosaver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return nil
	}

	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil

	a.logger.Info("autosaver stopped")
	return nil
}
