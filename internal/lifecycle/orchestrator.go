package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flowstack-dev/flowstack/internal/events"
	"github.com/flowstack-dev/flowstack/internal/graph"
	"github.com/flowstack-dev/flowstack/internal/store"
	"github.com/flowstack-dev/flowstack/internal/validation"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Backend is the slice of the workflow API the orchestrator needs.
type Backend interface {
	CreateWorkflow(ctx context.Context, name, description string, nodes []schema.Node, edges []schema.Edge) (string, error)
	UpdateWorkflow(ctx context.Context, id string, nodes []schema.Node, edges []schema.Edge) error
	ValidateWorkflow(ctx context.Context, id string) (bool, error)
}

// Orchestrator drives one workflow through its Draft → Saved → Built
// lifecycle. Save is idempotent with respect to the remote identity: the
// first successful save creates the remote workflow and adopts its ID,
// every later save updates that same workflow.
type Orchestrator struct {
	mu      sync.Mutex
	graph   *graph.Graph
	checker *validation.Checker
	backend Backend
	fsm     *FSM
	store   store.Store
	hub     events.Hub
	logger  *slog.Logger

	draftID     string
	name        string
	description string
	remoteID    string
	status      schema.WorkflowStatus
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStore attaches a local draft store; every successful save also
// persists the draft locally.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithHub attaches an event hub for lifecycle notifications.
func WithHub(h events.Hub) Option {
	return func(o *Orchestrator) { o.hub = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an Orchestrator for a fresh draft workflow.
func NewOrchestrator(name, description string, g *graph.Graph, checker *validation.Checker, backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:       g,
		checker:     checker,
		backend:     backend,
		draftID:     uuid.New().String(),
		name:        name,
		description: description,
		status:      schema.WorkflowStatusDraft,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.fsm = NewFSM(eventAppenderOrNil(o.store))
	return o
}

func eventAppenderOrNil(s store.Store) EventAppender {
	if s == nil {
		return nil
	}
	return s
}

// DraftID returns the local draft identifier.
func (o *Orchestrator) DraftID() string {
	return o.draftID
}

// RemoteID returns the backend-assigned workflow ID, empty until the
// first successful save.
func (o *Orchestrator) RemoteID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remoteID
}

// Status returns the current lifecycle status.
func (o *Orchestrator) Status() schema.WorkflowStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Workflow returns the current workflow state as a value.
func (o *Orchestrator) Workflow() schema.Workflow {
	nodes, edges := o.graph.Snapshot()
	o.mu.Lock()
	defer o.mu.Unlock()
	return schema.Workflow{
		RemoteID:    o.remoteID,
		Name:        o.name,
		Description: o.description,
		Nodes:       nodes,
		Edges:       edges,
		Status:      o.status,
	}
}

// Rename updates the workflow name and description; the change reaches
// the backend on the next save.
func (o *Orchestrator) Rename(name, description string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if name != "" {
		o.name = name
	}
	o.description = description
}

// Save persists the current graph snapshot to the backend. The first
// save creates the remote workflow and records its ID; subsequent saves
// update it in place. On failure nothing changes locally.
func (o *Orchestrator) Save(ctx context.Context) error {
	nodes, edges := o.graph.Snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.saveLocked(ctx, nodes, edges)
}

// saveLocked runs the save with o.mu held.
func (o *Orchestrator) saveLocked(ctx context.Context, nodes []schema.Node, edges []schema.Edge) error {
	if o.remoteID == "" {
		id, err := o.backend.CreateWorkflow(ctx, o.name, o.description, nodes, edges)
		if err != nil {
			return stageError(err, "create")
		}
		o.remoteID = id
		if err := o.fsm.Transition(ctx, o.draftID, schema.WorkflowStatusDraft, schema.WorkflowStatusSaved); err != nil {
			o.logger.Warn("journal save transition", "error", err)
		}
		o.status = schema.WorkflowStatusSaved
		o.logger.Info("workflow created", "draft_id", o.draftID, "workflow_id", id)
	} else {
		if err := o.backend.UpdateWorkflow(ctx, o.remoteID, nodes, edges); err != nil {
			return stageError(err, "update")
		}
		o.logger.Info("workflow updated", "draft_id", o.draftID, "workflow_id", o.remoteID)
	}

	o.persistLocked(ctx, nodes, edges)
	o.publishLocked(schema.EventWorkflowSaved, map[string]any{"workflow_id": o.remoteID})
	return nil
}

// Build validates the workflow and promotes it to Built. Structural
// validation runs locally first; a structurally invalid graph fails
// without touching the network. A valid graph is saved, then validated by
// the backend; only a positive remote verdict promotes the workflow.
func (o *Orchestrator) Build(ctx context.Context) (*schema.ValidationResult, error) {
	nodes, edges := o.graph.Snapshot()

	result := o.checker.Check(nodes, edges)
	if !result.Valid() {
		return result, result.ToError()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.saveLocked(ctx, nodes, edges); err != nil {
		return result, err
	}

	valid, err := o.backend.ValidateWorkflow(ctx, o.remoteID)
	if err != nil {
		return result, stageError(err, "remote-validation")
	}
	if !valid {
		return result, schema.NewError(schema.ErrCodeBackendValidation,
			"backend rejected the workflow").
			WithStage("remote-validation").
			WithDetails(map[string]any{"workflow_id": o.remoteID})
	}

	if o.status != schema.WorkflowStatusBuilt {
		if err := o.fsm.Transition(ctx, o.draftID, o.status, schema.WorkflowStatusBuilt); err != nil {
			o.logger.Warn("journal build transition", "error", err)
		}
		o.status = schema.WorkflowStatusBuilt
	}

	o.persistLocked(ctx, nodes, edges)
	o.publishLocked(schema.EventWorkflowBuilt, map[string]any{"workflow_id": o.remoteID})
	o.logger.Info("workflow built", "draft_id", o.draftID, "workflow_id", o.remoteID)
	return result, nil
}

// Built reports whether the workflow has been promoted to Built, the
// precondition for chat.
func (o *Orchestrator) Built() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status == schema.WorkflowStatusBuilt
}

// persistLocked writes the current state to the local draft store. Local
// persistence failures are logged, not returned: the remote save already
// succeeded.
func (o *Orchestrator) persistLocked(ctx context.Context, nodes []schema.Node, edges []schema.Edge) {
	if o.store == nil {
		return
	}
	draft := &store.Draft{
		ID:          o.draftID,
		RemoteID:    o.remoteID,
		Name:        o.name,
		Description: o.description,
		Nodes:       nodes,
		Edges:       edges,
		Status:      o.status,
	}
	if err := o.store.SaveDraft(ctx, draft); err != nil {
		o.logger.Warn("persist draft", "draft_id", o.draftID, "error", err)
	}
}

func (o *Orchestrator) publishLocked(eventType string, payload map[string]any) {
	if o.hub == nil {
		return
	}
	_ = o.hub.Publish(context.Background(), events.BuilderEvent{
		WorkflowID: o.remoteID,
		EventType:  eventType,
		Payload:    payload,
	})
}

// stageError tags the error with the lifecycle stage it occurred in.
func stageError(err error, stage string) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe.WithStage(stage)
	}
	return schema.NewErrorf(schema.ErrCodeNetwork, "%s failed: %s", stage, err.Error()).
		WithStage(stage).WithCause(err)
}
