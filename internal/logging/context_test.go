package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, WorkflowID(ctx))
	assert.Empty(t, NodeID(ctx))
	assert.Empty(t, SessionID(ctx))

	ctx = WithWorkflowID(ctx, "wf-1")
	ctx = WithNodeID(ctx, "n1")
	ctx = WithSessionID(ctx, "s1")

	assert.Equal(t, "wf-1", WorkflowID(ctx))
	assert.Equal(t, "n1", NodeID(ctx))
	assert.Equal(t, "s1", SessionID(ctx))
}

func TestLogWithAddsOnlyPresentIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithWorkflowID(context.Background(), "wf-1")
	LogWith(ctx, logger).Info("saved")

	out := buf.String()
	assert.Contains(t, out, "workflow_id=wf-1")
	assert.NotContains(t, out, "node_id")
	assert.NotContains(t, out, "session_id")
}

func TestLogWithAllIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithSessionID(WithNodeID(WithWorkflowID(context.Background(), "wf-1"), "n1"), "s1")
	LogWith(ctx, logger).Info("chat resolved")

	out := buf.String()
	assert.Contains(t, out, "workflow_id=wf-1")
	assert.Contains(t, out, "node_id=n1")
	assert.Contains(t, out, "session_id=s1")
}

func TestCorrelationHandlerInjectsFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithWorkflowID(context.Background(), "wf-1")
	logger.InfoContext(ctx, "node added")

	assert.Contains(t, buf.String(), "workflow_id=wf-1")
}

func TestCorrelationHandlerPlainContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("no correlation")

	out := buf.String()
	assert.Contains(t, out, "no correlation")
	assert.NotContains(t, out, "workflow_id")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithNodeID(context.Background(), "n2")
	logger.With("component", "graph").InfoContext(ctx, "moved")

	out := buf.String()
	assert.Contains(t, out, "component=graph")
	assert.Contains(t, out, "node_id=n2")
}
