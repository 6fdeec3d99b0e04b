package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultRequestTimeout  = 30 * time.Second
)

// Client talks to the workflow backend. All remote services (persistence,
// validation, document ingestion, chat inference) are reached through it;
// the rest of the core never touches the network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout applied when the caller's
// context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.ParseRequestURI(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		maxBody:    defaultMaxResponseBody,
		timeout:    defaultRequestTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// createPayload is the body of POST /api/workflows/.
type createPayload struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Nodes       []schema.Node `json:"nodes"`
	Edges       []schema.Edge `json:"edges"`
}

// updatePayload is the body of PUT /api/workflows/{id}.
type updatePayload struct {
	Nodes []schema.Node `json:"nodes"`
	Edges []schema.Edge `json:"edges"`
}

// CreateWorkflow persists a new workflow and returns the server-assigned
// workflow ID.
func (c *Client) CreateWorkflow(ctx context.Context, name, description string, nodes []schema.Node, edges []schema.Edge) (string, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/workflows/", createPayload{
		Name:        name,
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
	})
	if err != nil {
		return "", err
	}

	id, ok := extractWorkflowID(env)
	if !ok {
		return "", schema.NewError(schema.ErrCodeNetwork, "create response carries no workflow_id")
	}
	return id, nil
}

// UpdateWorkflow replaces the nodes and edges of an existing workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, nodes []schema.Node, edges []schema.Edge) error {
	_, err := c.doJSON(ctx, http.MethodPut, "/api/workflows/"+url.PathEscape(id), updatePayload{
		Nodes: nodes,
		Edges: edges,
	})
	return err
}

// ValidateWorkflow asks the backend to validate a persisted workflow and
// returns its verdict.
func (c *Client) ValidateWorkflow(ctx context.Context, id string) (bool, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/validate", nil)
	if err != nil {
		return false, err
	}
	return extractIsValid(env), nil
}

// Chat sends a message through a built workflow and returns the response
// text. An empty string with nil error means the backend answered without
// usable text; the caller substitutes its fallback phrase.
func (c *Client) Chat(ctx context.Context, id, message string) (string, error) {
	env, err := c.doJSON(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/chat",
		map[string]string{"message": message})
	if err != nil {
		return "", err
	}

	text, _ := extractResponseText(env)
	return text, nil
}

// Document is the backend's metadata record for an uploaded file.
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
}

// UploadDocument streams a file to the knowledge-base ingestion endpoint.
// workflowID may be empty for unscoped uploads.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader, workflowID string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return schema.NewError(schema.ErrCodeNetwork, "build multipart body").WithCause(err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return schema.NewError(schema.ErrCodeNetwork, "read upload content").WithCause(err)
	}
	if workflowID != "" {
		if err := mw.WriteField("workflow_id", workflowID); err != nil {
			return schema.NewError(schema.ErrCodeNetwork, "build multipart body").WithCause(err)
		}
	}
	if err := mw.Close(); err != nil {
		return schema.NewError(schema.ErrCodeNetwork, "finalize multipart body").WithCause(err)
	}

	req, cancel, err := c.newRequest(ctx, http.MethodPost, "/api/documents/upload", &buf)
	if err != nil {
		return err
	}
	defer cancel()
	req.Header.Set("Content-Type", mw.FormDataContentType())

	_, err = c.execute(req)
	return err
}

// ListDocuments returns the backend's document metadata, optionally
// scoped to one workflow.
func (c *Client) ListDocuments(ctx context.Context, workflowID string) ([]Document, error) {
	path := "/api/documents/"
	if workflowID != "" {
		path += "?workflow_id=" + url.QueryEscape(workflowID)
	}

	env, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return extractDocuments(env), nil
}

// DeleteDocument removes an uploaded document.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/documents/"+url.PathEscape(id), nil)
	return err
}

// doJSON performs a request with a JSON body (nil for none) and returns
// the decoded response envelope. The uniform convention applies: absence
// of success:false implies success; its presence carries an error string
// surfaced verbatim.
func (c *Client) doJSON(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeNetwork, "marshal request body").WithCause(err)
		}
		reader = bytes.NewReader(b)
	}

	req, cancel, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.execute(req)
}

// newRequest builds a request against the backend, applying the default
// timeout when the context carries no deadline.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, nil, schema.NewError(schema.ErrCodeNetwork, "build request").WithCause(err)
	}
	return req, cancel, nil
}

func (c *Client) execute(req *http.Request) (map[string]any, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() == context.DeadlineExceeded {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "%s %s: request timed out", req.Method, req.URL.Path).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeNetwork, "%s %s: %v", req.Method, req.URL.Path, err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeNetwork, "read response body").WithCause(err)
	}

	c.logger.Debug("backend call",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	var env map[string]any
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &env); err != nil {
			env = nil // non-JSON bodies fall through to the status check
		}
	}

	if resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeNetwork, "%s %s: %s",
			req.Method, req.URL.Path, errorText(env, fmt.Sprintf("server returned %d", resp.StatusCode))).
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}

	if success, ok := env["success"].(bool); ok && !success {
		return nil, schema.NewError(schema.ErrCodeNetwork, errorText(env, "backend reported failure"))
	}

	return env, nil
}

// errorText mirrors the backend's assorted error shapes: detail (framework
// errors), then message, then error, then the fallback.
func errorText(env map[string]any, fallback string) string {
	for _, key := range []string{"detail", "message", "error"} {
		if s, ok := env[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
