package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewInvalidBaseURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)

	_, err = New("ftp://example.com")
	require.Error(t, err)
}

func TestCreateWorkflow(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]any

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"workflow_id": 42},
		})
	}))

	id, err := c.CreateWorkflow(context.Background(), "My Stack", "desc",
		[]schema.Node{{ID: "n1", Type: schema.ComponentUserQuery}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/workflows/", gotPath)
	assert.Equal(t, "My Stack", gotBody["name"])
}

func TestCreateWorkflowTopLevelID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"workflow_id": "wf-7"})
	}))

	id, err := c.CreateWorkflow(context.Background(), "s", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "wf-7", id)
}

func TestCreateWorkflowMissingID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))

	_, err := c.CreateWorkflow(context.Background(), "s", "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNetwork, schema.CodeOf(err))
}

func TestUpdateWorkflow(t *testing.T) {
	var gotPath, gotMethod string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))

	err := c.UpdateWorkflow(context.Background(), "wf-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/workflows/wf-1", gotPath)
}

func TestValidateWorkflow(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want bool
	}{
		{"valid in data envelope", map[string]any{"data": map[string]any{"is_valid": true}}, true},
		{"invalid in data envelope", map[string]any{"data": map[string]any{"is_valid": false}}, false},
		{"top-level verdict", map[string]any{"is_valid": true}, true},
		{"missing verdict", map[string]any{"success": true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/workflows/wf-1/validate", r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			}))

			valid, err := c.ValidateWorkflow(context.Background(), "wf-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, valid)
		})
	}
}

func TestChatResponseExtraction(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"data envelope", map[string]any{"data": map[string]any{"response": "hello"}}, "hello"},
		{"top-level response", map[string]any{"response": "hi there"}, "hi there"},
		{"no usable text", map[string]any{"success": true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				assert.Equal(t, "ping", body["message"])
				writeJSON(w, http.StatusOK, tt.body)
			}))

			text, err := c.Chat(context.Background(), "wf-1", "ping")
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestEnvelopeFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "rate limit exceeded for model",
		})
	}))

	_, err := c.Chat(context.Background(), "wf-1", "ping")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNetwork, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestErrorTextPrecedence(t *testing.T) {
	// FastAPI-style detail wins over message and error.
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail":  "body is invalid",
			"message": "other",
			"error":   "another",
		})
	}))

	err := c.UpdateWorkflow(context.Background(), "wf-1", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body is invalid")
}

func TestHTTPErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "boom"})
	}))

	_, err := c.ValidateWorkflow(context.Background(), "wf-1")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNetwork, schema.CodeOf(err))

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Details["status_code"])
}

func TestTimeoutClassified(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"response": "late"})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, "wf-1", "ping")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeTimeout, schema.CodeOf(err))
}

func TestUploadDocument(t *testing.T) {
	var gotFile, gotWorkflowID string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()

		content, _ := io.ReadAll(f)
		assert.Equal(t, "file content", string(content))
		gotFile = header.Filename
		gotWorkflowID = r.FormValue("workflow_id")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))

	err := c.UploadDocument(context.Background(), "notes.pdf", strings.NewReader("file content"), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "notes.pdf", gotFile)
	assert.Equal(t, "wf-1", gotWorkflowID)
}

func TestListDocuments(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wf-1", r.URL.Query().Get("workflow_id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"documents": []any{
					map[string]any{"id": "d1", "filename": "a.pdf"},
					map[string]any{"id": "d2", "filename": "b.txt"},
				},
			},
		})
	}))

	docs, err := c.ListDocuments(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.pdf", docs[0].Filename)
	assert.Equal(t, "d2", docs[1].ID)
}

func TestDeleteDocument(t *testing.T) {
	var gotMethod, gotPath string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))

	require.NoError(t, c.DeleteDocument(context.Background(), "d1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/documents/d1", gotPath)
}
