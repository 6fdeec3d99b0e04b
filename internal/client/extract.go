package client

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// The backend wraps payloads inconsistently: sometimes under "data",
// sometimes at the top level, and numeric IDs arrive as JSON numbers.
// Each extractor is a gojq query with the fallback chain spelled out once.
var (
	workflowIDQuery   = mustParse(`.data.workflow_id // .workflow_id // empty`)
	isValidQuery      = mustParse(`.data.is_valid // .is_valid // false`)
	responseTextQuery = mustParse(`.data.response // .response // empty`)
	documentsQuery    = mustParse(`.data.documents // .documents // .data // empty`)
)

func mustParse(src string) *gojq.Code {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("parse gojq query %q: %v", src, err))
	}
	code, err := gojq.Compile(q)
	if err != nil {
		panic(fmt.Sprintf("compile gojq query %q: %v", src, err))
	}
	return code
}

// runQuery evaluates a compiled query against the envelope and returns
// the first non-error result.
func runQuery(code *gojq.Code, env map[string]any) (any, bool) {
	if env == nil {
		return nil, false
	}
	iter := code.Run(map[string]any(env))
	for {
		v, ok := iter.Next()
		if !ok {
			return nil, false
		}
		if _, isErr := v.(error); isErr {
			continue
		}
		return v, true
	}
}

// extractWorkflowID pulls the workflow ID out of a create response,
// stringifying numeric IDs.
func extractWorkflowID(env map[string]any) (string, bool) {
	v, ok := runQuery(workflowIDQuery, env)
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return fmt.Sprintf("%d", int64(id)), true
	case int:
		return fmt.Sprintf("%d", id), true
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}

// extractIsValid pulls the remote validator's verdict.
func extractIsValid(env map[string]any) bool {
	v, ok := runQuery(isValidQuery, env)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// extractResponseText pulls the assistant text from a chat response.
func extractResponseText(env map[string]any) (string, bool) {
	v, ok := runQuery(responseTextQuery, env)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// extractDocuments pulls the document list from a list response.
func extractDocuments(env map[string]any) []Document {
	v, ok := runQuery(documentsQuery, env)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	docs := make([]Document, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		doc := Document{}
		switch id := m["id"].(type) {
		case string:
			doc.ID = id
		case float64:
			doc.ID = fmt.Sprintf("%d", int64(id))
		}
		if name, ok := m["filename"].(string); ok {
			doc.Filename = name
		}
		if size, ok := m["size"].(float64); ok {
			doc.Size = int64(size)
		}
		docs = append(docs, doc)
	}
	return docs
}
