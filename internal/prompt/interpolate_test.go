package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

func TestInterpolateBasic(t *testing.T) {
	scope := Scope{Query: "what is RAG?", Context: "retrieved passage"}

	got := Interpolate("Q: {{query}}\nCtx: {{context}}", scope)
	assert.Equal(t, "Q: what is RAG?\nCtx: retrieved passage", got)
}

func TestInterpolateWhitespaceInToken(t *testing.T) {
	got := Interpolate("{{ query }}", Scope{Query: "hi"})
	assert.Equal(t, "hi", got)
}

func TestInterpolateUnknownPlaceholderLeftIntact(t *testing.T) {
	got := Interpolate("use {{query}} with {{model}}", Scope{Query: "q"})
	assert.Equal(t, "use q with {{model}}", got)
}

func TestInterpolateUnclosedBracesLiteral(t *testing.T) {
	assert.Equal(t, "answer {{query", Interpolate("answer {{query", Scope{Query: "q"}))
	assert.Equal(t, "a {{", Interpolate("a {{", Scope{}))
}

func TestInterpolateNoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", Interpolate("plain text", Scope{Query: "q"}))
	assert.Equal(t, "", Interpolate("", Scope{}))
}

func TestInterpolateHistory(t *testing.T) {
	scope := Scope{History: []schema.Message{
		{Role: schema.RoleUser, Content: "hello"},
		{Role: schema.RoleAssistant, Content: "hi there"},
		{Role: schema.RoleSystem, Content: "Sorry, I encountered an error."},
		{Role: schema.RoleUser, Content: "try again"},
	}}

	got := Interpolate("{{history}}", scope)
	assert.Equal(t, "user: hello\nassistant: hi there\nuser: try again", got)
}

func TestInterpolateEmptyHistory(t *testing.T) {
	assert.Equal(t, "", Interpolate("{{history}}", Scope{}))
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("a {{query}} b"))
	assert.True(t, HasPlaceholders("{{unknown}}"))
	assert.False(t, HasPlaceholders("plain"))
	assert.False(t, HasPlaceholders("unclosed {{"))
	assert.False(t, HasPlaceholders("}} before {{"))
}
