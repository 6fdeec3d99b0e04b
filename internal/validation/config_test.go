package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/registry"
	"github.com/flowstack-dev/flowstack/pkg/schema"
)

func llmDefinition(t *testing.T) *schema.ComponentDefinition {
	t.Helper()
	def, err := registry.Default().Get(schema.ComponentLLMEngine)
	require.NoError(t, err)
	return def
}

func TestValidateDefaultConfigs(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	// Every built-in ships with defaults that pass its own rules.
	for _, def := range registry.Default().List() {
		assert.NoError(t, v.Validate(def, def.Config), "component %s", def.Type)
	}
}

func TestValidateSchemaViolation(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	err = v.Validate(llmDefinition(t), map[string]any{
		"model":       "gpt-4",
		"temperature": "hot",
		"maxTokens":   1000,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestValidateConstraintViolation(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	err = v.Validate(llmDefinition(t), map[string]any{
		"model":       "gpt-4",
		"temperature": 3.1,
		"maxTokens":   1000,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "constraint")
}

func TestValidateMaxTokensConstraint(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	err = v.Validate(llmDefinition(t), map[string]any{
		"model":       "gpt-4",
		"temperature": 0.7,
		"maxTokens":   64000,
	})
	require.Error(t, err)
}

func TestValidateNoSchemaNoConstraint(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	def := &schema.ComponentDefinition{Type: "bare", Label: "Bare"}
	assert.NoError(t, v.Validate(def, map[string]any{"anything": "goes"}))
	assert.NoError(t, v.Validate(def, nil))
}

func TestValidateNilDefinition(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	err = v.Validate(nil, nil)
	require.Error(t, err)
}

func TestKnowledgeBaseFormatEnum(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)

	kb, err := registry.Default().Get(schema.ComponentKnowledgeBase)
	require.NoError(t, err)

	err = v.Validate(kb, map[string]any{
		"supportedFormats": []any{"pdf", "exe"},
	})
	require.Error(t, err)

	assert.NoError(t, v.Validate(kb, map[string]any{
		"supportedFormats": []any{"pdf", "md"},
		"maxFileSize":      "25MB",
	}))
}
