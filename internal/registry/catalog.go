package registry

import "github.com/flowstack-dev/flowstack/pkg/schema"

// Config JSON Schemas for the built-in components. Embedded as constants to
// avoid filesystem dependencies.

const userQueryConfigSchema = `{
  "type": "object",
  "properties": {
    "placeholder": {"type": "string"},
    "required": {"type": "boolean"}
  }
}`

const knowledgeBaseConfigSchema = `{
  "type": "object",
  "properties": {
    "supportedFormats": {
      "type": "array",
      "items": {"type": "string", "enum": ["pdf", "txt", "docx", "md", "csv"]}
    },
    "maxFileSize": {"type": "string", "pattern": "^[0-9]+(KB|MB|GB)$"},
    "embeddingModel": {"type": "string"},
    "vectorStore": {"type": "string"}
  }
}`

const llmEngineConfigSchema = `{
  "type": "object",
  "properties": {
    "model": {"type": "string"},
    "temperature": {"type": "number", "minimum": 0},
    "maxTokens": {"type": "integer", "minimum": 1},
    "systemPrompt": {"type": "string"},
    "webSearch": {"type": "boolean"},
    "searchEngine": {"type": "string"}
  }
}`

const outputConfigSchema = `{
  "type": "object",
  "properties": {
    "displayFormat": {"type": "string", "enum": ["chat", "plain", "markdown"]},
    "showTimestamp": {"type": "boolean"},
    "allowFollowUp": {"type": "boolean"}
  }
}`

// Default returns a Registry seeded with the four built-in pipeline
// components: query intake, knowledge retrieval, LLM processing, and
// output display.
func Default() *Registry {
	r := New()
	for _, def := range builtins() {
		_ = r.Register(def)
	}
	return r
}

func builtins() []*schema.ComponentDefinition {
	return []*schema.ComponentDefinition{
		{
			Type:        schema.ComponentUserQuery,
			Label:       "User Query",
			Description: "Accepts user queries and serves as the entry point for workflows",
			Inputs:      []string{},
			Outputs:     []string{"query"},
			Config: map[string]any{
				"placeholder": "Enter your question...",
				"required":    true,
			},
			ConfigSchema: []byte(userQueryConfigSchema),
		},
		{
			Type:        schema.ComponentKnowledgeBase,
			Label:       "Knowledge Base",
			Description: "Upload documents, extract text, and retrieve relevant context",
			Inputs:      []string{"query"},
			Outputs:     []string{"context"},
			Config: map[string]any{
				"supportedFormats": []any{"pdf", "txt", "docx"},
				"maxFileSize":      "10MB",
				"embeddingModel":   "openai",
				"vectorStore":      "chromadb",
			},
			ConfigSchema: []byte(knowledgeBaseConfigSchema),
		},
		{
			Type:        schema.ComponentLLMEngine,
			Label:       "LLM Engine",
			Description: "Process queries with LLM and optionally search the web",
			Inputs:      []string{"query", "context"},
			Outputs:     []string{"response"},
			Config: map[string]any{
				"model":        "gpt-4",
				"temperature":  0.7,
				"maxTokens":    1000,
				"systemPrompt": "You are a helpful AI assistant.",
				"webSearch":    false,
				"searchEngine": "serpapi",
			},
			ConfigSchema: []byte(llmEngineConfigSchema),
			Constraint:   `double(config.temperature) <= 2.0 && int(config.maxTokens) <= 32000`,
		},
		{
			Type:        schema.ComponentOutput,
			Label:       "Output",
			Description: "Display final responses in a chat interface",
			Inputs:      []string{"response"},
			Outputs:     []string{},
			Config: map[string]any{
				"displayFormat": "chat",
				"showTimestamp": true,
				"allowFollowUp": true,
			},
			ConfigSchema: []byte(outputConfigSchema),
		},
	}
}
