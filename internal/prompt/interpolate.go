package prompt

import (
	"fmt"
	"strings"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// Scope holds the values available to prompt placeholders when an
// llm-engine node's system prompt is assembled.
type Scope struct {
	Query   string
	Context string
	History []schema.Message
}

// Interpolate resolves {{query}}, {{context}} and {{history}} placeholders
// in a prompt template. Unknown placeholders are left intact so templates
// can carry literal braces for downstream tooling; an unclosed {{ is
// treated as literal text.
func Interpolate(template string, scope Scope) string {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		name := strings.TrimSpace(template[start:end])
		val, ok := resolve(name, scope)
		if !ok {
			// Unknown placeholder: write the token back unchanged.
			result.WriteString(template[i+idx : end+2])
		} else {
			result.WriteString(val)
		}

		i = end + 2
	}

	return result.String()
}

// HasPlaceholders reports whether a template contains any {{...}} tokens.
func HasPlaceholders(template string) bool {
	open := strings.Index(template, "{{")
	return open != -1 && strings.Contains(template[open:], "}}")
}

func resolve(name string, scope Scope) (string, bool) {
	switch name {
	case "query":
		return scope.Query, true
	case "context":
		return scope.Context, true
	case "history":
		return formatHistory(scope.History), true
	default:
		return "", false
	}
}

// formatHistory renders the transcript as role-prefixed lines, oldest
// first. System entries are excluded: they are UI-facing error text, not
// conversation.
func formatHistory(history []schema.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == schema.RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}
