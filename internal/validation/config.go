package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// ConfigValidator checks a node's config map against its component's JSON
// Schema and CEL constraint. Compiled schemas and programs are cached per
// component type. Safe for concurrent use.
type ConfigValidator struct {
	env *cel.Env

	mu       sync.RWMutex
	schemas  map[schema.ComponentType]*jsonschema.Schema
	programs map[string]cel.Program
}

// NewConfigValidator creates a ConfigValidator with a sandboxed CEL
// environment exposing a single top-level variable:
//   - config: map(string, dyn), the node's config map
func NewConfigValidator() (*ConfigValidator, error) {
	env, err := cel.NewEnv(
		cel.Variable("config", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &ConfigValidator{
		env:      env,
		schemas:  make(map[schema.ComponentType]*jsonschema.Schema),
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate checks config against def.ConfigSchema and def.Constraint.
// A nil or empty schema and constraint mean no validation is needed.
func (v *ConfigValidator) Validate(def *schema.ComponentDefinition, config map[string]any) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "component definition is nil")
	}
	if config == nil {
		config = map[string]any{}
	}

	if len(def.ConfigSchema) > 0 {
		compiled, err := v.getOrCompileSchema(def)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"invalid config schema for component %q", def.Type).WithCause(err)
		}

		doc, err := toJSONValue(config)
		if err != nil {
			return schema.NewError(schema.ErrCodeValidation, "failed to serialize config").WithCause(err)
		}

		if err := compiled.Validate(doc); err != nil {
			return toFlowError(err)
		}
	}

	if def.Constraint != "" {
		ok, err := v.evalConstraint(def.Constraint, config)
		if err != nil {
			return err
		}
		if !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"config violates constraint %q for component %q", def.Constraint, def.Type).
				WithDetails(map[string]any{"constraint": def.Constraint})
		}
	}

	return nil
}

// getOrCompileSchema returns a cached compiled schema or compiles and
// caches a new one keyed by component type.
func (v *ConfigValidator) getOrCompileSchema(def *schema.ComponentDefinition) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.schemas[def.Type]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.schemas[def.Type]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(def.ConfigSchema)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("flowstack://config-schema/%s", def.Type)
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.schemas[def.Type] = compiled
	return compiled, nil
}

// evalConstraint compiles (or retrieves from cache) a CEL constraint and
// evaluates it against the config map.
func (v *ConfigValidator) evalConstraint(expression string, config map[string]any) (bool, error) {
	prg, err := v.getOrCompileProgram(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{"config": config})
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"constraint evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"constraint": expression})
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"constraint %q did not evaluate to a boolean", expression)
	}
	return b, nil
}

func (v *ConfigValidator) getOrCompileProgram(expression string) (cel.Program, error) {
	v.mu.RLock()
	if prg, ok := v.programs[expression]; ok {
		v.mu.RUnlock()
		return prg, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if prg, ok := v.programs[expression]; ok {
		return prg, nil
	}

	ast, issues := v.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid constraint %q: %s", expression, issues.Err().Error()).WithCause(issues.Err())
	}

	prg, err := v.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"constraint program build failed for %q: %s", expression, err.Error()).WithCause(err)
	}

	v.programs[expression] = prg
	return prg, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so
// that numeric values become json.Number (required by the jsonschema
// library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// the leaf violations collected.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("config validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
