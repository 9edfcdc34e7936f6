package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error)

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ExecContext provides runtime information for tool execution
type ExecContext struct {
	CanvasID   string
	SessionID  string
	PersonaKey string
	AuthorName string
}

// ToolResult is the outcome of one tool call. A failed call carries Error
// and is fed back to the model as a tool result; it never aborts the run.
type ToolResult struct {
	Output interface{} `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Feedback renders the result as the tool-message content for the next
// conversation round
func (r ToolResult) Feedback() string {
	if r.Error != "" {
		data, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(data)
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(data)
}

// Executor manages and executes the canvas tool catalogue
type Executor struct {
	tools   map[string]*ToolDefinition
	order   []string
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// New creates a new Executor
func New() *Executor {
	return &Executor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register registers a new tool
func (e *Executor) Register(def ToolDefinition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; !exists {
		e.order = append(e.order, def.Name)
	}
	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Get returns a tool definition by name
func (e *Executor) Get(name string) *ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tools[name]
}

// Catalogue returns all tool definitions in registration order
func (e *Executor) Catalogue() []ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(e.order))
	for _, name := range e.order {
		defs = append(defs, *e.tools[name])
	}
	return defs
}

// Execute runs a tool against raw JSON arguments. Every failure mode
// (unknown tool, malformed arguments, schema violation, handler error)
// is captured in the ToolResult rather than returned as an error, so one
// bad call stays isolated from the rest of the run.
func (e *Executor) Execute(ctx context.Context, name, rawArgs string, execCtx *ExecContext) ToolResult {
	e.mu.RLock()
	tool := e.tools[name]
	schema := e.schemas[name]
	e.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", name).Msg("Tool not found")
		return ToolResult{Error: fmt.Sprintf("tool not found: %s", name)}
	}

	params := map[string]interface{}{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &params); err != nil {
			log.Warn().Str("tool", name).Err(err).Msg("Failed to parse tool arguments")
			return ToolResult{Error: fmt.Sprintf("invalid tool arguments: %v", err)}
		}
	}

	if err := validateParams(schema, params); err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Tool argument validation failed")
		return ToolResult{Error: fmt.Sprintf("argument validation failed: %v", err)}
	}

	output, err := tool.Handler(ctx, params, execCtx)
	if err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Tool execution failed")
		return ToolResult{Error: err.Error()}
	}

	log.Debug().Str("tool", name).Msg("Tool executed")

	return ToolResult{Output: output}
}

func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateSchema builds a JSON Schema from the tool's parameters
func generateSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           make(map[string]interface{}),
	}

	properties := schemaMap["properties"].(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

// InputSchema renders the tool's parameter spec in the JSON-schema-like
// shape the completion service expects
func (d ToolDefinition) InputSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	required := []string{}

	for _, param := range d.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
