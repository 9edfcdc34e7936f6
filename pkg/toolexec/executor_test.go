package toolexec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo a message back",
		Parameters: []ToolParameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
			{Name: "count", Type: "number", Description: "Repeat count"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
			return map[string]interface{}{"echo": params["message"]}, nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		exec := New()
		err := exec.Register(echoTool())
		require.NoError(t, err)
		assert.NotNil(t, exec.Get("echo"))
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))
		assert.Error(t, exec.Register(echoTool()))
	})

	t.Run("should reject tool without handler", func(t *testing.T) {
		exec := New()
		def := echoTool()
		def.Handler = nil
		assert.Error(t, exec.Register(def))
	})

	t.Run("should keep catalogue in registration order", func(t *testing.T) {
		exec := New()
		first := echoTool()
		second := echoTool()
		second.Name = "echo_two"
		require.NoError(t, exec.Register(first))
		require.NoError(t, exec.Register(second))

		catalogue := exec.Catalogue()
		require.Len(t, catalogue, 2)
		assert.Equal(t, "echo", catalogue[0].Name)
		assert.Equal(t, "echo_two", catalogue[1].Name)
	})
}

func TestExecute(t *testing.T) {
	t.Run("should execute a tool call", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))

		result := exec.Execute(context.Background(), "echo", `{"message": "hi"}`, &ExecContext{})
		assert.Empty(t, result.Error)
		assert.Equal(t, map[string]interface{}{"echo": "hi"}, result.Output)
	})

	t.Run("should report unknown tool as a result error", func(t *testing.T) {
		exec := New()

		result := exec.Execute(context.Background(), "vanish", `{}`, &ExecContext{})
		assert.Contains(t, result.Error, "vanish")
	})

	t.Run("should isolate malformed arguments", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))

		result := exec.Execute(context.Background(), "echo", `{"message": `, &ExecContext{})
		assert.NotEmpty(t, result.Error)
		assert.Nil(t, result.Output)
	})

	t.Run("should reject arguments missing a required field", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))

		result := exec.Execute(context.Background(), "echo", `{"count": 2}`, &ExecContext{})
		assert.NotEmpty(t, result.Error)
	})

	t.Run("should capture handler errors without panicking", func(t *testing.T) {
		exec := New()
		def := echoTool()
		def.Name = "fail"
		def.Handler = func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
			return nil, errors.New("storage unavailable")
		}
		require.NoError(t, exec.Register(def))

		result := exec.Execute(context.Background(), "fail", `{"message": "x"}`, &ExecContext{})
		assert.Contains(t, result.Error, "storage unavailable")
	})
}

func TestFeedback(t *testing.T) {
	t.Run("should render errors as an error object", func(t *testing.T) {
		result := ToolResult{Error: "boom"}
		assert.JSONEq(t, `{"error": "boom"}`, result.Feedback())
	})

	t.Run("should render output as JSON", func(t *testing.T) {
		result := ToolResult{Output: map[string]string{"id": "n1"}}
		assert.JSONEq(t, `{"id": "n1"}`, result.Feedback())
	})
}

func TestInputSchema(t *testing.T) {
	t.Run("should list properties and required fields", func(t *testing.T) {
		schema := echoTool().InputSchema()

		assert.Equal(t, "object", schema["type"])
		props, ok := schema["properties"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, props, "message")
		assert.Contains(t, props, "count")
		assert.Equal(t, []string{"message"}, schema["required"])
	})
}
