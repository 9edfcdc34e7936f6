package agent

import (
	"errors"
	"time"
)

// Status is an agent session's lifecycle state
type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusActing   Status = "acting"
	StatusError    Status = "error"
)

// IsTerminal reports whether the status ends the session
func (s Status) IsTerminal() bool {
	return s == StatusIdle || s == StatusError
}

// Session is one invocation of an agent persona on one canvas
type Session struct {
	ID         string           `json:"id"`
	CanvasID   string           `json:"canvas_id"`
	PersonaKey string           `json:"persona_key"`
	Model      string           `json:"model"`
	Status     Status           `json:"status"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ToolCallRecord is one entry in a session's ordered tool-call log
type ToolCallRecord struct {
	Name      string      `json:"name"`
	Arguments string      `json:"arguments"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToolCall is a tool invocation requested by the completion service.
// Arguments stay raw JSON so a parse failure can be isolated to the one
// call instead of failing the whole provider response.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message represents one turn in the conversation sent to the provider
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// TokenUsage tracks token consumption for one provider round-trip
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
	Priority int    `json:"priority"` // lower = preferred
}

// ErrNoChoice is returned when the completion service responds without a
// usable choice. The run loop treats it as a clean end of conversation.
var ErrNoChoice = errors.New("completion service returned no choice")
