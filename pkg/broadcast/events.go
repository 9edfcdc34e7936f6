package broadcast

// Event names published on the per-canvas stream
const (
	EventNodeCreated        = "node_created"
	EventNodeUpdated        = "node_updated"
	EventNodeDeleted        = "node_deleted"
	EventEdgeCreated        = "edge_created"
	EventEdgeDeleted        = "edge_deleted"
	EventCanvasRestored     = "canvas_restored"
	EventAgentStatus        = "agent_status"
	EventAgentThought       = "agent_thought"
	EventAgentToolCall      = "agent_tool_call"
	EventAgentError         = "agent_error"
	EventAgentCollaboration = "agent_collaboration"
	EventPresence           = "presence"
)

// EventMessage is the wire envelope for broadcast events
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	CanvasID  string      `json:"canvas_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       int64       `json:"seq"`
}
