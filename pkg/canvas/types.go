package canvas

import "time"

// Canvas is a shared drawing surface populated by agents
type Canvas struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Node is a single visual element on a canvas
type Node struct {
	ID        string                 `json:"id"`
	CanvasID  string                 `json:"canvas_id"`
	Type      string                 `json:"type"`
	X         float64                `json:"position_x"`
	Y         float64                `json:"position_y"`
	Width     float64                `json:"width"`
	Height    float64                `json:"height"`
	Content   string                 `json:"content,omitempty"`
	Style     map[string]interface{} `json:"style,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Edge connects two nodes on a canvas
type Edge struct {
	ID        string                 `json:"id"`
	CanvasID  string                 `json:"canvas_id"`
	SourceID  string                 `json:"source_id"`
	TargetID  string                 `json:"target_id"`
	Label     string                 `json:"label,omitempty"`
	Style     map[string]interface{} `json:"style,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Snapshot is a frozen copy of a canvas's nodes and edges
type Snapshot struct {
	ID        string    `json:"id"`
	CanvasID  string    `json:"canvas_id"`
	Name      string    `json:"name"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
}

// NodePatch applies a partial update to a node; nil fields are left unchanged
type NodePatch struct {
	Type    *string                `json:"type,omitempty"`
	X       *float64               `json:"position_x,omitempty"`
	Y       *float64               `json:"position_y,omitempty"`
	Width   *float64               `json:"width,omitempty"`
	Height  *float64               `json:"height,omitempty"`
	Content *string                `json:"content,omitempty"`
	Style   map[string]interface{} `json:"style,omitempty"`
}

// Bounds is the bounding box of a canvas's content
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// ContentBounds computes the bounding box of the given nodes.
// Returns false when the canvas has no nodes.
func ContentBounds(nodes []Node) (Bounds, bool) {
	if len(nodes) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		MinX: nodes[0].X,
		MinY: nodes[0].Y,
		MaxX: nodes[0].X + nodes[0].Width,
		MaxY: nodes[0].Y + nodes[0].Height,
	}

	for _, n := range nodes[1:] {
		if n.X < b.MinX {
			b.MinX = n.X
		}
		if n.Y < b.MinY {
			b.MinY = n.Y
		}
		if n.X+n.Width > b.MaxX {
			b.MaxX = n.X + n.Width
		}
		if n.Y+n.Height > b.MaxY {
			b.MaxY = n.Y + n.Height
		}
	}

	return b, true
}
