package toolexec

import (
	"context"
	"fmt"

	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/canvas"
)

// RegisterCanvasTools registers the canvas mutation tools. Every handler
// completes its durable write before emitting the broadcast event, so a
// viewer pulling fresh state never sees an event for data the read path
// cannot return yet.
func RegisterCanvasTools(exec *Executor, store *canvas.Store, hub *broadcast.Hub) error {
	tools := []ToolDefinition{
		{
			Name:        "create_node",
			Description: "Create a new node on the canvas. Returns the new node including its id.",
			Parameters: []ToolParameter{
				{Name: "type", Type: "string", Description: "Node type: note, shape, image, frame", Required: true},
				{Name: "positionX", Type: "number", Description: "X position on the canvas"},
				{Name: "positionY", Type: "number", Description: "Y position on the canvas"},
				{Name: "width", Type: "number", Description: "Node width"},
				{Name: "height", Type: "number", Description: "Node height"},
				{Name: "content", Type: "string", Description: "Text content of the node"},
				{Name: "style", Type: "object", Description: "Visual style properties"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				node := canvas.Node{
					CanvasID: execCtx.CanvasID,
					Type:     stringParam(params, "type"),
					X:        floatParam(params, "positionX"),
					Y:        floatParam(params, "positionY"),
					Width:    floatParam(params, "width"),
					Height:   floatParam(params, "height"),
					Content:  stringParam(params, "content"),
					Style:    objectParam(params, "style"),
				}

				created, err := store.CreateNode(ctx, node)
				if err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventNodeCreated, created)

				return created, nil
			},
		},
		{
			Name:        "update_node",
			Description: "Update fields of an existing node. Only supplied fields change.",
			Parameters: []ToolParameter{
				{Name: "id", Type: "string", Description: "Node id", Required: true},
				{Name: "type", Type: "string", Description: "Node type"},
				{Name: "positionX", Type: "number", Description: "X position on the canvas"},
				{Name: "positionY", Type: "number", Description: "Y position on the canvas"},
				{Name: "width", Type: "number", Description: "Node width"},
				{Name: "height", Type: "number", Description: "Node height"},
				{Name: "content", Type: "string", Description: "Text content of the node"},
				{Name: "style", Type: "object", Description: "Visual style properties"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				id := stringParam(params, "id")

				node, err := store.GetNode(ctx, id)
				if err != nil {
					return nil, err
				}
				if node.CanvasID != execCtx.CanvasID {
					return nil, fmt.Errorf("node %s belongs to another canvas", id)
				}

				patch := canvas.NodePatch{
					Type:    stringPtrParam(params, "type"),
					X:       floatPtrParam(params, "positionX"),
					Y:       floatPtrParam(params, "positionY"),
					Width:   floatPtrParam(params, "width"),
					Height:  floatPtrParam(params, "height"),
					Content: stringPtrParam(params, "content"),
					Style:   objectParam(params, "style"),
				}

				updated, err := store.UpdateNode(ctx, id, patch)
				if err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventNodeUpdated, updated)

				return updated, nil
			},
		},
		{
			Name:        "delete_node",
			Description: "Delete a node and any edges attached to it.",
			Parameters: []ToolParameter{
				{Name: "id", Type: "string", Description: "Node id", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				id := stringParam(params, "id")

				node, err := store.GetNode(ctx, id)
				if err != nil {
					return nil, err
				}
				if node.CanvasID != execCtx.CanvasID {
					return nil, fmt.Errorf("node %s belongs to another canvas", id)
				}

				if err := store.DeleteNode(ctx, id); err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventNodeDeleted, map[string]string{"id": id})

				return map[string]string{"id": id, "deleted": "true"}, nil
			},
		},
		{
			Name:        "create_edge",
			Description: "Connect two nodes with an edge. Returns the new edge including its id.",
			Parameters: []ToolParameter{
				{Name: "sourceId", Type: "string", Description: "Source node id", Required: true},
				{Name: "targetId", Type: "string", Description: "Target node id", Required: true},
				{Name: "label", Type: "string", Description: "Edge label"},
				{Name: "style", Type: "object", Description: "Visual style properties"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				sourceID := stringParam(params, "sourceId")

				source, err := store.GetNode(ctx, sourceID)
				if err != nil {
					return nil, err
				}
				if source.CanvasID != execCtx.CanvasID {
					return nil, fmt.Errorf("edge endpoints belong to another canvas")
				}

				edge := canvas.Edge{
					SourceID: sourceID,
					TargetID: stringParam(params, "targetId"),
					Label:    stringParam(params, "label"),
					Style:    objectParam(params, "style"),
				}

				created, err := store.CreateEdge(ctx, edge)
				if err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventEdgeCreated, created)

				return created, nil
			},
		},
		{
			Name:        "delete_edge",
			Description: "Delete an edge.",
			Parameters: []ToolParameter{
				{Name: "id", Type: "string", Description: "Edge id", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				id := stringParam(params, "id")

				edge, err := store.GetEdge(ctx, id)
				if err != nil {
					return nil, err
				}
				if edge.CanvasID != execCtx.CanvasID {
					return nil, fmt.Errorf("edge %s belongs to another canvas", id)
				}

				if err := store.DeleteEdge(ctx, id); err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventEdgeDeleted, map[string]string{"id": id})

				return map[string]string{"id": id, "deleted": "true"}, nil
			},
		},
	}

	for _, tool := range tools {
		if err := exec.Register(tool); err != nil {
			return err
		}
	}

	return nil
}

func stringParam(params map[string]interface{}, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

func stringPtrParam(params map[string]interface{}, name string) *string {
	if v, ok := params[name].(string); ok {
		return &v
	}
	return nil
}

func floatParam(params map[string]interface{}, name string) float64 {
	if v, ok := params[name].(float64); ok {
		return v
	}
	return 0
}

func floatPtrParam(params map[string]interface{}, name string) *float64 {
	if v, ok := params[name].(float64); ok {
		return &v
	}
	return nil
}

func objectParam(params map[string]interface{}, name string) map[string]interface{} {
	if v, ok := params[name].(map[string]interface{}); ok {
		return v
	}
	return nil
}
