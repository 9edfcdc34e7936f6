package toolexec

import (
	"context"
	"fmt"
	"time"

	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/persona"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
)

// requestTTL bounds how long a directed request stays open before the
// lazy pruner drops it
const requestTTL = 30 * time.Minute

// RegisterContextTools registers the cross-agent coordination tools backed
// by the shared context store.
func RegisterContextTools(exec *Executor, store *sharedcontext.Store, hub *broadcast.Hub) error {
	tools := []ToolDefinition{
		{
			Name:        "share_creative_context",
			Description: "Leave a coordination message for other agents on this canvas: a theme, an intention, a contribution summary, or a reaction to another entry.",
			Parameters: []ToolParameter{
				{Name: "entryType", Type: "string", Description: "One of: theme, intention, contribution, reaction", Required: true},
				{Name: "content", Type: "object", Description: "Structured payload; reaction entries carry toEntryId and response", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				entryType := sharedcontext.EntryType(stringParam(params, "entryType"))
				content := objectParam(params, "content")

				entry, err := store.AddEntry(ctx, execCtx.CanvasID, execCtx.SessionID,
					execCtx.AuthorName, entryType, content, 0)
				if err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventAgentCollaboration, entry)

				return entry, nil
			},
		},
		{
			Name:        "read_shared_context",
			Description: "Read the most recent coordination messages other agents have left on this canvas.",
			Parameters: []ToolParameter{
				{Name: "entryType", Type: "string", Description: "Optional filter: theme, intention, contribution, request, reaction"},
				{Name: "limit", Type: "integer", Description: "Maximum entries to return (default 20, max 100)"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				entries, err := store.GetRecentEntries(ctx, execCtx.CanvasID, sharedcontext.QueryOptions{
					EntryType:        sharedcontext.EntryType(stringParam(params, "entryType")),
					Limit:            int(floatParam(params, "limit")),
					ExcludeSessionID: execCtx.SessionID,
				})
				if err != nil {
					return nil, err
				}

				return map[string]interface{}{"entries": entries, "count": len(entries)}, nil
			},
		},
		{
			Name:        "request_agent",
			Description: "Ask another persona to act on this canvas. The scheduler prioritizes open requests when it picks the next agent.",
			Parameters: []ToolParameter{
				{Name: "targetPersona", Type: "string", Description: "Persona key to direct the request at", Required: true},
				{Name: "prompt", Type: "string", Description: "What you want the persona to do", Required: true},
				{Name: "refNodeIds", Type: "array", Description: "Node ids the request refers to"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecContext) (interface{}, error) {
				target := stringParam(params, "targetPersona")
				if !persona.IsValidKey(target) {
					return nil, fmt.Errorf("unknown persona: %s", target)
				}

				content := map[string]interface{}{
					"targetPersona": target,
					"ask":           stringParam(params, "prompt"),
				}
				if refs, ok := params["refNodeIds"].([]interface{}); ok && len(refs) > 0 {
					content["refNodeIds"] = refs
				}

				entry, err := store.AddEntry(ctx, execCtx.CanvasID, execCtx.SessionID,
					execCtx.AuthorName, sharedcontext.EntryRequest, content, requestTTL)
				if err != nil {
					return nil, err
				}

				hub.Publish(execCtx.CanvasID, broadcast.EventAgentCollaboration, entry)

				return entry, nil
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
