package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/canvas"
	"github.com/atelierhq/atelier/pkg/persona"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
	"github.com/atelierhq/atelier/pkg/toolexec"
)

const contextDigestLimit = 10

// Runner drives one agent conversation against the completion service,
// executing requested tools round by round until the agent stops asking
// for them or the round budget runs out.
type Runner struct {
	providers ProviderSource
	sessions  *SessionStore
	canvases  *canvas.Store
	shared    *sharedcontext.Store
	resolver  *persona.Resolver
	executor  *toolexec.Executor
	hub       *broadcast.Hub
	logger    zerolog.Logger

	maxRounds int
	maxTokens int
}

// RunnerConfig holds runner dependencies
type RunnerConfig struct {
	Providers ProviderSource
	Sessions  *SessionStore
	Canvases  *canvas.Store
	Shared    *sharedcontext.Store
	Resolver  *persona.Resolver
	Executor  *toolexec.Executor
	Hub       *broadcast.Hub
	MaxRounds int
	MaxTokens int
	Logger    zerolog.Logger
}

// NewRunner creates a runner
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider factory is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Canvases == nil {
		return nil, fmt.Errorf("canvas store is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("prompt resolver is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	return &Runner{
		providers: cfg.Providers,
		sessions:  cfg.Sessions,
		canvases:  cfg.Canvases,
		shared:    cfg.Shared,
		resolver:  cfg.Resolver,
		executor:  cfg.Executor,
		hub:       cfg.Hub,
		logger:    cfg.Logger.With().Str("component", "runner").Logger(),
		maxRounds: cfg.MaxRounds,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Run executes the agent conversation for an admitted session. The prompt
// must already be sanitized.
func (r *Runner) Run(ctx context.Context, session *Session, prompt string) {
	logger := r.logger.With().
		Str("session_id", session.ID).
		Str("canvas_id", session.CanvasID).
		Str("persona", session.PersonaKey).
		Logger()

	provider, err := r.providers.ProviderForModel(session.Model)
	if err != nil {
		r.fail(ctx, session, logger, fmt.Errorf("no provider for model %s: %w", session.Model, err))
		return
	}

	systemPrompt, err := r.resolver.SystemPrompt(ctx, session.PersonaKey)
	if err != nil {
		r.fail(ctx, session, logger, fmt.Errorf("failed to resolve system prompt: %w", err))
		return
	}

	opening, err := r.buildOpeningMessage(ctx, session, prompt)
	if err != nil {
		r.fail(ctx, session, logger, err)
		return
	}

	messages := []Message{{Role: "user", Content: opening}}

	tools := []ToolSpec{}
	for _, def := range r.executor.Catalogue() {
		tools = append(tools, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}

	execCtx := &toolexec.ExecContext{
		CanvasID:   session.CanvasID,
		SessionID:  session.ID,
		PersonaKey: session.PersonaKey,
		AuthorName: authorName(session.PersonaKey),
	}

	r.setStatus(ctx, session, StatusThinking, logger)

	for round := 0; round < r.maxRounds; round++ {
		response, err := provider.Call(ctx, LLMRequest{
			Model:        session.Model,
			Messages:     messages,
			Tools:        tools,
			MaxTokens:    r.maxTokens,
			SystemPrompt: systemPrompt,
		})
		if err == ErrNoChoice {
			logger.Debug().Int("round", round).Msg("No choice returned, ending run")
			r.setStatus(ctx, session, StatusIdle, logger)
			return
		}
		if err != nil {
			r.fail(ctx, session, logger, fmt.Errorf("completion call failed: %w", err))
			return
		}

		if response.Usage != nil {
			logger.Debug().
				Int("round", round).
				Int("input_tokens", response.Usage.InputTokens).
				Int("output_tokens", response.Usage.OutputTokens).
				Msg("Completion round finished")
		}

		if response.Content != "" && r.hub != nil {
			r.hub.Publish(session.CanvasID, broadcast.EventAgentThought, map[string]interface{}{
				"session_id": session.ID,
				"persona":    session.PersonaKey,
				"thought":    response.Content,
			})
		}

		if len(response.ToolCalls) == 0 {
			r.setStatus(ctx, session, StatusIdle, logger)
			return
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		r.setStatus(ctx, session, StatusActing, logger)

		// Tool calls run one at a time, in the order the model asked
		for _, call := range response.ToolCalls {
			result := r.executor.Execute(ctx, call.Name, call.Arguments, execCtx)

			record := ToolCallRecord{
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    result.Output,
				Error:     result.Error,
				Timestamp: time.Now(),
			}
			if err := r.sessions.AppendToolCall(ctx, session.ID, record); err != nil {
				logger.Error().Err(err).Str("tool", call.Name).Msg("Failed to record tool call")
			}

			if r.hub != nil {
				r.hub.Publish(session.CanvasID, broadcast.EventAgentToolCall, map[string]interface{}{
					"session_id": session.ID,
					"persona":    session.PersonaKey,
					"tool":       call.Name,
					"error":      result.Error,
				})
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    result.Feedback(),
				ToolCallID: call.ID,
			})
		}

		r.setStatus(ctx, session, StatusThinking, logger)
	}

	logger.Info().Int("max_rounds", r.maxRounds).Msg("Round budget exhausted, ending run")
	r.setStatus(ctx, session, StatusIdle, logger)
}

// buildOpeningMessage assembles the first user turn: the current canvas
// inventory, a spatial hint for placing new work, a digest of recent
// coordination entries, and finally the caller's prompt.
func (r *Runner) buildOpeningMessage(ctx context.Context, session *Session, prompt string) (string, error) {
	nodes, err := r.canvases.ListNodes(ctx, session.CanvasID)
	if err != nil {
		return "", fmt.Errorf("failed to list nodes: %w", err)
	}
	edges, err := r.canvases.ListEdges(ctx, session.CanvasID)
	if err != nil {
		return "", fmt.Errorf("failed to list edges: %w", err)
	}

	var b strings.Builder

	b.WriteString("## Current canvas\n")
	if len(nodes) == 0 {
		b.WriteString("The canvas is empty. Place your first nodes near the origin (0, 0).\n")
	} else {
		fmt.Fprintf(&b, "%d nodes, %d edges.\n", len(nodes), len(edges))
		for _, n := range nodes {
			fmt.Fprintf(&b, "- node %s [%s] at (%.0f, %.0f): %s\n",
				n.ID, n.Type, n.X, n.Y, truncate(n.Content, 120))
		}
		for _, e := range edges {
			fmt.Fprintf(&b, "- edge %s: %s -> %s", e.ID, e.SourceID, e.TargetID)
			if e.Label != "" {
				fmt.Fprintf(&b, " (%s)", e.Label)
			}
			b.WriteString("\n")
		}
		if bounds, ok := canvas.ContentBounds(nodes); ok {
			fmt.Fprintf(&b, "Content occupies x %.0f..%.0f, y %.0f..%.0f. Place new nodes adjacent to this region rather than on top of it.\n",
				bounds.MinX, bounds.MaxX, bounds.MinY, bounds.MaxY)
		}
	}

	if r.shared != nil {
		entries, err := r.shared.GetRecentEntries(ctx, session.CanvasID, sharedcontext.QueryOptions{
			Limit:            contextDigestLimit,
			ExcludeSessionID: session.ID,
		})
		if err == nil && len(entries) > 0 {
			b.WriteString("\n## Shared context from other agents\n")
			for _, entry := range entries {
				fmt.Fprintf(&b, "- [%s] %s: %s\n", entry.EntryType, entry.AuthorName, summarizeContent(entry.Content))
			}
		}
	}

	b.WriteString("\n## Task\n")
	b.WriteString(prompt)

	return b.String(), nil
}

func (r *Runner) setStatus(ctx context.Context, session *Session, status Status, logger zerolog.Logger) {
	session.Status = status
	if err := r.sessions.UpdateStatus(ctx, session.ID, status); err != nil {
		logger.Error().Err(err).Str("status", string(status)).Msg("Failed to update session status")
	}
	if r.hub != nil {
		r.hub.Publish(session.CanvasID, broadcast.EventAgentStatus, map[string]interface{}{
			"session_id": session.ID,
			"persona":    session.PersonaKey,
			"status":     string(status),
		})
	}
}

func (r *Runner) fail(ctx context.Context, session *Session, logger zerolog.Logger, err error) {
	logger.Error().Err(err).Msg("Agent run failed")
	r.setStatus(ctx, session, StatusError, logger)
	if r.hub != nil {
		r.hub.Publish(session.CanvasID, broadcast.EventAgentError, map[string]interface{}{
			"session_id": session.ID,
			"persona":    session.PersonaKey,
			"error":      err.Error(),
		})
	}
}

func authorName(personaKey string) string {
	if p, ok := persona.Get(personaKey); ok {
		return fmt.Sprintf("%s %s", p.Emoji, p.Name)
	}
	return personaKey
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func summarizeContent(content map[string]interface{}) string {
	if text, ok := content["text"].(string); ok {
		return truncate(text, 160)
	}
	if ask, ok := content["ask"].(string); ok {
		return truncate(ask, 160)
	}
	for _, v := range content {
		if s, ok := v.(string); ok {
			return truncate(s, 160)
		}
	}
	return fmt.Sprintf("%v", content)
}
