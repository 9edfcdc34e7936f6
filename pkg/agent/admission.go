package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier/pkg/broadcast"
)

// ErrEmptyPrompt is returned when a prompt is empty after sanitization
var ErrEmptyPrompt = errors.New("prompt is empty after sanitization")

// ErrMaxConcurrent is returned when a canvas is at its concurrency cap
var ErrMaxConcurrent = errors.New("max concurrent sessions reached")

// Invoker admits agent runs, enforcing the per-canvas concurrency cap,
// and launches admitted runs in the background.
type Invoker struct {
	runner   *Runner
	sessions *SessionStore
	hub      *broadcast.Hub
	logger   zerolog.Logger

	maxConcurrent   int
	maxPromptLength int

	mu       sync.Mutex
	inFlight map[string]int // canvas id -> running session count
}

// InvokerConfig holds invoker dependencies
type InvokerConfig struct {
	Runner          *Runner
	Sessions        *SessionStore
	Hub             *broadcast.Hub
	MaxConcurrent   int
	MaxPromptLength int
	Logger          zerolog.Logger
}

// NewInvoker creates an invoker with the given limits
func NewInvoker(cfg InvokerConfig) (*Invoker, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = 4000
	}

	return &Invoker{
		runner:          cfg.Runner,
		sessions:        cfg.Sessions,
		hub:             cfg.Hub,
		logger:          cfg.Logger.With().Str("component", "invoker").Logger(),
		maxConcurrent:   cfg.MaxConcurrent,
		maxPromptLength: cfg.MaxPromptLength,
		inFlight:        make(map[string]int),
	}, nil
}

// SanitizePrompt normalizes a raw prompt: control characters stripped,
// whitespace runs collapsed to one space, then trimmed and truncated.
func (inv *Invoker) SanitizePrompt(prompt string) (string, error) {
	var b strings.Builder
	b.Grow(len(prompt))

	inSpace := false
	for _, r := range prompt {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteRune(' ')
				inSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		inSpace = false
	}

	sanitized := strings.TrimSpace(b.String())
	if sanitized == "" {
		return "", ErrEmptyPrompt
	}

	if len(sanitized) > inv.maxPromptLength {
		// Back off to a rune boundary so truncation never leaves invalid UTF-8.
		cut := inv.maxPromptLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimSpace(sanitized[:cut])
	}

	return sanitized, nil
}

// Invoke admits and launches an agent run. It returns the created session
// immediately; the run itself proceeds in the background.
func (inv *Invoker) Invoke(ctx context.Context, canvasID, personaKey, model, prompt string) (*Session, error) {
	sanitized, err := inv.SanitizePrompt(prompt)
	if err != nil {
		return nil, err
	}

	if err := inv.acquire(canvasID); err != nil {
		return nil, err
	}

	session, err := inv.sessions.Create(ctx, canvasID, personaKey, model)
	if err != nil {
		inv.release(canvasID)
		return nil, err
	}

	inv.logger.Info().
		Str("session_id", session.ID).
		Str("canvas_id", canvasID).
		Str("persona", personaKey).
		Msg("Agent run admitted")

	go inv.execute(session, sanitized)

	return session, nil
}

// acquire reserves an in-flight slot for the canvas. Check and increment
// happen under one lock so concurrent invocations cannot exceed the cap.
func (inv *Invoker) acquire(canvasID string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.inFlight[canvasID] >= inv.maxConcurrent {
		return fmt.Errorf("canvas %s already has %d agents running (max %d): %w",
			canvasID, inv.inFlight[canvasID], inv.maxConcurrent, ErrMaxConcurrent)
	}

	inv.inFlight[canvasID]++
	return nil
}

func (inv *Invoker) release(canvasID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.inFlight[canvasID]--
	if inv.inFlight[canvasID] <= 0 {
		delete(inv.inFlight, canvasID)
	}
}

// ActiveCount returns how many runs are in flight for a canvas
func (inv *Invoker) ActiveCount(canvasID string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.inFlight[canvasID]
}

func (inv *Invoker) execute(session *Session, prompt string) {
	defer inv.release(session.CanvasID)
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error().
				Str("session_id", session.ID).
				Interface("panic", r).
				Msg("Agent run panicked")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := inv.sessions.UpdateStatus(ctx, session.ID, StatusError); err != nil {
				inv.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to mark session errored")
			}
			if inv.hub != nil {
				inv.hub.Publish(session.CanvasID, broadcast.EventAgentError, map[string]interface{}{
					"session_id": session.ID,
					"persona":    session.PersonaKey,
					"error":      fmt.Sprintf("internal error: %v", r),
				})
			}
		}
	}()

	inv.runner.Run(context.Background(), session, prompt)
}
