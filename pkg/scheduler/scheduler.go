package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/atelierhq/atelier/pkg/agent"
	"github.com/atelierhq/atelier/pkg/canvas"
	"github.com/atelierhq/atelier/pkg/persona"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
)

const checkContextSuffix = " Check the shared context first and respond to any pending requests before starting new work."

// Scheduler autonomously starts agent runs. A short check interval keeps
// it responsive while a longer action interval throttles how often an
// agent actually acts.
type Scheduler struct {
	invoker  *agent.Invoker
	canvases *canvas.Store
	shared   *sharedcontext.Store
	resolver *persona.Resolver
	logger   zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	rng     *rand.Rand

	defaultModel string

	mu             sync.Mutex
	enabled        bool
	actionInterval time.Duration
	lastDispatch   time.Time
}

// Config holds scheduler dependencies and intervals
type Config struct {
	Invoker        *agent.Invoker
	Canvases       *canvas.Store
	Shared         *sharedcontext.Store
	Resolver       *persona.Resolver
	DefaultModel   string
	Enabled        bool
	CheckInterval  time.Duration
	ActionInterval time.Duration
	Logger         zerolog.Logger
}

// New creates a scheduler
func New(cfg Config) (*Scheduler, error) {
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if cfg.Canvases == nil {
		return nil, fmt.Errorf("canvas store is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("prompt resolver is required")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.ActionInterval <= 0 {
		cfg.ActionInterval = 45 * time.Second
	}
	if cfg.DefaultModel == "" {
		return nil, fmt.Errorf("default model is required")
	}

	s := &Scheduler{
		invoker:        cfg.Invoker,
		canvases:       cfg.Canvases,
		shared:         cfg.Shared,
		resolver:       cfg.Resolver,
		logger:         cfg.Logger.With().Str("component", "scheduler").Logger(),
		cron:           cron.New(),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		defaultModel:   cfg.DefaultModel,
		enabled:        cfg.Enabled,
		actionInterval: cfg.ActionInterval,
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", cfg.CheckInterval), s.tick)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule tick: %w", err)
	}
	s.entryID = entryID

	return s, nil
}

// Start begins the tick loop
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Bool("enabled", s.Enabled()).
		Dur("action_interval", s.actionInterval).
		Msg("Scheduler started")
}

// Stop halts the tick loop and waits for a running tick to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Enabled reports whether autonomous dispatch is on
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles autonomous dispatch at runtime
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled != enabled {
		s.logger.Info().Bool("enabled", enabled).Msg("Scheduler toggled")
	}
	s.enabled = enabled
}

// SetActionInterval adjusts the dispatch throttle at runtime
func (s *Scheduler) SetActionInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionInterval = interval
}

// shouldDispatch checks the enabled flag and the action-interval debounce
func (s *Scheduler) shouldDispatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return false
	}
	return time.Since(s.lastDispatch) >= s.actionInterval
}

func (s *Scheduler) recordDispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDispatch = time.Now()
}

func (s *Scheduler) tick() {
	if !s.shouldDispatch() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	canvases, err := s.canvases.ListCanvases(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list canvases")
		return
	}
	if len(canvases) == 0 {
		return
	}

	target := canvases[s.rng.Intn(len(canvases))]

	personaKey, prompt, err := s.choose(ctx, target.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("canvas_id", target.ID).Msg("Failed to choose dispatch")
		return
	}

	session, err := s.invoker.Invoke(ctx, target.ID, personaKey, s.defaultModel, prompt)
	if err != nil {
		// Rejection (usually the concurrency cap) leaves lastDispatch
		// untouched so the next tick retries.
		s.logger.Warn().Err(err).
			Str("canvas_id", target.ID).
			Str("persona", personaKey).
			Msg("Autonomous dispatch rejected")
		return
	}

	s.recordDispatch()
	s.logger.Info().
		Str("canvas_id", target.ID).
		Str("persona", personaKey).
		Str("session_id", session.ID).
		Msg("Autonomous agent dispatched")
}

// choose picks a persona and prompt for a canvas. An open directed
// request wins; otherwise both persona and template are drawn at random.
func (s *Scheduler) choose(ctx context.Context, canvasID string) (string, string, error) {
	if s.shared != nil {
		requests, err := s.shared.GetOpenRequests(ctx, canvasID, "", "")
		if err != nil {
			return "", "", err
		}
		for _, req := range requests {
			target := req.TargetPersona()
			if !persona.IsValidKey(target) {
				// An unknown target is ignored rather than surfaced;
				// random selection below still gives the canvas a turn.
				continue
			}
			ask := req.Ask()
			if ask == "" {
				ask = "collaborate on the current canvas"
			}
			prompt := fmt.Sprintf("Another agent asked you to: %s.%s", ask, checkContextSuffix)
			return target, prompt, nil
		}
	}

	keys := persona.Keys()
	personaKey := keys[s.rng.Intn(len(keys))]

	templates, err := s.resolver.SchedulerPrompts(ctx, personaKey)
	if err != nil {
		return "", "", err
	}
	template := persona.FallbackSchedulerPrompt
	if len(templates) > 0 {
		template = templates[s.rng.Intn(len(templates))]
	}

	return personaKey, template + checkContextSuffix, nil
}
