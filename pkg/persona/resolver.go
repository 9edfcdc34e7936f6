package persona

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Resolver resolves the effective prompts for a persona, layering stored
// overrides over the built-in registry. Resolution order: override record,
// then registry default, then (for scheduler prompts) a hard-coded fallback.
type Resolver struct {
	overrides *OverrideStore
	logger    zerolog.Logger
}

// NewResolver creates a new resolver
func NewResolver(overrides *OverrideStore, logger zerolog.Logger) *Resolver {
	return &Resolver{overrides: overrides, logger: logger}
}

// BaseInstructions resolves the shared base instructions
func (r *Resolver) BaseInstructions(ctx context.Context) string {
	if o, err := r.overrides.Get(ctx, BaseInstructionsKey); err == nil && o != nil && o.BaseInstructions != nil {
		return *o.BaseInstructions
	}
	return DefaultBaseInstructions
}

// SystemSuffix resolves the persona's system prompt suffix
func (r *Resolver) SystemSuffix(ctx context.Context, personaKey string) (string, error) {
	p, ok := Get(personaKey)
	if !ok {
		return "", fmt.Errorf("unknown persona key: %s", personaKey)
	}

	o, err := r.overrides.Get(ctx, personaKey)
	if err != nil {
		r.logger.Warn().Err(err).Str("personaKey", personaKey).Msg("Failed to load override, using default")
		return p.SystemSuffix, nil
	}
	if o != nil && o.SystemSuffix != nil {
		return *o.SystemSuffix, nil
	}

	return p.SystemSuffix, nil
}

// SystemPrompt resolves the full system prompt: effective base instructions
// plus the persona's effective suffix
func (r *Resolver) SystemPrompt(ctx context.Context, personaKey string) (string, error) {
	suffix, err := r.SystemSuffix(ctx, personaKey)
	if err != nil {
		return "", err
	}

	base := r.BaseInstructions(ctx)
	if suffix == "" {
		return base, nil
	}

	return base + "\n\n" + suffix, nil
}

// SchedulerPrompts resolves the persona's scheduler prompt pool. The pool
// is never empty: when both the override and the registry pool are empty
// the hard-coded fallback phrase fills in.
func (r *Resolver) SchedulerPrompts(ctx context.Context, personaKey string) ([]string, error) {
	p, ok := Get(personaKey)
	if !ok {
		return nil, fmt.Errorf("unknown persona key: %s", personaKey)
	}

	o, err := r.overrides.Get(ctx, personaKey)
	if err != nil {
		r.logger.Warn().Err(err).Str("personaKey", personaKey).Msg("Failed to load override, using default")
	} else if o != nil && o.SchedulerPrompts != nil {
		if len(o.SchedulerPrompts) > 0 {
			return o.SchedulerPrompts, nil
		}
		return []string{FallbackSchedulerPrompt}, nil
	}

	if len(p.SchedulerPrompts) > 0 {
		return p.SchedulerPrompts, nil
	}

	return []string{FallbackSchedulerPrompt}, nil
}
