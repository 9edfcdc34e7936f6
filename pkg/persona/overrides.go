package persona

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Override is a stored per-persona prompt customization. Nil fields mean
// "no override, use the built-in default".
type Override struct {
	PersonaKey       string    `json:"persona_key"`
	BaseInstructions *string   `json:"base_instructions,omitempty"`
	SystemSuffix     *string   `json:"system_suffix,omitempty"`
	SchedulerPrompts []string  `json:"scheduler_prompts,omitempty"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// OverridePatch carries the fields an update intends to change. Nil fields
// keep the previously stored override value, not the built-in default.
type OverridePatch struct {
	BaseInstructions *string  `json:"base_instructions,omitempty"`
	SystemSuffix     *string  `json:"system_suffix,omitempty"`
	SchedulerPrompts []string `json:"scheduler_prompts,omitempty"`
	UpdatedBy        string   `json:"updated_by,omitempty"`
}

// OverrideStore persists persona prompt overrides in SQLite
type OverrideStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewOverrideStore initializes the override table on a shared database
func NewOverrideStore(db *sql.DB, logger zerolog.Logger) (*OverrideStore, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS persona_prompt_configs (
			persona_key TEXT PRIMARY KEY,
			base_instructions TEXT,
			system_suffix TEXT,
			scheduler_prompts TEXT,
			updated_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize override schema: %w", err)
	}

	return &OverrideStore{db: db, logger: logger}, nil
}

// validKey accepts persona keys plus the base-instructions sentinel
func validKey(key string) error {
	if key == BaseInstructionsKey || IsValidKey(key) {
		return nil
	}
	return fmt.Errorf("unknown persona key: %s", key)
}

// Get returns the override for a key, or nil when none is stored
func (s *OverrideStore) Get(ctx context.Context, personaKey string) (*Override, error) {
	if err := validKey(personaKey); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT persona_key, base_instructions, system_suffix, scheduler_prompts, updated_by, created_at, updated_at
		 FROM persona_prompt_configs WHERE persona_key = ?`, personaKey)

	var o Override
	var base, suffix, prompts sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&o.PersonaKey, &base, &suffix, &prompts, &o.UpdatedBy, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan override: %w", err)
	}

	if base.Valid {
		o.BaseInstructions = &base.String
	}
	if suffix.Valid {
		o.SystemSuffix = &suffix.String
	}
	if prompts.Valid && prompts.String != "" {
		if err := json.Unmarshal([]byte(prompts.String), &o.SchedulerPrompts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scheduler prompts: %w", err)
		}
	}
	o.CreatedAt = time.UnixMilli(createdAt)
	o.UpdatedAt = time.UnixMilli(updatedAt)

	return &o, nil
}

// Upsert merges a patch into the stored override. Omitted fields retain
// their previous override value (COALESCE semantics), never the built-in
// default.
func (s *OverrideStore) Upsert(ctx context.Context, personaKey string, patch OverridePatch) (*Override, error) {
	if err := validKey(personaKey); err != nil {
		return nil, err
	}

	var promptsJSON interface{}
	if patch.SchedulerPrompts != nil {
		data, err := json.Marshal(patch.SchedulerPrompts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal scheduler prompts: %w", err)
		}
		promptsJSON = string(data)
	}

	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persona_prompt_configs
			(persona_key, base_instructions, system_suffix, scheduler_prompts, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(persona_key) DO UPDATE SET
			base_instructions = COALESCE(excluded.base_instructions, persona_prompt_configs.base_instructions),
			system_suffix = COALESCE(excluded.system_suffix, persona_prompt_configs.system_suffix),
			scheduler_prompts = COALESCE(excluded.scheduler_prompts, persona_prompt_configs.scheduler_prompts),
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		personaKey, patch.BaseInstructions, patch.SystemSuffix, promptsJSON, patch.UpdatedBy, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert override: %w", err)
	}

	s.logger.Info().Str("personaKey", personaKey).Str("updatedBy", patch.UpdatedBy).Msg("Persona override updated")

	return s.Get(ctx, personaKey)
}

// Reset removes the override record, reverting the key to built-in defaults
func (s *OverrideStore) Reset(ctx context.Context, personaKey string) error {
	if err := validKey(personaKey); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM persona_prompt_configs WHERE persona_key = ?`, personaKey); err != nil {
		return fmt.Errorf("failed to reset override: %w", err)
	}

	s.logger.Info().Str("personaKey", personaKey).Msg("Persona override reset")

	return nil
}
