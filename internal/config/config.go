package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Atelier configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// AI provider credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent execution limits
	Agents AgentsConfig `json:"agents" mapstructure:"agents"`

	// Autonomous scheduler
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory (sqlite database lives here)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP/WebSocket server configuration
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider credential profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentsConfig holds agent run limits
type AgentsConfig struct {
	DefaultModel          string `json:"default_model" mapstructure:"default_model"`
	MaxConcurrentSessions int    `json:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
	MaxRounds             int    `json:"max_rounds" mapstructure:"max_rounds"`
	MaxPromptLength       int    `json:"max_prompt_length" mapstructure:"max_prompt_length"`
}

// SchedulerConfig holds autonomous scheduler configuration
type SchedulerConfig struct {
	Enabled          bool `json:"enabled" mapstructure:"enabled"`
	CheckIntervalMs  int  `json:"check_interval_ms" mapstructure:"check_interval_ms"`
	ActionIntervalMs int  `json:"action_interval_ms" mapstructure:"action_interval_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			SharedSecret: "",
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Agents: AgentsConfig{
			DefaultModel:          "gpt-4o-mini",
			MaxConcurrentSessions: 3,
			MaxRounds:             10,
			MaxPromptLength:       4000,
		},
		Scheduler: SchedulerConfig{
			Enabled:          false,
			CheckIntervalMs:  5000,
			ActionIntervalMs: 45000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate AI profiles
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	if c.Agents.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("max_concurrent_sessions must be positive")
	}
	if c.Agents.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be positive")
	}
	if c.Agents.MaxPromptLength <= 0 {
		return fmt.Errorf("max_prompt_length must be positive")
	}

	if c.Scheduler.CheckIntervalMs <= 0 {
		return fmt.Errorf("scheduler check_interval_ms must be positive")
	}
	if c.Scheduler.ActionIntervalMs <= 0 {
		return fmt.Errorf("scheduler action_interval_ms must be positive")
	}

	// The scheduler cannot act without at least one credential profile
	if c.Scheduler.Enabled && len(c.AI.Profiles) == 0 {
		return fmt.Errorf("scheduler requires at least one AI profile")
	}

	return nil
}
