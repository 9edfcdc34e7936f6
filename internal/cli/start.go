package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/logger"
	"github.com/atelierhq/atelier/pkg/agent"
	"github.com/atelierhq/atelier/pkg/api"
	"github.com/atelierhq/atelier/pkg/broadcast"
	"github.com/atelierhq/atelier/pkg/canvas"
	"github.com/atelierhq/atelier/pkg/persona"
	"github.com/atelierhq/atelier/pkg/scheduler"
	"github.com/atelierhq/atelier/pkg/sharedcontext"
	"github.com/atelierhq/atelier/pkg/toolexec"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Atelier server",
	Long: `Start the Atelier server: the HTTP/WebSocket API, the canvas stores,
and the autonomous agent scheduler. Runs in the foreground until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	log.Info().Str("version", version).Msg("Starting Atelier")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	canvasStore, err := canvas.NewStore(canvas.Config{
		DBPath: filepath.Join(cfg.DataDir, "atelier.db"),
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to open canvas store: %w", err)
	}
	defer canvasStore.Close()

	sessionStore, err := agent.NewSessionStore(canvasStore.DB(), log)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	overrideStore, err := persona.NewOverrideStore(canvasStore.DB(), log)
	if err != nil {
		return fmt.Errorf("failed to open override store: %w", err)
	}
	sharedStore, err := sharedcontext.NewStore(canvasStore.DB(), log)
	if err != nil {
		return fmt.Errorf("failed to open shared context store: %w", err)
	}

	hub := broadcast.NewHub(log)
	resolver := persona.NewResolver(overrideStore, log)

	executor := toolexec.New()
	if err := toolexec.RegisterCanvasTools(executor, canvasStore, hub); err != nil {
		return fmt.Errorf("failed to register canvas tools: %w", err)
	}
	if err := toolexec.RegisterContextTools(executor, sharedStore, hub); err != nil {
		return fmt.Errorf("failed to register context tools: %w", err)
	}

	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
	}
	factory, err := agent.NewProviderFactory(profiles)
	if err != nil {
		return fmt.Errorf("failed to build provider factory: %w", err)
	}

	runner, err := agent.NewRunner(agent.RunnerConfig{
		Providers: factory,
		Sessions:  sessionStore,
		Canvases:  canvasStore,
		Shared:    sharedStore,
		Resolver:  resolver,
		Executor:  executor,
		Hub:       hub,
		MaxRounds: cfg.Agents.MaxRounds,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to build runner: %w", err)
	}

	invoker, err := agent.NewInvoker(agent.InvokerConfig{
		Runner:          runner,
		Sessions:        sessionStore,
		Hub:             hub,
		MaxConcurrent:   cfg.Agents.MaxConcurrentSessions,
		MaxPromptLength: cfg.Agents.MaxPromptLength,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to build invoker: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Invoker:        invoker,
		Canvases:       canvasStore,
		Shared:         sharedStore,
		Resolver:       resolver,
		DefaultModel:   cfg.Agents.DefaultModel,
		Enabled:        cfg.Scheduler.Enabled,
		CheckInterval:  time.Duration(cfg.Scheduler.CheckIntervalMs) * time.Millisecond,
		ActionInterval: time.Duration(cfg.Scheduler.ActionIntervalMs) * time.Millisecond,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Scheduler settings follow config file edits without a restart
	watcher, err := config.NewWatcher(loader, log, func(updated *config.Config) {
		sched.SetEnabled(updated.Scheduler.Enabled)
		sched.SetActionInterval(time.Duration(updated.Scheduler.ActionIntervalMs) * time.Millisecond)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable, live reload disabled")
	} else {
		defer watcher.Stop()
	}

	server, err := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		SharedSecret: cfg.Server.SharedSecret,
		Canvases:     canvasStore,
		Sessions:     sessionStore,
		Overrides:    overrideStore,
		Shared:       sharedStore,
		Invoker:      invoker,
		Hub:          hub,
		DefaultModel: cfg.Agents.DefaultModel,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to build API server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	return nil
}
