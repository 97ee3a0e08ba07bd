// Command intelhive runs the honeypot session-engagement service: an HTTP
// API that classifies inbound scam conversations, engages them with a victim
// persona, extracts actionable intelligence and delivers final reports to a
// callback endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	intelhive "github.com/intelhive/intelhive"
	"github.com/intelhive/intelhive/admission"
	"github.com/intelhive/intelhive/agent"
	"github.com/intelhive/intelhive/config"
	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/dispatch"
	"github.com/intelhive/intelhive/logging"
	"github.com/intelhive/intelhive/manager"
	"github.com/intelhive/intelhive/persona"
	"github.com/intelhive/intelhive/responder"
	"github.com/intelhive/intelhive/responder/anthropic"
	"github.com/intelhive/intelhive/responder/openai"
	"github.com/intelhive/intelhive/server"
	"github.com/intelhive/intelhive/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "intelhive:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  parseLevel(cfg.LogLevel),
		Format: cfg.LogFmt,
		Output: os.Stdout,
	})

	sessionStore, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	personas := persona.NewRegistry()
	if cfg.PersonaFile != "" {
		if err := personas.LoadFile(cfg.PersonaFile); err != nil {
			return fmt.Errorf("load personas: %w", err)
		}
	}

	hive := intelhive.New(func(o *intelhive.Options) {
		o.SessionStore = sessionStore
		o.Generator = generator
		o.Personas = personas
		o.Logger = logger.WithComponent("engine")
		o.Admission = admission.Options{
			MaxConcurrentSessions: cfg.MaxConcurrentSessions,
			MessagesPerHour:       cfg.MessagesPerHour,
		}
		o.ManagerConfig = []func(c *manager.Config){func(c *manager.Config) {
			c.ActivationThreshold = cfg.ActivationThreshold
			c.MaxMonitoringTurns = cfg.MaxMonitoringTurns
			c.MaxSessionTurns = cfg.MaxSessionTurns
			c.IdleTimeout = cfg.IdleTimeout
			c.SweepInterval = cfg.SweepInterval
			c.Logger = logger.WithComponent("manager")
		}}
		o.AgentOptions = []func(ao *agent.Options){func(ao *agent.Options) {
			ao.Logger = logger.WithComponent("orchestrator")
		}}
		o.DispatchOptions = []func(do *dispatch.Options){func(do *dispatch.Options) {
			do.BaseDelay = cfg.DispatchBaseDelay
			do.MaxDelay = cfg.DispatchMaxDelay
			do.MaxAttempts = cfg.DispatchMaxAttempts
			do.RequireHTTPS = !cfg.AllowInsecureCallback
			do.Logger = logger.WithComponent("dispatcher")
		}}
	})
	defer hive.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pick up report deliveries interrupted by the previous shutdown.
	if err := hive.Resume(ctx); err != nil {
		return fmt.Errorf("resume deliveries: %w", err)
	}

	srv := server.New(hive.Manager(), cfg.APIKeys, func(o *server.Options) {
		o.DefaultCallbackURL = cfg.CallbackURL
		o.AllowInsecureCallback = cfg.AllowInsecureCallback
		o.Logger = logger.WithComponent("http")
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", httpServer.Addr, "store", cfg.Store, "generator", cfg.Generator)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStore(cfg *config.Config) (core.SessionStore, func(), error) {
	switch cfg.Store {
	case "sqlite":
		s, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return store.NewInMemoryStore(), func() {}, nil
	}
}

func buildGenerator(cfg *config.Config) (responder.Generator, error) {
	switch cfg.Generator {
	case "openai":
		return openai.New(func(o *openai.Options) {
			if cfg.OpenAIModel != "" {
				o.Model = cfg.OpenAIModel
			}
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.AnthropicModel != "" {
				o.Model = cfg.AnthropicModel
			}
		}), nil
	default:
		return responder.NewStub(), nil
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
