package app

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) *App {
	m := metrics.New()
	hub := core.NewHub(HubOptions(cfg), logger, m)
	server := transporthttp.NewServer(hub, cfg, logger, m)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}
}

// HubOptions extracts the per-connection settings from cfg.
func HubOptions(cfg *config.Config) core.Options {
	return core.Options{
		SendQueueSize:   cfg.SendQueueSize,
		WriteTimeout:    cfg.WriteTimeout,
		StatusMessage:   cfg.StatusMessage,
		LegacyPlainText: cfg.LegacyPlainText,
	}
}

// Hub returns the relay hub.
func (a *App) Hub() *core.Hub { return a.hub }

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by the HTTP server.
		a.log.Info().Msg("closing relay sessions")
		if err := a.hub.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("sessions did not close in time")
		}

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
