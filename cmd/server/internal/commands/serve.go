package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/server"
	"github.com/askanna-io/askanna-core/internal/telemetry"
)

type ServeCmd struct {
	Listen  string `help:"HTTP listen address" default:"0.0.0.0:8080" env:"ASKANNA_LISTEN"`
	Tracing bool   `help:"export traces and metrics over OTLP" default:"false" env:"ASKANNA_TRACING"`

	Store StoreFlags `embed:""`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "askanna-core", globals.Version)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to shut down telemetry")
			}
		}()
	}

	core, err := buildCore(ctx, s.Store)
	if err != nil {
		return err
	}
	defer core.close()

	log.Info().Str("version", globals.Version).Msg("Starting API server")

	srv := server.New(server.Deps{
		Store:    core.store,
		Files:    core.files,
		Logs:     core.logs,
		Runs:     core.runs,
		Tracking: core.tracking,
		Packages: core.packages,
		Accounts: core.accounts,
	})
	return srv.Start(ctx, s.Listen)
}
