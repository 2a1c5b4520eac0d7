package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/scheduler"
	"github.com/askanna-io/askanna-core/internal/telemetry"
)

type SchedulerCmd struct {
	Interval time.Duration `help:"tick interval" default:"1m" env:"ASKANNA_SCHEDULER_INTERVAL"`
	Tracing  bool          `help:"export traces and metrics over OTLP" default:"false" env:"ASKANNA_TRACING"`

	Store StoreFlags `embed:""`
}

func (s *SchedulerCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "askanna-scheduler", globals.Version)
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

	log.Info().
		Str("version", globals.Version).
		Dur("interval", s.Interval).
		Msg("Starting scheduler")

	sched := scheduler.New(core.store, core.runs, core.notify, core.locks,
		scheduler.WithInterval(s.Interval),
		scheduler.WithGrace(core.cfg.ScheduleMissGrace),
	)
	if err := sched.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
