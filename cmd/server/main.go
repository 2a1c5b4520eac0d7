package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/cmd/server/internal/commands"
	"github.com/askanna-io/askanna-core/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug logging."`
		Version kong.VersionFlag

		Serve       commands.ServeCmd       `cmd:"" help:"Start the API server."`
		Scheduler   commands.SchedulerCmd   `cmd:"" help:"Start the schedule runner."`
		Maintenance commands.MaintenanceCmd `cmd:"" help:"Run the cleanup tasks once."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	log.Logger = logger.Setup(cli.Debug)
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
