package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// MaintenanceCmd runs the periodic cleanup once and exits. It is meant to be
// scheduled externally, for example as a Kubernetes CronJob.
type MaintenanceCmd struct {
	Store StoreFlags `embed:""`
}

func (m *MaintenanceCmd) Run(ctx context.Context, globals *Globals) error {
	core, err := buildCore(ctx, m.Store)
	if err != nil {
		return err
	}
	defer core.close()

	cutoff := time.Now().UTC().Add(-core.cfg.RemovalGrace)
	purged, err := core.store.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Info().Int("purged", purged).Time("cutoff", cutoff).Msg("Purged soft-deleted objects")

	removed, err := core.store.HardDeleteOrphans(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("removed", removed).Msg("Removed orphaned runs")
	return nil
}
