package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/config"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

// SyncJobSchedules replaces a job's schedules with the definitions from a
// newly uploaded package config. A new schedule whose raw definition matches
// an existing one keeps the old last_run_at, so re-uploading an unchanged
// config does not re-fire the schedule.
func SyncJobSchedules(ctx context.Context, jobs store.JobStore, job *models.JobDef, defs []config.ScheduleDef, author *uuid.UUID, now time.Time) error {
	existing, err := jobs.ListSchedulesForJob(ctx, job.UUID)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}
	lastRunByRaw := make(map[string]*time.Time, len(existing))
	for _, s := range existing {
		lastRunByRaw[s.RawDefinition] = s.LastRunAt
	}

	if err := jobs.DeleteSchedulesForJob(ctx, job.UUID); err != nil {
		return fmt.Errorf("failed to delete schedules: %w", err)
	}

	for _, def := range defs {
		next, err := NextFire(def.Cron, job.Timezone, now)
		if err != nil {
			// The config parser validated the cron line already; treat this as
			// a definition that slipped through and skip it.
			log.Warn().Err(err).Str("job", job.SUUID).Str("cron", def.Cron).Msg("Skipping schedule with unusable cron definition")
			continue
		}
		schedule := &models.Schedule{
			JobUUID:        job.UUID,
			RawDefinition:  def.Raw,
			CronDefinition: def.Cron,
			CronTimezone:   job.Timezone,
			LastRunAt:      lastRunByRaw[def.Raw],
			NextRunAt:      &next,
			MemberUUID:     author,
		}
		if err := jobs.CreateSchedule(ctx, schedule); err != nil {
			return fmt.Errorf("failed to create schedule: %w", err)
		}
	}
	return nil
}
