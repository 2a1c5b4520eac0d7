package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
	"github.com/askanna-io/askanna-core/internal/telemetry"
)

// allowedTransitions is the lifecycle graph. FAILED is additionally reachable
// from every non-terminal state through ToFailed.
var allowedTransitions = map[models.RunStatus]models.RunStatus{
	models.RunSubmitted:  models.RunPending,
	models.RunPending:    models.RunInProgress,
	models.RunInProgress: models.RunCompleted,
}

// ToPending acknowledges a dispatched run. Called when a worker picks the run
// off the queue.
func (s *Service) ToPending(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	return s.transition(ctx, runID, models.RunPending, nil)
}

// ToInProgress marks the start of execution, setting started_at exactly once.
func (s *Service) ToInProgress(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	return s.transition(ctx, runID, models.RunInProgress, func(r *models.Run, now time.Time) {
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	})
}

// ToCompleted finishes the run successfully with exit code zero.
func (s *Service) ToCompleted(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	zero := 0
	return s.terminal(ctx, runID, models.RunCompleted, &zero)
}

// ToFailed finishes the run as failed. Reachable from every non-terminal
// state so timeouts and aborts can settle runs that never started.
func (s *Service) ToFailed(ctx context.Context, runID uuid.UUID, exitCode *int) (*models.Run, error) {
	return s.terminal(ctx, runID, models.RunFailed, exitCode)
}

// transition applies one lifecycle step under the per-run lock. Repeating a
// transition with the destination the run is already in is a no-op; anything
// leaving a terminal state is a conflict.
func (s *Service) transition(ctx context.Context, runID uuid.UUID, dest models.RunStatus, apply func(*models.Run, time.Time)) (*models.Run, error) {
	var repeated bool
	updated, err := s.store.Transition(ctx, runID, func(r *models.Run) error {
		if r.Status == dest {
			repeated = true
			return nil
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: run is %s", store.ErrConflict, r.Status)
		}
		if !validStep(r.Status, dest) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, dest)
		}
		r.Status = dest
		if apply != nil {
			apply(r, time.Now().UTC())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if repeated {
		return updated, nil
	}

	log.Info().Str("run", updated.SUUID).Str("status", string(dest)).Msg("Run state changed")
	if s.notifier != nil {
		s.notifier.RunStatusChanged(ctx, updated)
	}
	return updated, nil
}

func validStep(from, to models.RunStatus) bool {
	if to == models.RunFailed {
		return !from.IsTerminal()
	}
	return allowedTransitions[from] == to
}

// terminal applies a terminal transition and runs the sweep.
func (s *Service) terminal(ctx context.Context, runID uuid.UUID, dest models.RunStatus, exitCode *int) (*models.Run, error) {
	var repeated bool
	updated, err := s.store.Transition(ctx, runID, func(r *models.Run) error {
		if r.Status == dest {
			repeated = true
			return nil
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: run is %s", store.ErrConflict, r.Status)
		}
		if !validStep(r.Status, dest) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, dest)
		}
		now := time.Now().UTC()
		r.Status = dest
		if r.FinishedAt == nil {
			r.FinishedAt = &now
		}
		r.Duration = r.ComputeDuration()
		r.ExitCode = exitCode
		return nil
	})
	if err != nil {
		return nil, err
	}
	if repeated {
		return updated, nil
	}

	log.Info().Str("run", updated.SUUID).Str("status", string(dest)).Msg("Run finished")

	m := telemetry.GetMetrics()
	if dest == models.RunCompleted {
		m.RunsCompletedTotal.Add(ctx, 1)
	} else {
		m.RunsFailedTotal.Add(ctx, 1)
	}
	if updated.Duration != nil {
		m.RunDuration.Record(ctx, float64(*updated.Duration))
	}

	return s.sweep(ctx, updated)
}

// sweep settles a terminal run: duplicate observations are removed, the meta
// aggregates are rebuilt, the log queue is flushed into the run's log file
// and the notification goes out. Every step is best effort so one failing
// collaborator cannot leave the run unterminated.
func (s *Service) sweep(ctx context.Context, run *models.Run) (*models.Run, error) {
	if s.tracking != nil {
		if err := s.tracking.Deduplicate(ctx, run); err != nil {
			log.Warn().Err(err).Str("run", run.SUUID).Msg("Sweep failed to deduplicate observations")
		}
		if err := s.tracking.RecomputeMeta(ctx, run); err != nil {
			log.Warn().Err(err).Str("run", run.SUUID).Msg("Sweep failed to recompute meta")
		}
	}

	if s.logs != nil {
		logFile, err := s.logs.Flush(ctx, run, true)
		if err != nil {
			log.Warn().Err(err).Str("run", run.SUUID).Msg("Sweep failed to flush log")
		} else {
			run, err = s.store.Transition(ctx, run.UUID, func(r *models.Run) error {
				r.LogFile = &logFile.UUID
				return nil
			})
			if err != nil {
				return nil, err
			}
			if err := s.logs.Remove(ctx, run.SUUID); err != nil {
				log.Warn().Err(err).Str("run", run.SUUID).Msg("Sweep failed to remove log queue")
			}
		}
	}

	// Re-read so the notification sees the final meta.
	current, err := s.store.GetRunByUUID(ctx, run.UUID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.RunStatusChanged(ctx, current)
	}
	return current, nil
}
