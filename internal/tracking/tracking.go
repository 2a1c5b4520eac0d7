// Package tracking ingests the metric and variable observations a worker
// reports for a run, masks secret-named variables before they touch storage,
// and recomputes the per-run aggregate meta used by listings.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

// ErrAlreadyRecomputing is returned when a concurrent meta recompute holds
// the per-run lock.
var ErrAlreadyRecomputing = errors.New("meta recompute already in progress")

// MaskedValue replaces the value of secret-named variables.
const MaskedValue = "***masked***"

// secretMarkers flag a variable name as secret when its uppercased form
// contains any of them.
var secretMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD"}

// recomputeLockTTL bounds a crashed recompute.
const recomputeLockTTL = 30 * time.Second

// Service is the observation pipeline.
type Service struct {
	store store.Store
	locks lock.Locker
}

// NewService wires the pipeline.
func NewService(st store.Store, locks lock.Locker) *Service {
	return &Service{store: st, locks: locks}
}

// MetricEvent is one ingested metric observation.
type MetricEvent struct {
	Name       string              `json:"name"`
	Value      any                 `json:"value"`
	Type       string              `json:"type"`
	Labels     []models.ValueLabel `json:"label,omitempty"`
	RecordedAt time.Time           `json:"created_at"`
}

// VariableEvent is one ingested variable observation.
type VariableEvent struct {
	Name       string              `json:"name"`
	Value      any                 `json:"value"`
	Type       string              `json:"type"`
	Labels     []models.ValueLabel `json:"label,omitempty"`
	RecordedAt time.Time           `json:"created_at"`
}

// UpdateMetrics replaces the run's metric rows with the batch and recomputes
// the metrics meta.
func (s *Service) UpdateMetrics(ctx context.Context, run *models.Run, events []MetricEvent) error {
	rows := make([]*models.RunMetric, 0, len(events))
	for _, ev := range events {
		rows = append(rows, &models.RunMetric{
			RunUUID:    run.UUID,
			Name:       ev.Name,
			Value:      ev.Value,
			Type:       ev.Type,
			Labels:     ev.Labels,
			RecordedAt: ev.RecordedAt,
		})
	}
	if err := s.store.ReplaceMetrics(ctx, run.UUID, rows); err != nil {
		return fmt.Errorf("failed to replace metrics: %w", err)
	}
	log.Debug().Str("run", run.SUUID).Int("rows", len(rows)).Msg("Replaced run metrics")
	return s.recomputeMetricsMeta(ctx, run)
}

// UpdateVariables replaces the run's variable rows with the batch, masking
// secret-named values before they are persisted, and recomputes the
// variables meta.
func (s *Service) UpdateVariables(ctx context.Context, run *models.Run, events []VariableEvent) error {
	rows := make([]*models.RunVariable, 0, len(events))
	for _, ev := range events {
		row := &models.RunVariable{
			RunUUID:    run.UUID,
			Name:       ev.Name,
			Value:      ev.Value,
			Type:       ev.Type,
			Labels:     ev.Labels,
			RecordedAt: ev.RecordedAt,
		}
		maskVariable(row)
		rows = append(rows, row)
	}
	if err := s.store.ReplaceVariables(ctx, run.UUID, rows); err != nil {
		return fmt.Errorf("failed to replace variables: %w", err)
	}
	log.Debug().Str("run", run.SUUID).Int("rows", len(rows)).Msg("Replaced run variables")
	return s.recomputeVariablesMeta(ctx, run)
}

// maskVariable rewrites a secret-named variable in place. The transformation
// happens before any row reaches the store.
func maskVariable(row *models.RunVariable) {
	if !IsSecretName(row.Name) {
		return
	}
	row.Value = MaskedValue
	row.IsMasked = true
	for _, label := range row.Labels {
		if label.Name == "is_masked" {
			return
		}
	}
	row.Labels = append(row.Labels, models.ValueLabel{Name: "is_masked"})
}

// IsSecretName reports whether a variable name must be masked.
func IsSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range secretMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// Deduplicate drops observation rows identical on (name, value, labels,
// recorded_at). Part of the terminal sweep.
func (s *Service) Deduplicate(ctx context.Context, run *models.Run) error {
	removed, err := s.store.DeduplicateObservations(ctx, run.UUID)
	if err != nil {
		return fmt.Errorf("failed to deduplicate observations: %w", err)
	}
	if removed > 0 {
		log.Info().Str("run", run.SUUID).Int("removed", removed).Msg("Removed duplicate observations")
	}
	return nil
}

// RecomputeMeta rebuilds both meta aggregates. Used by the terminal sweep.
func (s *Service) RecomputeMeta(ctx context.Context, run *models.Run) error {
	if err := s.recomputeMetricsMeta(ctx, run); err != nil {
		return err
	}
	return s.recomputeVariablesMeta(ctx, run)
}

func (s *Service) recomputeMetricsMeta(ctx context.Context, run *models.Run) error {
	release, err := s.acquireRecomputeLock(ctx, run, "metrics")
	if err != nil {
		return err
	}
	defer release()

	rows, err := s.store.ListMetrics(ctx, run.UUID)
	if err != nil {
		return err
	}
	observations := make([]observation, 0, len(rows))
	for _, row := range rows {
		observations = append(observations, observation{
			Name: row.Name, Value: row.Value, Type: row.Type,
			Labels: row.Labels, RecordedAt: row.RecordedAt,
		})
	}
	meta, err := computeMeta(observations)
	if err != nil {
		return err
	}
	return s.storeMeta(ctx, run.UUID, func(r *models.Run) { r.MetricsMeta = meta })
}

func (s *Service) recomputeVariablesMeta(ctx context.Context, run *models.Run) error {
	release, err := s.acquireRecomputeLock(ctx, run, "variables")
	if err != nil {
		return err
	}
	defer release()

	rows, err := s.store.ListVariables(ctx, run.UUID)
	if err != nil {
		return err
	}
	observations := make([]observation, 0, len(rows))
	for _, row := range rows {
		observations = append(observations, observation{
			Name: row.Name, Value: row.Value, Type: row.Type,
			Labels: row.Labels, RecordedAt: row.RecordedAt,
		})
	}
	meta, err := computeMeta(observations)
	if err != nil {
		return err
	}
	return s.storeMeta(ctx, run.UUID, func(r *models.Run) { r.VariablesMeta = meta })
}

func (s *Service) acquireRecomputeLock(ctx context.Context, run *models.Run, kind string) (lock.Release, error) {
	release, err := s.locks.TryAcquire(ctx, "run:meta:"+kind+":"+run.UUID.String(), recomputeLockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, ErrAlreadyRecomputing
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (s *Service) storeMeta(ctx context.Context, runID uuid.UUID, apply func(*models.Run)) error {
	_, err := s.store.Transition(ctx, runID, func(r *models.Run) error {
		apply(r)
		return nil
	})
	return err
}
