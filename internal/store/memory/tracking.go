package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func (s *Store) ReplaceMetrics(ctx context.Context, runID uuid.UUID, rows []*models.RunMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]*models.RunMetric, 0, len(rows))
	for _, row := range rows {
		store.EnsureIdentity(&row.Base, now)
		cp := *row
		out = append(out, &cp)
	}
	s.metrics[runID] = out
	return nil
}

func (s *Store) ListMetrics(ctx context.Context, runID uuid.UUID) ([]*models.RunMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.metrics[runID]
	out := make([]*models.RunMetric, 0, len(rows))
	for _, row := range rows {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ReplaceVariables(ctx context.Context, runID uuid.UUID, rows []*models.RunVariable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]*models.RunVariable, 0, len(rows))
	for _, row := range rows {
		store.EnsureIdentity(&row.Base, now)
		cp := *row
		out = append(out, &cp)
	}
	s.variables[runID] = out
	return nil
}

func (s *Store) ListVariables(ctx context.Context, runID uuid.UUID) ([]*models.RunVariable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.variables[runID]
	out := make([]*models.RunVariable, 0, len(rows))
	for _, row := range rows {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) DeduplicateObservations(ctx context.Context, runID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	seen := make(map[string]struct{})
	var metrics []*models.RunMetric
	for _, row := range s.metrics[runID] {
		key := observationKey(row.Name, row.Value, row.Labels, row.RecordedAt.UnixNano())
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		metrics = append(metrics, row)
	}
	s.metrics[runID] = metrics

	seen = make(map[string]struct{})
	var variables []*models.RunVariable
	for _, row := range s.variables[runID] {
		key := observationKey(row.Name, row.Value, row.Labels, row.RecordedAt.UnixNano())
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		variables = append(variables, row)
	}
	s.variables[runID] = variables

	return removed, nil
}

func observationKey(name string, value any, labels []models.ValueLabel, recordedAt int64) string {
	labelJSON, _ := json.Marshal(labels)
	valueJSON, _ := json.Marshal(value)
	return fmt.Sprintf("%s|%s|%s|%d", name, valueJSON, labelJSON, recordedAt)
}

func (s *Store) SetProjectVariable(ctx context.Context, projectID uuid.UUID, name, value string, masked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vars, ok := s.projectVars[projectID]
	if !ok {
		vars = make(map[string]string)
		s.projectVars[projectID] = vars
	}
	vars[name] = value
	return nil
}

func (s *Store) ProjectVariables(ctx context.Context, projectID uuid.UUID) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.projectVars[projectID]))
	for k, v := range s.projectVars[projectID] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) DeleteProjectVariable(ctx context.Context, projectID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projectVars[projectID], name)
	return nil
}
