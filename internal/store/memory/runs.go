package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&run.Base, s.now())
	cp := *run
	s.runs[run.UUID] = &cp
	return nil
}

func (s *Store) GetRunByUUID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok || run.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *Store) GetRunBySUUID(ctx context.Context, suuid string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		if run.SUUID == suuid && !run.IsDeleted() {
			cp := *run
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListRuns(ctx context.Context, jobID *uuid.UUID) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Run
	for _, run := range s.runs {
		if run.IsDeleted() {
			continue
		}
		if jobID != nil && run.JobUUID != *jobID {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SoftDeleteRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.IsDeleted() {
		return store.ErrNotFound
	}
	now := s.now()
	run.DeletedAt = &now
	run.ModifiedAt = now
	return nil
}

func (s *Store) Transition(ctx context.Context, id uuid.UUID, fn func(run *models.Run) error) (*models.Run, error) {
	lock := s.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok || stored.IsDeleted() {
		return nil, store.ErrNotFound
	}

	working := *stored
	if err := fn(&working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	working.ModifiedAt = s.now()
	cp := working
	s.runs[id] = &cp
	s.mu.Unlock()

	out := working
	return &out, nil
}

func (s *Store) HardDeleteOrphans(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, run := range s.runs {
		job, ok := s.jobs[run.JobUUID]
		if ok {
			project, pok := s.projects[job.ProjectUUID]
			if pok {
				if _, wok := s.workspaces[project.WorkspaceUUID]; wok {
					continue
				}
			}
		}
		delete(s.runs, id)
		delete(s.metrics, id)
		delete(s.variables, id)
		removed++
	}
	return removed, nil
}

// PurgeDeleted mirrors the postgres semantics: a purged project takes its
// schedules, jobs and packages with it, its runs become orphans, and a
// workspace only goes once none of its projects remain.
func (s *Store) PurgeDeleted(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	expired := func(deletedAt *time.Time) bool {
		return deletedAt != nil && deletedAt.Before(before)
	}
	for id, m := range s.memberships {
		if expired(m.DeletedAt) {
			delete(s.memberships, id)
			removed++
		}
	}
	for id, run := range s.runs {
		if expired(run.DeletedAt) {
			delete(s.runs, id)
			delete(s.metrics, id)
			delete(s.variables, id)
			removed++
		}
	}
	for id, p := range s.projects {
		if !expired(p.DeletedAt) {
			continue
		}
		for jobID, job := range s.jobs {
			if job.ProjectUUID != id {
				continue
			}
			for schedID, sched := range s.schedules {
				if sched.JobUUID == jobID {
					delete(s.schedules, schedID)
					removed++
				}
			}
			delete(s.jobs, jobID)
			removed++
		}
		for pkgID, pkg := range s.packages {
			if pkg.ProjectUUID == id {
				delete(s.packages, pkgID)
				removed++
			}
		}
		delete(s.projectVars, id)
		delete(s.projects, id)
		removed++
	}
	for id, ws := range s.workspaces {
		if !expired(ws.DeletedAt) {
			continue
		}
		inUse := false
		for _, p := range s.projects {
			if p.WorkspaceUUID == id {
				inUse = true
				break
			}
		}
		if !inUse {
			delete(s.workspaces, id)
			removed++
		}
	}
	return removed, nil
}
