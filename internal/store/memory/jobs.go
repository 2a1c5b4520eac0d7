package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func (s *Store) CreateJob(ctx context.Context, job *models.JobDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&job.Base, s.now())
	cp := *job
	s.jobs[job.UUID] = &cp
	return nil
}

func (s *Store) GetJobByUUID(ctx context.Context, id uuid.UUID) (*models.JobDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || job.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Store) GetJobBySUUID(ctx context.Context, suuid string) (*models.JobDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.SUUID == suuid && !job.IsDeleted() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetJobByName(ctx context.Context, projectID uuid.UUID, name string) (*models.JobDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.ProjectUUID == projectID && job.Name == name && !job.IsDeleted() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateJob(ctx context.Context, job *models.JobDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.UUID]; !ok {
		return store.ErrNotFound
	}
	job.ModifiedAt = s.now()
	cp := *job
	s.jobs[job.UUID] = &cp
	return nil
}

func (s *Store) ListJobs(ctx context.Context, projectID uuid.UUID) ([]*models.JobDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.JobDef
	for _, job := range s.jobs {
		if job.IsDeleted() || job.ProjectUUID != projectID {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateSchedule(ctx context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&sched.Base, s.now())
	cp := *sched
	s.schedules[sched.UUID] = &cp
	return nil
}

func (s *Store) UpdateSchedule(ctx context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sched.UUID]; !ok {
		return store.ErrNotFound
	}
	sched.ModifiedAt = s.now()
	cp := *sched
	s.schedules[sched.UUID] = &cp
	return nil
}

func (s *Store) DeleteSchedulesForJob(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sched := range s.schedules {
		if sched.JobUUID == jobID {
			delete(s.schedules, id)
		}
	}
	return nil
}

func (s *Store) ListSchedulesForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Schedule
	for _, sched := range s.schedules {
		if sched.IsDeleted() || sched.JobUUID != jobID {
			continue
		}
		cp := *sched
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Schedule
	for _, sched := range s.schedules {
		if sched.IsDeleted() || sched.NextRunAt == nil {
			continue
		}
		if !sched.NextRunAt.After(now) {
			cp := *sched
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(*out[j].NextRunAt) })
	return out, nil
}

func (s *Store) CreatePackage(ctx context.Context, p *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store.EnsureIdentity(&p.Base, s.now())
	cp := *p
	s.packages[p.UUID] = &cp
	return nil
}

func (s *Store) GetPackageByUUID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packages[id]
	if !ok || p.IsDeleted() {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPackageBySUUID(ctx context.Context, suuid string) (*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.packages {
		if p.SUUID == suuid && !p.IsDeleted() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdatePackage(ctx context.Context, p *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[p.UUID]; !ok {
		return store.ErrNotFound
	}
	p.ModifiedAt = s.now()
	cp := *p
	s.packages[p.UUID] = &cp
	return nil
}

func (s *Store) LatestPackageForProject(ctx context.Context, projectID uuid.UUID) (*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Package
	for _, p := range s.packages {
		if p.IsDeleted() || p.ProjectUUID != projectID || p.FileUUID == nil {
			continue
		}
		// Only packages whose upload completed count.
		f, ok := s.files[*p.FileUUID]
		if !ok || !f.IsComplete() {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}
