// Package memory implements store.Store in process memory. It backs unit
// tests and local development; the locking is coarse (one RWMutex) because
// correctness, not throughput, is the point.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

// Store is the in-memory backend.
type Store struct {
	mu sync.RWMutex

	users       map[uuid.UUID]*models.User
	memberships map[uuid.UUID]*models.Membership
	workspaces  map[uuid.UUID]*models.Workspace
	projects    map[uuid.UUID]*models.Project
	jobs        map[uuid.UUID]*models.JobDef
	schedules   map[uuid.UUID]*models.Schedule
	packages    map[uuid.UUID]*models.Package
	runs        map[uuid.UUID]*models.Run
	objectRefs  map[uuid.UUID]*models.ObjectReference
	files       map[uuid.UUID]*models.File
	metrics     map[uuid.UUID][]*models.RunMetric
	variables   map[uuid.UUID][]*models.RunVariable
	projectVars map[uuid.UUID]map[string]string

	// Per-run transition locks, lazily created.
	runLocks map[uuid.UUID]*sync.Mutex

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*models.User),
		memberships: make(map[uuid.UUID]*models.Membership),
		workspaces:  make(map[uuid.UUID]*models.Workspace),
		projects:    make(map[uuid.UUID]*models.Project),
		jobs:        make(map[uuid.UUID]*models.JobDef),
		schedules:   make(map[uuid.UUID]*models.Schedule),
		packages:    make(map[uuid.UUID]*models.Package),
		runs:        make(map[uuid.UUID]*models.Run),
		objectRefs:  make(map[uuid.UUID]*models.ObjectReference),
		files:       make(map[uuid.UUID]*models.File),
		metrics:     make(map[uuid.UUID][]*models.RunMetric),
		variables:   make(map[uuid.UUID][]*models.RunVariable),
		projectVars: make(map[uuid.UUID]map[string]string),
		runLocks:    make(map[uuid.UUID]*sync.Mutex),
		now:         time.Now,
	}
}

// Start implements store.Store.
func (s *Store) Start() error { return nil }

// Stop implements store.Store.
func (s *Store) Stop() error { return nil }

// SetClock overrides the store clock, for tests that assert timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) runLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.runLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.runLocks[id] = l
	}
	return l
}
