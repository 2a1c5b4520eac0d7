// Package run owns the lifecycle of a single run: creation with payload and
// snapshots, dispatch to the worker fleet, the state machine from SUBMITTED
// to a terminal state, and the terminal sweep that settles observations, log
// and notifications.
package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/logqueue"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
	"github.com/askanna-io/askanna-core/internal/telemetry"
	"github.com/askanna-io/askanna-core/internal/tracking"
)

var (
	// ErrNoPackage means the project has no completed package to run from.
	ErrNoPackage = errors.New("project has no package")

	// ErrInvalidPayload means the request body is not a JSON object or array.
	ErrInvalidPayload = errors.New("payload must be a JSON object or array")

	// ErrInvalidTransition means the requested state change is not in the
	// lifecycle graph.
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// scheduleFireTTL bounds the idempotency window for one schedule fire.
const scheduleFireTTL = 24 * time.Hour

// Notifier receives run state changes. Implementations must not block the
// lifecycle; failures are their own concern.
type Notifier interface {
	RunStatusChanged(ctx context.Context, run *models.Run)
}

// Service drives run lifecycles.
type Service struct {
	store    store.Store
	files    *filestore.Service
	logs     *logqueue.Queue
	tracking *tracking.Service
	notifier Notifier
	dispatch Dispatcher
	locks    lock.Locker
}

// NewService wires the run service. notifier and dispatch may be nil in
// contexts that do not send or dispatch (maintenance).
func NewService(st store.Store, files *filestore.Service, logs *logqueue.Queue, tr *tracking.Service, notifier Notifier, dispatch Dispatcher, locks lock.Locker) *Service {
	return &Service{
		store:    st,
		files:    files,
		logs:     logs,
		tracking: tr,
		notifier: notifier,
		dispatch: dispatch,
		locks:    locks,
	}
}

// CreateInput describes a run creation request.
type CreateInput struct {
	Job         *models.JobDef
	Name        string
	Description string
	Payload     []byte
	Trigger     models.Trigger
	CreatedBy   *uuid.UUID
}

// Create makes a new SUBMITTED run for a job: it pins the project's latest
// package, stores the payload as the run's payload file, snapshots the job's
// environment and timezone, and dispatches the run to the worker fleet.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Run, error) {
	pkg, err := s.store.LatestPackageForProject(ctx, in.Job.ProjectUUID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPackage
	}
	if err != nil {
		return nil, err
	}

	payload := bytes.TrimSpace(in.Payload)
	if len(payload) > 0 {
		if err := validatePayload(payload); err != nil {
			return nil, err
		}
	}

	trigger := in.Trigger
	if trigger == "" {
		trigger = models.TriggerAPI
	}

	run := &models.Run{
		Name:             in.Name,
		Description:      in.Description,
		JobUUID:          in.Job.UUID,
		PackageUUID:      &pkg.UUID,
		Status:           models.RunSubmitted,
		Trigger:          trigger,
		EnvironmentImage: in.Job.EnvironmentImage,
		Timezone:         in.Job.Timezone,
		CreatedBy:        in.CreatedBy,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if len(payload) > 0 {
		ref, err := s.store.ObjectReferenceFor(ctx, models.OwnerRun, run.UUID, run.SUUID)
		if err != nil {
			return nil, err
		}
		payloadFile, err := s.files.WriteDirect(ctx, filestore.Slot{
			Owner:       ref,
			CreatedBy:   in.CreatedBy,
			Name:        "payload.json",
			ContentType: "application/json",
		}, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to store payload: %w", err)
		}
		run, err = s.store.Transition(ctx, run.UUID, func(r *models.Run) error {
			r.PayloadFile = &payloadFile.UUID
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if s.dispatch != nil {
		if err := s.dispatch.DispatchRun(ctx, run); err != nil {
			return nil, err
		}
	}
	log.Info().
		Str("run", run.SUUID).
		Str("job", in.Job.SUUID).
		Str("trigger", string(run.Trigger)).
		Msg("Created run")
	telemetry.GetMetrics().RunsCreatedTotal.Add(ctx, 1)

	if s.notifier != nil {
		s.notifier.RunStatusChanged(ctx, run)
	}
	return run, nil
}

// validatePayload accepts only a JSON object or array.
func validatePayload(payload []byte) error {
	var parsed any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	switch parsed.(type) {
	case map[string]any, []any:
		return nil
	default:
		return ErrInvalidPayload
	}
}

// StartScheduledRun creates a run for a schedule fire. At most one run is
// created per (schedule, fire instant); a retry after a partial failure
// detects the earlier fire and succeeds without creating a second run.
func (s *Service) StartScheduledRun(ctx context.Context, schedule *models.Schedule, firedAt time.Time) error {
	key := fmt.Sprintf("schedule:fired:%s:%d", schedule.UUID, firedAt.UTC().Unix())
	_, err := s.locks.TryAcquire(ctx, key, scheduleFireTTL)
	if errors.Is(err, lock.ErrLocked) {
		log.Info().Str("schedule", schedule.SUUID).Time("fired_at", firedAt).Msg("Schedule fire already handled")
		return nil
	}
	if err != nil {
		return err
	}
	// The guard is deliberately never released; it expires with its TTL.

	job, err := s.store.GetJobByUUID(ctx, schedule.JobUUID)
	if err != nil {
		return err
	}
	_, err = s.Create(ctx, CreateInput{
		Job:       job,
		Trigger:   models.TriggerSchedule,
		CreatedBy: schedule.MemberUUID,
	})
	return err
}
