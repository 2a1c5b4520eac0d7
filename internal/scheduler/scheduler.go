// Package scheduler turns Schedule rows into runs. A timer tick fires every
// due schedule at most once per (schedule, next_run_at) pair, advances the
// cron bookkeeping in the schedule's timezone, and reports fires that were
// detected too late as missed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
	"github.com/askanna-io/askanna-core/internal/telemetry"
)

// leaderKey serializes ticks across replicas.
const leaderKey = "scheduler:tick"

// RunStarter starts a run for a fired schedule. firedAt is the next_run_at
// instant the fire belongs to; implementations may use it as an idempotency
// key when retrying.
type RunStarter interface {
	StartScheduledRun(ctx context.Context, schedule *models.Schedule, firedAt time.Time) error
}

// MissedNotifier reports a schedule whose fire time passed beyond the grace
// window before the scheduler saw it.
type MissedNotifier interface {
	ScheduleMissed(ctx context.Context, schedule *models.Schedule, missedAt time.Time) error
}

// Scheduler drives the periodic tick.
type Scheduler struct {
	jobs     store.JobStore
	starter  RunStarter
	notifier MissedNotifier
	locks    lock.Locker
	interval time.Duration
	grace    time.Duration // 0 means one schedule period
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the tick cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithGrace sets a fixed missed-fire grace window instead of the default of
// one schedule period.
func WithGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.grace = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New wires a Scheduler.
func New(jobs store.JobStore, starter RunStarter, notifier MissedNotifier, locks lock.Locker, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:     jobs,
		starter:  starter,
		notifier: notifier,
		locks:    locks,
		interval: time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is cancelled. Replicas race for the leader
// lock each interval; losers skip the tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			release, err := s.locks.TryAcquire(ctx, leaderKey, s.interval)
			if errors.Is(err, lock.ErrLocked) {
				continue
			}
			if err != nil {
				log.Warn().Err(err).Msg("Failed to acquire scheduler leader lock")
				continue
			}
			if err := s.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduler tick failed")
			}
			release()
		}
	}
}

// Tick fires every due schedule once and advances its cron bookkeeping.
// Per-schedule failures are logged and retried on the next tick; the
// (schedule, next_run_at) pair only advances after a successful fire.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()
	started := time.Now()
	m := telemetry.GetMetrics()
	m.SchedulerTicksTotal.Add(ctx, 1)
	defer func() {
		m.ScheduleTickDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}()

	due, err := s.jobs.DueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	for _, schedule := range due {
		if err := s.fire(ctx, schedule, now); err != nil {
			log.Error().Err(err).Str("schedule", schedule.SUUID).Msg("Failed to fire schedule")
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, schedule *models.Schedule, now time.Time) error {
	if schedule.NextRunAt == nil {
		return fmt.Errorf("schedule %s has no next_run_at", schedule.SUUID)
	}
	firedAt := schedule.NextRunAt.UTC()

	grace := s.grace
	if grace <= 0 {
		period, err := schedulePeriod(schedule, firedAt)
		if err != nil {
			return err
		}
		grace = period
	}

	if now.Sub(firedAt) > grace {
		// Too late to still run it. Report and move on.
		log.Warn().
			Str("schedule", schedule.SUUID).
			Time("fired_at", firedAt).
			Msg("Schedule fire missed beyond grace window")
		if s.notifier != nil {
			if err := s.notifier.ScheduleMissed(ctx, schedule, firedAt); err != nil {
				log.Warn().Err(err).Str("schedule", schedule.SUUID).Msg("Failed to send missed-schedule notification")
			}
		}
		telemetry.GetMetrics().SchedulesMissedTotal.Add(ctx, 1)
	} else {
		if err := s.starter.StartScheduledRun(ctx, schedule, firedAt); err != nil {
			return fmt.Errorf("failed to start scheduled run: %w", err)
		}
		log.Info().Str("schedule", schedule.SUUID).Time("fired_at", firedAt).Msg("Fired schedule")
		telemetry.GetMetrics().SchedulesFiredTotal.Add(ctx, 1)
	}

	next, err := NextFire(schedule.CronDefinition, schedule.CronTimezone, now)
	if err != nil {
		return err
	}
	schedule.LastRunAt = &firedAt
	schedule.NextRunAt = &next
	if err := s.jobs.UpdateSchedule(ctx, schedule); err != nil {
		return fmt.Errorf("failed to advance schedule: %w", err)
	}
	return nil
}

// NextFire returns the first cron fire strictly after the given instant,
// evaluated in the schedule's IANA timezone and returned in UTC. An unknown
// timezone falls back to UTC.
func NextFire(cronDefinition, timezone string, after time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(cronDefinition)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron definition %q: %w", cronDefinition, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn().Str("timezone", timezone).Msg("Unknown schedule timezone, using UTC")
		loc = time.UTC
	}
	return spec.Next(after.In(loc)).UTC(), nil
}

// schedulePeriod estimates one period as the distance between two consecutive
// fires starting at the given instant.
func schedulePeriod(schedule *models.Schedule, from time.Time) (time.Duration, error) {
	first, err := NextFire(schedule.CronDefinition, schedule.CronTimezone, from)
	if err != nil {
		return 0, err
	}
	second, err := NextFire(schedule.CronDefinition, schedule.CronTimezone, first)
	if err != nil {
		return 0, err
	}
	return second.Sub(first), nil
}
