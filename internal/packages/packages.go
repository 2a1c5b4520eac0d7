// Package packages manages uploaded project code archives. A finalized
// package is the source of truth for the project's job definitions: its
// askanna.yml is parsed and the jobs and schedules are synchronized.
package packages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/config"
	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/scheduler"
	"github.com/askanna-io/askanna-core/internal/store"
)

// configFileName is the config entry looked up inside the archive.
const configFileName = "askanna.yml"

// ErrNotAPackage means the uploaded file is not a zip archive.
var ErrNotAPackage = errors.New("uploaded file is not a zip archive")

// Service manages the package upload pipeline.
type Service struct {
	store           store.Store
	files           *filestore.Service
	defaultTimezone string
}

// NewService wires the package pipeline.
func NewService(st store.Store, files *filestore.Service, defaultTimezone string) *Service {
	return &Service{store: st, files: files, defaultTimezone: defaultTimezone}
}

// CreateInput describes a new package upload.
type CreateInput struct {
	Project     *models.Project
	Description string
	Size        int64
	Etag        string
	CreatedBy   *uuid.UUID
}

// Create reserves a package row plus the file slot its archive is uploaded
// into with the chunked protocol.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Package, *models.File, error) {
	pkg := &models.Package{
		ProjectUUID: in.Project.UUID,
		Description: in.Description,
		CreatedBy:   in.CreatedBy,
	}
	if err := s.store.CreatePackage(ctx, pkg); err != nil {
		return nil, nil, fmt.Errorf("failed to create package: %w", err)
	}

	ref, err := s.store.ObjectReferenceFor(ctx, models.OwnerPackage, pkg.UUID, pkg.SUUID)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.CreateSlot(ctx, filestore.Slot{
		Owner:       ref,
		CreatedBy:   in.CreatedBy,
		Name:        fmt.Sprintf("package_%s.zip", pkg.SUUID),
		Size:        in.Size,
		Etag:        in.Etag,
		ContentType: "application/zip",
	})
	if err != nil {
		return nil, nil, err
	}

	pkg.FileUUID = &f.UUID
	if err := s.store.UpdatePackage(ctx, pkg); err != nil {
		return nil, nil, err
	}
	return pkg, f, nil
}

// Finalize completes the archive upload and applies its configuration: the
// askanna.yml is parsed and the project's jobs and schedules are replaced by
// what the config declares. An archive without a config file finalizes fine
// but defines no jobs.
func (s *Service) Finalize(ctx context.Context, pkg *models.Package, f *models.File) (*models.File, error) {
	completed, err := s.files.Complete(ctx, f)
	if err != nil {
		return nil, err
	}
	if !isZip(completed.ContentType) {
		return nil, ErrNotAPackage
	}

	if err := s.applyConfig(ctx, pkg, completed); err != nil {
		// The package stays usable; a broken config only means no jobs.
		log.Warn().Err(err).Str("package", pkg.SUUID).Msg("Package config could not be applied")
	}
	return completed, nil
}

func isZip(contentType string) bool {
	switch contentType {
	case "application/zip", "application/x-zip-compressed":
		return true
	}
	return false
}

// applyConfig parses the archive's askanna.yml and synchronizes jobs and
// schedules for the project.
func (s *Service) applyConfig(ctx context.Context, pkg *models.Package, archive *models.File) error {
	names, err := s.files.ZipNamelist(ctx, archive)
	if err != nil {
		return err
	}
	hasConfig := false
	for _, name := range names {
		if name == configFileName {
			hasConfig = true
			break
		}
	}
	if !hasConfig {
		log.Info().Str("package", pkg.SUUID).Msg("Package carries no askanna.yml")
		return nil
	}

	content, err := s.files.OpenZipEntry(ctx, archive, configFileName)
	if err != nil {
		return err
	}
	cfg, err := config.Parse(content, s.defaultTimezone)
	if err != nil {
		return err
	}
	return s.syncJobs(ctx, pkg, cfg)
}

// syncJobs upserts a job definition per config job and replaces its
// schedules. Jobs that disappeared from the config are kept so their run
// history stays reachable.
func (s *Service) syncJobs(ctx context.Context, pkg *models.Package, cfg *config.Config) error {
	now := time.Now().UTC()

	var author *uuid.UUID
	if pkg.CreatedBy != nil {
		author = pkg.CreatedBy
	}

	for name, jobCfg := range cfg.Jobs {
		job, err := s.store.GetJobByName(ctx, pkg.ProjectUUID, name)
		if errors.Is(err, store.ErrNotFound) {
			job = &models.JobDef{Name: name, ProjectUUID: pkg.ProjectUUID}
			if err := s.store.CreateJob(ctx, job); err != nil {
				return fmt.Errorf("failed to create job %s: %w", name, err)
			}
		} else if err != nil {
			return err
		}

		job.Timezone = jobCfg.Timezone
		job.EnvironmentImage = environmentImage(cfg, jobCfg)
		job.Notifications = models.JobNotifications{
			All:   models.NotificationLevel{Email: jobCfg.Notifications.All.Email},
			Error: models.NotificationLevel{Email: jobCfg.Notifications.Error.Email},
		}
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to update job %s: %w", name, err)
		}

		if err := scheduler.SyncJobSchedules(ctx, s.store, job, jobCfg.Schedules, author, now); err != nil {
			return err
		}
		log.Info().
			Str("project", pkg.ProjectUUID.String()).
			Str("job", name).
			Int("schedules", len(jobCfg.Schedules)).
			Msg("Synchronized job from package config")
	}
	return nil
}

// environmentImage picks the job image, falling back to the global one.
func environmentImage(cfg *config.Config, jobCfg config.Job) string {
	if jobCfg.Environment != nil && jobCfg.Environment.Image != "" {
		return jobCfg.Environment.Image
	}
	if cfg.Environment != nil {
		return cfg.Environment.Image
	}
	return ""
}
