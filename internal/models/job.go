package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLevel is the recipient list for one notification level. The
// entries come straight from the project config and may still contain
// placeholders or group literals; expansion happens at send time.
type NotificationLevel struct {
	Email []string `json:"email,omitempty"`
}

// JobNotifications are the per-job notification rules, global rules already
// merged in.
type JobNotifications struct {
	All   NotificationLevel `json:"all"`
	Error NotificationLevel `json:"error"`
}

// JobDef is a named unit of work inside a project, defined by the project's
// latest package configuration.
type JobDef struct {
	Base
	Name             string
	Description      string
	ProjectUUID      uuid.UUID
	EnvironmentImage string
	Timezone         string // IANA name
	Notifications    JobNotifications
}

// Schedule is one recurring trigger for a job. RawDefinition preserves the
// form the user wrote (cron line, @alias or mapping) so that replacement on a
// package re-upload can match old and new schedules.
type Schedule struct {
	Base
	JobUUID       uuid.UUID
	RawDefinition string
	CronDefinition string // normalized 5-field cron line
	CronTimezone  string  // IANA name
	LastRunAt     *time.Time
	NextRunAt     *time.Time
	MemberUUID    *uuid.UUID // author of the package that introduced the schedule
}

// Package is an uploaded project code archive. The latest completed package
// per project is the source of truth for that project's jobs and schedules.
type Package struct {
	Base
	ProjectUUID uuid.UUID
	FileUUID    *uuid.UUID // stored zipfile
	Description string
	CreatedBy   *uuid.UUID
}
