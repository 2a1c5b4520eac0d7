package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run. Terminal states are absorbing.
type RunStatus string

const (
	RunSubmitted  RunStatus = "SUBMITTED"
	RunPending    RunStatus = "PENDING"
	RunInProgress RunStatus = "IN_PROGRESS"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
)

// IsTerminal reports whether s is an absorbing state.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Trigger records the provenance of a run.
type Trigger string

const (
	TriggerAPI       Trigger = "API"
	TriggerCLI       Trigger = "CLI"
	TriggerPythonSDK Trigger = "PYTHON-SDK"
	TriggerWebUI     Trigger = "WEBUI"
	TriggerSchedule  Trigger = "SCHEDULE"
	TriggerWorker    Trigger = "WORKER"
)

// TriggerFromAgent maps the askanna-agent header value to a trigger. Unknown
// or absent agents fall back to API.
func TriggerFromAgent(agent string) Trigger {
	switch agent {
	case "webui":
		return TriggerWebUI
	case "cli":
		return TriggerCLI
	case "python-sdk":
		return TriggerPythonSDK
	case "worker":
		return TriggerWorker
	default:
		return TriggerAPI
	}
}

// ObservationMeta is the recomputed aggregate for a run's metrics or
// variables collection.
type ObservationMeta struct {
	Count      int             `json:"count"`
	Size       int             `json:"size"`
	Names      []ObservedName  `json:"names"`
	LabelNames []ObservedLabel `json:"label_names"`
}

// ObservedName is one unique observation name with its merged type.
type ObservedName struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ObservedLabel is one unique label name with its type.
type ObservedLabel struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Run is one execution of a job definition, with its own immutable payload,
// result, log, metrics and variables.
type Run struct {
	Base
	Name        string
	Description string
	JobUUID     uuid.UUID
	PackageUUID *uuid.UUID
	PayloadFile *uuid.UUID
	ResultFile  *uuid.UUID
	LogFile     *uuid.UUID

	Status   RunStatus
	Trigger  Trigger
	ExitCode *int

	StartedAt  *time.Time
	FinishedAt *time.Time
	// Duration in whole seconds, finished minus started.
	Duration *int

	MetricsMeta   *ObservationMeta
	VariablesMeta *ObservationMeta

	// Snapshots taken from the job at creation time.
	EnvironmentImage string
	Timezone         string

	CreatedBy *uuid.UUID
}

// ComputeDuration returns the whole-second difference between finished and
// started, or nil when either is unset.
func (r *Run) ComputeDuration() *int {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return nil
	}
	d := int(r.FinishedAt.Sub(*r.StartedAt).Seconds())
	return &d
}
