package models

import (
	"time"

	"github.com/google/uuid"
)

// ValueLabel is one typed label attached to a tracked observation.
type ValueLabel struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
}

// RunMetric is one metric row emitted during a run.
type RunMetric struct {
	Base
	RunUUID uuid.UUID
	Name    string
	Value   any
	Type    string
	Labels  []ValueLabel
	// Event time as reported by the worker, distinct from row CreatedAt.
	RecordedAt time.Time
}

// RunVariable is one variable row emitted during a run. Secret-named
// variables are rewritten before persistence and flagged IsMasked.
type RunVariable struct {
	Base
	RunUUID    uuid.UUID
	Name       string
	Value      any
	Type       string
	Labels     []ValueLabel
	IsMasked   bool
	RecordedAt time.Time
}
