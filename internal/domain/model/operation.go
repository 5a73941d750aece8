package model

import (
	"errors"
	"fmt"
	"time"
)

// OperationType is the closed set of span kinds.
type OperationType string

const (
	OperationSQL        OperationType = "sql"
	OperationController OperationType = "controller"
	OperationTemplate   OperationType = "template"
	OperationPartial    OperationType = "partial"
	OperationLayout     OperationType = "layout"
	OperationCollection OperationType = "collection"
	OperationCacheRead  OperationType = "cache_read"
	OperationCacheWrite OperationType = "cache_write"
	OperationHTTP       OperationType = "http"
	OperationJob        OperationType = "job"
	OperationMailer     OperationType = "mailer"
	OperationStorage    OperationType = "storage"
)

// OperationTypes lists every valid operation type.
var OperationTypes = []OperationType{
	OperationSQL, OperationController, OperationTemplate, OperationPartial, OperationLayout,
	OperationCollection, OperationCacheRead, OperationCacheWrite, OperationHTTP, OperationJob,
	OperationMailer, OperationStorage,
}

// Valid returns true if the type is one of OperationTypes.
func (t OperationType) Valid() bool {
	for _, v := range OperationTypes {
		if v == t {
			return true
		}
	}
	return false
}

var (
	// ErrOperationOwner is returned when an operation links to both or neither of its owners.
	ErrOperationOwner = errors.New("operation must belong to exactly one of request or job run")
)

// Operation is one timed sub-step within a request or a job run.
type Operation struct {
	ID           int64         `json:"id"                      db:"id"`
	RequestID    *int64        `json:"request_id,omitempty"    db:"request_id"`
	JobRunID     *int64        `json:"job_run_id,omitempty"    db:"job_run_id"`
	QueryID      *int64        `json:"query_id,omitempty"      db:"query_id"`
	Type         OperationType `json:"operation_type"          db:"operation_type"`
	Label        string        `json:"label"                   db:"label"`
	Duration     float64       `json:"duration"                db:"duration"`
	StartOffset  float64       `json:"start_offset"            db:"start_offset"`
	OccurredAt   time.Time     `json:"occurred_at"             db:"occurred_at"`
	CodeLocation *string       `json:"code_location,omitempty" db:"code_location"`
}

// Validate enforces the owner exclusivity and the closed type set.
func (o *Operation) Validate() error {
	if (o.RequestID == nil) == (o.JobRunID == nil) {
		return ErrOperationOwner
	}
	if !o.Type.Valid() {
		return fmt.Errorf("invalid operation type %q", o.Type)
	}
	if o.Duration < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// OwnerKind identifies which unit-of-work table an operation belongs to.
type OwnerKind string

const (
	OwnerRequest OwnerKind = "request"
	OwnerJobRun  OwnerKind = "job_run"
)

// Owner points at the unit of work that owns a batch of operations.
type Owner struct {
	Kind OwnerKind
	ID   int64
}

// Apply sets the matching foreign key on op and clears the other one.
func (o Owner) Apply(op *Operation) {
	id := o.ID
	switch o.Kind {
	case OwnerRequest:
		op.RequestID, op.JobRunID = &id, nil
	case OwnerJobRun:
		op.JobRunID, op.RequestID = &id, nil
	}
}

// Query is a normalized SQL statement identified by its fingerprint.
type Query struct {
	ID            int64     `json:"id"             db:"id"`
	Fingerprint   string    `json:"fingerprint"    db:"fingerprint"`
	NormalizedSQL string    `json:"normalized_sql" db:"normalized_sql"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
}
