package model

import (
	"fmt"
	"strings"
	"time"
)

// PeriodType is the granularity of a summary bucket.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type PeriodType string

const (
	PeriodHour  PeriodType = "hour"
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
)

// PeriodTypes lists every period type from finest to coarsest.
var PeriodTypes = []PeriodType{PeriodHour, PeriodDay, PeriodWeek, PeriodMonth}

// Valid returns true if the period type is known.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (p *PeriodType) UnmarshalText(text []byte) error {
	v := PeriodType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid PeriodType: %q", v)
	}
	*p = v
	return nil
}

// ParsePeriodTypes parses a comma separated list. Empty input yields every period type.
func ParsePeriodTypes(s string) ([]PeriodType, error) {
	if strings.TrimSpace(s) == "" {
		return append([]PeriodType(nil), PeriodTypes...), nil
	}
	seen := make(map[PeriodType]bool)
	var out []PeriodType
	for _, part := range strings.Split(s, ",") {
		var p PeriodType
		if err := p.UnmarshalText([]byte(part)); err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// SummarizableType names the parent entity kind a summary belongs to.
type SummarizableType string

const (
	SummarizableJob   SummarizableType = "job"
	SummarizableRoute SummarizableType = "route"
)

// Valid returns true if the summarizable type is known.
func (t SummarizableType) Valid() bool {
	return t == SummarizableJob || t == SummarizableRoute
}

// Summary is a statistical rollup for one (entity, period type, period start) bucket.
type Summary struct {
	ID               int64            `json:"id"                        db:"id"`
	SummarizableType SummarizableType `json:"summarizable_type"         db:"summarizable_type"`
	SummarizableID   int64            `json:"summarizable_id"           db:"summarizable_id"`
	PeriodType       PeriodType       `json:"period_type"               db:"period_type"`
	PeriodStart      time.Time        `json:"period_start"              db:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"                db:"period_end"`
	Count            int64            `json:"count"                     db:"count"`
	AvgDuration      float64          `json:"avg_duration"              db:"avg_duration"`
	MinDuration      float64          `json:"min_duration"              db:"min_duration"`
	MaxDuration      float64          `json:"max_duration"              db:"max_duration"`
	P50Duration      float64          `json:"p50_duration"              db:"p50_duration"`
	P95Duration      float64          `json:"p95_duration"              db:"p95_duration"`
	P99Duration      float64          `json:"p99_duration"              db:"p99_duration"`
	TotalDuration    float64          `json:"total_duration"            db:"total_duration"`
	StddevDuration   *float64         `json:"stddev_duration,omitempty" db:"stddev_duration"`
	ErrorCount       int64            `json:"error_count"               db:"error_count"`
	SuccessCount     int64            `json:"success_count"             db:"success_count"`
	Status2xx        int64            `json:"status_2xx"                db:"status_2xx"`
	Status3xx        int64            `json:"status_3xx"                db:"status_3xx"`
	Status4xx        int64            `json:"status_4xx"                db:"status_4xx"`
	Status5xx        int64            `json:"status_5xx"                db:"status_5xx"`
	CreatedAt        time.Time        `json:"created_at"                db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"                db:"updated_at"`
}

// SummaryKey is the unique identity of a summary bucket.
type SummaryKey struct {
	Type        SummarizableType
	EntityID    int64
	PeriodType  PeriodType
	PeriodStart time.Time
}

// String renders the key for logs.
func (k SummaryKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", k.Type, k.EntityID, k.PeriodType, k.PeriodStart.UTC().Format(time.RFC3339))
}

// SummaryFilter selects summaries for the read side.
type SummaryFilter struct {
	Type       SummarizableType
	EntityID   *int64
	PeriodType PeriodType
	From       time.Time
	To         time.Time
}

// CompletedRun is the projection of a terminal unit of work the aggregator reads.
type CompletedRun struct {
	EntityID   int64
	OccurredAt time.Time
	Duration   float64
	Status     RunStatus
	HTTPStatus *int
}
