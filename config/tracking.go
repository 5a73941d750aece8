package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/target/pulse/internal/domain/model"
)

// TrackingConfig controls what the collector records.
//
// Ignore lists take ";"-separated entries; an entry written as /expr/ is a regular expression,
// anything else must match exactly.
type TrackingConfig struct {
	Enabled       bool `env:"ENABLED"        envDefault:"true"`
	TrackJobs     bool `env:"TRACK_JOBS"     envDefault:"true"`
	TrackRequests bool `env:"TRACK_REQUESTS" envDefault:"true"`
	TrackAssets   bool `env:"TRACK_ASSETS"   envDefault:"false"`

	IgnoredJobs   []string `env:"IGNORED_JOBS"   envSeparator:";"`
	IgnoredQueues []string `env:"IGNORED_QUEUES" envSeparator:";"`
	IgnoredRoutes []string `env:"IGNORED_ROUTES" envSeparator:";"`

	// OwnNamespace prefixes job names that belong to this service; they are never tracked.
	OwnNamespace string `env:"OWN_NAMESPACE" envDefault:"pulse."`
	// MountPath prefixes this service's own HTTP routes; they are never tracked.
	MountPath string `env:"MOUNT_PATH" envDefault:"/pulse"`

	CaptureArguments    bool   `env:"CAPTURE_ARGUMENTS"    envDefault:"false"`
	ArgumentsMaxBytes   int    `env:"ARGUMENTS_MAX_BYTES"  envDefault:"2048"`
	ArgumentsExpression string `env:"ARGUMENTS_EXPRESSION"`

	// FatalErrorKinds lists error type names (as printed by %T) recorded as discarded.
	FatalErrorKinds []string `env:"FATAL_ERROR_KINDS" envSeparator:";"`

	Tags []string `env:"TAGS" envDefault:"ignored;critical;experimental" envSeparator:";"`

	RouteThresholds   model.Thresholds `env:"ROUTE_THRESHOLDS"   envDefault:"500,1500,3000"`
	RequestThresholds model.Thresholds `env:"REQUEST_THRESHOLDS" envDefault:"700,2000,4000"`
	QueryThresholds   model.Thresholds `env:"QUERY_THRESHOLDS"   envDefault:"100,500,1000"`
	JobThresholds     model.Thresholds `env:"JOB_THRESHOLDS"     envDefault:"5000,30000,60000"`
}

// Sanitize normalises list entries and clamps the argument cap.
func (t *TrackingConfig) Sanitize() {
	t.IgnoredJobs = compact(t.IgnoredJobs)
	t.IgnoredQueues = compact(t.IgnoredQueues)
	t.IgnoredRoutes = compact(t.IgnoredRoutes)
	t.FatalErrorKinds = compact(t.FatalErrorKinds)
	t.Tags = compact(t.Tags)
	if len(t.Tags) == 0 {
		t.Tags = append([]string(nil), model.DefaultTags...)
	}
	if t.ArgumentsMaxBytes <= 0 {
		t.ArgumentsMaxBytes = 2048
	}
	t.MountPath = "/" + strings.Trim(strings.TrimSpace(t.MountPath), "/")
	t.ArgumentsExpression = strings.TrimSpace(t.ArgumentsExpression)
}

// Validate checks thresholds and ignore patterns.
func (t *TrackingConfig) Validate() error {
	var errs []error
	thresholds := map[string]model.Thresholds{
		"route":   t.RouteThresholds,
		"request": t.RequestThresholds,
		"query":   t.QueryThresholds,
		"job":     t.JobThresholds,
	}
	for _, name := range []string{"route", "request", "query", "job"} {
		if err := thresholds[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s thresholds: %w", name, err))
		}
	}
	lists := map[string][]string{
		"ignored jobs":   t.IgnoredJobs,
		"ignored queues": t.IgnoredQueues,
		"ignored routes": t.IgnoredRoutes,
	}
	for _, name := range []string{"ignored jobs", "ignored queues", "ignored routes"} {
		if _, err := model.ParsePatterns(lists[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if t.CaptureArguments && t.ArgumentsMaxBytes < 16 {
		errs = append(errs, errors.New("arguments max bytes must be at least 16"))
	}
	return errors.Join(errs...)
}

// Thresholds returns the thresholds keyed by category.
func (t *TrackingConfig) Thresholds() map[string]model.Thresholds {
	return map[string]model.Thresholds{
		"route":   t.RouteThresholds,
		"request": t.RequestThresholds,
		"query":   t.QueryThresholds,
		"job":     t.JobThresholds,
	}
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
