package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/pulse/internal/domain/bucket"
	"github.com/target/pulse/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSummarizer runs the scheduled summary aggregation.
	ServiceModeSummarizer ServiceMode = "summarizer"
	// ServiceModeRetention runs the retention runner.
	ServiceModeRetention ServiceMode = "retention"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeSummarizer, ServiceModeRetention}
}

// ParseServices parses a comma-delimited list of service names.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)
	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		switch mode {
		case ServiceModeHTTP, ServiceModeSummarizer, ServiceModeRetention:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, summarizer, retention)", name)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// SummaryConfig controls the summary aggregation passes.
type SummaryConfig struct {
	// Schedule is a robfig/cron spec ("@every 15m", "*/10 * * * *").
	Schedule string `env:"SCHEDULE" envDefault:"@every 15m"`

	// Lookback is how far back each scheduled pass re-summarizes.
	Lookback time.Duration `env:"LOOKBACK" envDefault:"2h"`

	// Periods lists the period types each pass computes.
	Periods string `env:"PERIODS" envDefault:"hour,day,week,month"`

	// WeekStart is the weekday week buckets begin on.
	WeekStart string `env:"WEEK_START" envDefault:"monday"`

	// Concurrency bounds parallel bucket upserts.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`

	// LockTTL bounds how long one instance holds the pass lock.
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to summary configuration values.
func (s *SummaryConfig) Sanitize() {
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.Concurrency > 64 {
		s.Concurrency = 64
	}
	if s.Lookback < time.Hour {
		s.Lookback = time.Hour
	}
	if s.LockTTL < time.Minute {
		s.LockTTL = time.Minute
	}
	s.Schedule = strings.TrimSpace(s.Schedule)
}

// Validate checks the schedule, period list and week start.
func (s *SummaryConfig) Validate() error {
	if _, err := cron.ParseStandard(s.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.Schedule, err)
	}
	if _, err := s.PeriodTypes(); err != nil {
		return err
	}
	if _, err := bucket.ParseWeekday(s.WeekStart); err != nil {
		return err
	}
	return nil
}

// PeriodTypes parses Periods.
func (s *SummaryConfig) PeriodTypes() ([]model.PeriodType, error) {
	return model.ParsePeriodTypes(s.Periods)
}

// Calendar returns the bucket calendar for WeekStart, defaulting to Monday.
func (s *SummaryConfig) Calendar() bucket.Calendar {
	day, err := bucket.ParseWeekday(s.WeekStart)
	if err != nil {
		day = time.Monday
	}
	return bucket.NewCalendar(day)
}

// RetentionConfig controls deletion of old raw telemetry.
type RetentionConfig struct {
	// Interval is the retention tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`

	// FullRetention is how long raw job runs and requests are kept.
	FullRetention time.Duration `env:"FULL_PERIOD" envDefault:"720h"`

	// BatchSize is the maximum number of rows deleted per statement.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`

	// Table caps. Zero disables the cap.
	MaxJobRuns    int64 `env:"MAX_JOB_RUNS"    envDefault:"50000"`
	MaxRequests   int64 `env:"MAX_REQUESTS"    envDefault:"50000"`
	MaxOperations int64 `env:"MAX_OPERATIONS"  envDefault:"100000"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *RetentionConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.FullRetention < time.Hour {
		r.FullRetention = time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
	for _, v := range []*int64{&r.MaxJobRuns, &r.MaxRequests, &r.MaxOperations} {
		if *v < 0 {
			*v = 0
		}
	}
}
