package data

import (
	"log/slog"
	"time"

	"github.com/target/pulse/internal/core"
)

// RepoConfig holds options shared by the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider core.TimeProvider
}

func (c RepoConfig) clock() core.TimeProvider {
	if c.TimeProvider == nil {
		return core.SystemTime{}
	}
	return c.TimeProvider
}

func (c RepoConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// nowUTC truncates to microseconds so values round-trip through timestamptz unchanged.
func nowUTC(tp core.TimeProvider) time.Time {
	return tp.Now().UTC().Truncate(time.Microsecond)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
