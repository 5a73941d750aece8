package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PerformanceStatus classifies a duration against Thresholds.
type PerformanceStatus string

const (
	PerformanceFast     PerformanceStatus = "fast"
	PerformanceSlow     PerformanceStatus = "slow"
	PerformanceVerySlow PerformanceStatus = "very_slow"
	PerformanceCritical PerformanceStatus = "critical"
)

// Thresholds are the slow, very slow and critical duration cutoffs in milliseconds.
type Thresholds struct {
	Slow     float64 `json:"slow"`
	VerySlow float64 `json:"very_slow"`
	Critical float64 `json:"critical"`
}

// UnmarshalText parses "slow,very_slow,critical".
func (t *Thresholds) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ",")
	if len(parts) != 3 {
		return fmt.Errorf("thresholds must be slow,very_slow,critical: %q", string(text))
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("threshold %q: %w", p, err)
		}
		vals[i] = v
	}
	*t = Thresholds{Slow: vals[0], VerySlow: vals[1], Critical: vals[2]}
	return nil
}

// Validate requires positive, ascending cutoffs.
func (t Thresholds) Validate() error {
	if t.Slow <= 0 || t.VerySlow <= 0 || t.Critical <= 0 {
		return errors.New("thresholds must be positive")
	}
	if t.Slow >= t.VerySlow || t.VerySlow >= t.Critical {
		return errors.New("thresholds must be ascending")
	}
	return nil
}

// Classify maps a duration to a PerformanceStatus.
func (t Thresholds) Classify(d float64) PerformanceStatus {
	switch {
	case d >= t.Critical:
		return PerformanceCritical
	case d >= t.VerySlow:
		return PerformanceVerySlow
	case d >= t.Slow:
		return PerformanceSlow
	default:
		return PerformanceFast
	}
}
