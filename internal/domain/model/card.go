package model

import (
	"math"
	"strconv"
	"time"
)

// TrendDirection is the icon hint for a trend.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// TrendEpsilon is the absolute percentage under which a change reads as flat.
const TrendEpsilon = 0.1

// Trend compares a current window value with the preceding window.
type Trend struct {
	Current    float64        `json:"current"`
	Previous   float64        `json:"previous"`
	Percentage float64        `json:"percentage"`
	Direction  TrendDirection `json:"direction"`
	Amount     string         `json:"amount"`
}

// ComputeTrend returns the percentage change rounded to one decimal, zero when previous is zero.
// Amount is unsigned; Direction carries the sign.
func ComputeTrend(current, previous float64) Trend {
	pct := 0.0
	if previous != 0 {
		pct = RoundTo((current-previous)/previous*100, 1)
	}
	dir := TrendFlat
	switch {
	case math.Abs(pct) < TrendEpsilon:
		dir = TrendFlat
	case pct > 0:
		dir = TrendUp
	default:
		dir = TrendDown
	}
	return Trend{
		Current:    current,
		Previous:   previous,
		Percentage: pct,
		Direction:  dir,
		Amount:     strconv.FormatFloat(math.Abs(pct), 'f', 1, 64) + "%",
	}
}

// SparkPoint is one day of a sparkline.
type SparkPoint struct {
	Date  time.Time `json:"date"`
	Label string    `json:"label"`
	Value float64   `json:"value"`
}

// CardKind names a metric card.
type CardKind string

const (
	CardAverageDuration CardKind = "average_duration"
	CardFailureRate     CardKind = "failure_rate"
	CardTotalRuns       CardKind = "total_runs"
	CardTotalJobs       CardKind = "total_jobs"
)

// MetricCard is a dashboard metric with its trend and sparkline.
type MetricCard struct {
	Kind      CardKind     `json:"kind"`
	Title     string       `json:"title"`
	Summary   string       `json:"summary"`
	Value     float64      `json:"value"`
	Unit      string       `json:"unit,omitempty"`
	Trend     Trend        `json:"trend"`
	Sparkline []SparkPoint `json:"sparkline"`
}
