// Package metrics holds the metric names and tag conventions shared by the collector and the batch passes.
package metrics

import (
	"time"

	obserrors "github.com/target/pulse/internal/observability/errors"
	"github.com/target/pulse/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultIgnored = "ignored"
	ResultNoop    = "noop"
)

// UnitOfWorkMetric describes one tracked request or job run.
type UnitOfWorkMetric struct {
	Kind     string // "job" or "request"
	Adapter  string
	Status   string
	Duration time.Duration
	Spans    int
}

// EmitUnitOfWork emits counters and timings for one completed unit of work.
func EmitUnitOfWork(sink statsd.Sink, in UnitOfWorkMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"kind": in.Kind, "status": in.Status}
	if in.Adapter != "" {
		tags["adapter"] = in.Adapter
	}
	sink.Count("collector.unit_of_work", 1, tags)
	if in.Duration > 0 {
		sink.Timing("collector.duration", in.Duration, CloneTags(tags))
	}
	if in.Spans > 0 {
		sink.Count("collector.spans", int64(in.Spans), map[string]string{"kind": in.Kind})
	}
}

// EmitIgnored counts a unit of work skipped by the ignore rules.
func EmitIgnored(sink statsd.Sink, kind, reason string) {
	if sink == nil {
		return
	}
	sink.Count("collector.unit_of_work", 1, map[string]string{"kind": kind, "status": ResultIgnored, "reason": reason})
}

// EmitInstrumentationError counts an error the collector swallowed.
func EmitInstrumentationError(sink statsd.Sink, kind, stage string, err error) {
	if sink == nil || err == nil {
		return
	}
	sink.Count("collector.errors", 1, map[string]string{
		"kind":        kind,
		"stage":       stage,
		"error_class": obserrors.Classify(err),
	})
}

// SummaryPassMetric describes one summary aggregation pass.
type SummaryPassMetric struct {
	Trigger  string // "cron", "admin" or "http"
	Buckets  int
	Written  int
	Failed   int
	Duration time.Duration
	Err      error
}

// EmitSummaryPass emits bucket counts and the pass duration.
func EmitSummaryPass(sink statsd.Sink, in SummaryPassMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if in.Err != nil || in.Failed > 0 {
		result = ResultError
	}
	tags := map[string]string{"trigger": in.Trigger, "result": result}
	sink.Count("summary.pass", 1, tags)
	sink.Count("summary.buckets", int64(in.Written), map[string]string{"result": ResultSuccess})
	if in.Failed > 0 {
		sink.Count("summary.buckets", int64(in.Failed), map[string]string{"result": ResultError})
	}
	sink.Gauge("summary.last_pass.buckets", float64(in.Buckets), nil)
	if in.Duration > 0 {
		sink.Timing("summary.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRetention emits the rows removed by one retention step.
func EmitRetention(sink statsd.Sink, step string, deleted int64, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	tags := map[string]string{"step": step}
	if err != nil {
		result = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	tags["result"] = result
	sink.Count("retention.step", 1, tags)
	if deleted > 0 {
		sink.Count("retention.deleted", deleted, map[string]string{"step": step})
	}
}

// CloneTags returns a shallow copy of src, or nil when empty.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
