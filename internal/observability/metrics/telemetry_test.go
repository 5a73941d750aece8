package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/target/pulse/internal/observability/statsd"
)

func TestEmitUnitOfWork(t *testing.T) {
	sink := &statsd.MemorySink{}
	EmitUnitOfWork(sink, UnitOfWorkMetric{Kind: "job", Adapter: "queue", Status: "success", Duration: 20 * time.Millisecond, Spans: 4})

	assert.InDelta(t, 1, sink.Sum("collector.unit_of_work", map[string]string{"kind": "job", "status": "success"}), 1e-9)
	assert.InDelta(t, 20, sink.Sum("collector.duration", nil), 1e-9)
	assert.InDelta(t, 4, sink.Sum("collector.spans", nil), 1e-9)

	EmitUnitOfWork(nil, UnitOfWorkMetric{})
}

func TestEmitSummaryPass(t *testing.T) {
	sink := &statsd.MemorySink{}
	EmitSummaryPass(sink, SummaryPassMetric{Trigger: "cron", Buckets: 5, Written: 4, Failed: 1})

	assert.InDelta(t, 1, sink.Sum("summary.pass", map[string]string{"result": ResultError}), 1e-9)
	assert.InDelta(t, 4, sink.Sum("summary.buckets", map[string]string{"result": ResultSuccess}), 1e-9)
	assert.InDelta(t, 1, sink.Sum("summary.buckets", map[string]string{"result": ResultError}), 1e-9)
}

func TestEmitRetention(t *testing.T) {
	sink := &statsd.MemorySink{}
	EmitRetention(sink, "job_runs_age", 12, nil)
	EmitRetention(sink, "requests_age", 0, errors.New("boom"))

	assert.InDelta(t, 12, sink.Sum("retention.deleted", nil), 1e-9)
	assert.InDelta(t, 1, sink.Sum("retention.step", map[string]string{"result": ResultError}), 1e-9)
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
