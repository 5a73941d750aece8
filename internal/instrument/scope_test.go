package instrument

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pulse/internal/domain/model"
)

func TestScope_RecordAndDrain(t *testing.T) {
	t.Parallel()

	scope := NewScope(time.Now())
	ctx := WithScope(context.Background(), scope)

	Record(ctx, SpanDescriptor{Type: model.OperationSQL, Label: "first"})
	Record(ctx, SpanDescriptor{Type: model.OperationTemplate, Label: "second"})
	require.Equal(t, 2, scope.Len())

	spans := scope.Drain()
	require.Len(t, spans, 2)
	assert.Equal(t, "first", spans[0].Label)
	assert.Equal(t, "second", spans[1].Label)

	Record(ctx, SpanDescriptor{Type: model.OperationSQL, Label: "late"})
	assert.Empty(t, scope.Drain(), "records after drain are dropped")
}

func TestRecord_NoScopeOrSuppressed(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		Record(context.Background(), SpanDescriptor{Label: "orphan"})
	})

	scope := NewScope(time.Now())
	ctx := Suppress(WithScope(context.Background(), scope))
	Record(ctx, SpanDescriptor{Label: "suppressed"})
	assert.Equal(t, 0, scope.Len())
	assert.True(t, Suppressed(ctx))
	assert.False(t, Suppressed(context.Background()))
}

func TestScope_NestedShadowsCaller(t *testing.T) {
	t.Parallel()

	outer := NewScope(time.Now())
	outerCtx := WithScope(context.Background(), outer)

	inner := NewScope(time.Now())
	innerCtx := WithScope(outerCtx, inner)
	Record(innerCtx, SpanDescriptor{Label: "inner"})

	Record(outerCtx, SpanDescriptor{Label: "outer"})

	assert.Equal(t, []string{"inner"}, labels(inner.Drain()))
	assert.Equal(t, []string{"outer"}, labels(outer.Drain()))
}

func TestScope_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	scope := NewScope(time.Now())
	ctx := WithScope(context.Background(), scope)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Record(ctx, SpanDescriptor{Type: model.OperationCacheRead})
		}()
	}
	wg.Wait()
	assert.Len(t, scope.Drain(), 50)
}

func TestScope_Offset(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	scope := NewScope(start)
	assert.InDelta(t, 1500.0, scope.Offset(start.Add(1500*time.Millisecond)), 0.001)
	assert.Zero(t, scope.Offset(start.Add(-time.Second)))
}

func TestNilScopeIsSafe(t *testing.T) {
	t.Parallel()

	var s *Scope
	assert.NotPanics(t, func() { s.Record(SpanDescriptor{}) })
	assert.Nil(t, s.Drain())
	assert.Zero(t, s.Len())
}

func labels(spans []SpanDescriptor) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Label
	}
	return out
}
