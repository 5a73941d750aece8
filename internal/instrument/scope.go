// Package instrument records timed operations (spans) for the unit of work carried in a context.
//
// A Scope is attached to a context by the collector at the start of a job run or request.
// Instrumented code publishes events on a Notifier; the SpanSubscriber turns matching events
// into SpanDescriptors on the scope found in the event's context. Nothing here is global:
// nested units of work shadow the caller's scope through context derivation.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/target/pulse/internal/domain/model"
)

// SpanDescriptor is one buffered operation awaiting persistence.
type SpanDescriptor struct {
	Type             model.OperationType
	Label            string
	Duration         float64 // ms
	StartOffset      float64 // ms since the scope started
	OccurredAt       time.Time
	QueryFingerprint string
	NormalizedSQL    string
	Location         string
}

// Scope buffers spans for a single unit of work. Safe for concurrent use so goroutines
// spawned by the unit of work may record into it.
type Scope struct {
	start time.Time

	mu      sync.Mutex
	spans   []SpanDescriptor
	drained bool
}

// NewScope starts a scope at start. start should carry a monotonic reading (time.Now()).
func NewScope(start time.Time) *Scope {
	return &Scope{start: start}
}

// Start returns the scope's start instant.
func (s *Scope) Start() time.Time { return s.start }

// Offset returns the milliseconds elapsed between the scope start and t, never negative.
func (s *Scope) Offset(t time.Time) float64 {
	d := t.Sub(s.start)
	if d < 0 {
		return 0
	}
	return Millis(d)
}

// Record appends a span. It is a no-op once the scope has been drained.
func (s *Scope) Record(span SpanDescriptor) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return
	}
	s.spans = append(s.spans, span)
}

// Drain returns the buffered spans in insertion order and closes the scope.
func (s *Scope) Drain() []SpanDescriptor {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.spans
	s.spans = nil
	s.drained = true
	return out
}

// Len reports how many spans are buffered.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}

type scopeKey struct{}

type suppressKey struct{}

// WithScope returns a context carrying scope.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope carried by ctx, or nil.
func ScopeFrom(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Suppress marks ctx so that nothing done under it is recorded.
// The collector persists its own rows under a suppressed context.
func Suppress(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, true)
}

// Suppressed reports whether recording is suppressed for ctx.
func Suppressed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(suppressKey{}).(bool)
	return v
}

// Record appends span to the scope carried by ctx. It never fails the caller: without a scope,
// under suppression, or after a drain it does nothing, and any panic is swallowed.
func Record(ctx context.Context, span SpanDescriptor) {
	defer func() { _ = recover() }()
	if Suppressed(ctx) {
		return
	}
	ScopeFrom(ctx).Record(span)
}

// Millis converts d to milliseconds rounded to two decimals.
func Millis(d time.Duration) float64 {
	return model.RoundTo(float64(d)/float64(time.Millisecond), 2)
}
