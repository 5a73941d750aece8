package instrument

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/target/pulse/internal/domain/model"
)

// maxLabelLength bounds span labels; longer labels are cut.
const maxLabelLength = 1000

// SQLPayload accompanies sql.* events.
type SQLPayload struct {
	Statement     string
	NormalizedSQL string
	Fingerprint   string
}

// SpanLabel implements Labeler.
func (p SQLPayload) SpanLabel() string {
	if p.NormalizedSQL != "" {
		return p.NormalizedSQL
	}
	return p.Statement
}

// Labeler lets a payload name the span recorded for its event.
type Labeler interface {
	SpanLabel() string
}

type spanRule struct {
	pattern string
	typ     model.OperationType
}

// defaultSpanRules maps event names to operation types. The first matching rule wins.
var defaultSpanRules = []spanRule{
	{"sql.*", model.OperationSQL},
	{"process_action.*", model.OperationController},
	{"render_template.*", model.OperationTemplate},
	{"render_partial.*", model.OperationPartial},
	{"render_layout.*", model.OperationLayout},
	{"render_collection.*", model.OperationCollection},
	{"cache_read.*", model.OperationCacheRead},
	{"cache_write.*", model.OperationCacheWrite},
	{"request.http", model.OperationHTTP},
	{"perform.job", model.OperationJob},
	{"deliver.mailer", model.OperationMailer},
	{"*.storage", model.OperationStorage},
}

// SpanSubscriber turns notifier events into spans on the scope carried by the event context.
type SpanSubscriber struct {
	rules []spanRule
}

// NewSpanSubscriber returns a subscriber with the default event name mapping.
func NewSpanSubscriber() *SpanSubscriber {
	return &SpanSubscriber{rules: defaultSpanRules}
}

// TypeFor returns the operation type for an event name.
func (s *SpanSubscriber) TypeFor(name string) (model.OperationType, bool) {
	for _, r := range s.rules {
		if ok, _ := doublestar.Match(r.pattern, name); ok {
			return r.typ, true
		}
	}
	return "", false
}

// Attach subscribes to every event on n. Call the returned func to detach.
func (s *SpanSubscriber) Attach(n *Notifier) (func(), error) {
	unsubscribe, err := n.Subscribe("*", s.Handle)
	if err != nil {
		return nil, fmt.Errorf("attach span subscriber: %w", err)
	}
	return unsubscribe, nil
}

// Handle records e as a span when it maps to an operation type and ctx carries a scope.
func (s *SpanSubscriber) Handle(ctx context.Context, e Event) {
	typ, ok := s.TypeFor(e.Name)
	if !ok || Suppressed(ctx) {
		return
	}
	scope := ScopeFrom(ctx)
	if scope == nil {
		return
	}

	span := SpanDescriptor{
		Type:        typ,
		Label:       CutUTF8(labelFor(e), maxLabelLength),
		Duration:    Millis(e.Duration()),
		StartOffset: scope.Offset(e.Start),
		OccurredAt:  e.Start,
		Location:    e.Location,
	}
	if p, isSQL := e.Payload.(SQLPayload); isSQL {
		span.QueryFingerprint = p.Fingerprint
		span.NormalizedSQL = p.NormalizedSQL
	}
	Record(ctx, span)
}

func labelFor(e Event) string {
	switch p := e.Payload.(type) {
	case Labeler:
		if l := p.SpanLabel(); l != "" {
			return l
		}
	case string:
		if p != "" {
			return p
		}
	}
	return e.Name
}

// CutUTF8 returns the longest prefix of s that fits in n bytes without splitting a rune.
func CutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
