package instrument

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Event is a timed notification published by instrumented code.
type Event struct {
	Name     string
	Start    time.Time
	End      time.Time
	Payload  any
	Location string
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration { return e.End.Sub(e.Start) }

// Handler receives events whose name matches a subscription pattern.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      uint64
	pattern string
	fn      Handler
}

// Notifier fans events out to subscribers selected by glob patterns over event names,
// e.g. "sql.*" or "render_*.*".
type Notifier struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

// NewNotifier creates an empty Notifier. A nil logger falls back to slog.Default().
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger.With("component", "notifier")}
}

// Subscribe registers fn for events matching pattern. The returned func removes the subscription.
func (n *Notifier) Subscribe(pattern string, fn Handler) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %q: handler is required", pattern)
	}
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("subscribe: invalid pattern %q", pattern)
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, pattern: pattern, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}, nil
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers a pre-timed event to every matching subscriber on the caller's goroutine.
func (n *Notifier) Publish(ctx context.Context, e Event) {
	if n == nil {
		return
	}
	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()

	for _, s := range subs {
		if ok, _ := doublestar.Match(s.pattern, e.Name); ok {
			n.deliver(ctx, s, e)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.ErrorContext(ctx, "subscriber panicked",
				"event", e.Name,
				"pattern", s.pattern,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	s.fn(ctx, e)
}

// Instrument times fn and publishes the result as an event named name.
// fn's error is returned unchanged.
func (n *Notifier) Instrument(ctx context.Context, name string, payload any, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	n.Publish(ctx, Event{
		Name:     name,
		Start:    start,
		End:      time.Now(),
		Payload:  payload,
		Location: callerLocation(2),
	})
	return err
}

// callerLocation renders the caller skip frames up as "file.go:123".
func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
