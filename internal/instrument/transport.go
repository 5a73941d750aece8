package instrument

import (
	"net/http"
	"strconv"
	"time"
)

// HTTPPayload accompanies request.http events.
type HTTPPayload struct {
	Method string
	Host   string
	Path   string
	Status int
}

// SpanLabel implements Labeler.
func (p HTTPPayload) SpanLabel() string {
	label := p.Method + " " + p.Host + p.Path
	if p.Status > 0 {
		label += " " + strconv.Itoa(p.Status)
	}
	return label
}

// Transport is an http.RoundTripper that publishes a request.http event per outbound call.
type Transport struct {
	Base     http.RoundTripper
	Notifier *Notifier
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()
	if t.Notifier == nil || Suppressed(ctx) || ScopeFrom(ctx) == nil {
		return base.RoundTrip(req)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	payload := HTTPPayload{Method: req.Method, Host: req.URL.Host, Path: req.URL.Path}
	if resp != nil {
		payload.Status = resp.StatusCode
	}
	t.Notifier.Publish(ctx, Event{Name: "request.http", Start: start, End: time.Now(), Payload: payload})
	return resp, err
}
