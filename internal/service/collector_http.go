package service

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/instrument"
	"github.com/target/pulse/internal/observability/metrics"
)

// RequestIDHeader carries the caller's correlation id for a request.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 255

// ResolvedRoute is the route pattern a request maps to.
type ResolvedRoute struct {
	Method string
	Path   string
	// Action names the handler, stored as the request's controller_action.
	Action string
}

// RouteResolver maps a request to its route pattern. ok is false when no route matches.
type RouteResolver interface {
	Resolve(r *http.Request) (ResolvedRoute, bool)
}

// RouteResolverFunc adapts a function to RouteResolver.
type RouteResolverFunc func(r *http.Request) (ResolvedRoute, bool)

// Resolve calls f(r).
func (f RouteResolverFunc) Resolve(r *http.Request) (ResolvedRoute, bool) { return f(r) }

// ServeMuxResolver resolves routes from the patterns registered on mux,
// e.g. "GET /api/jobs/{id}" or "/static/".
func ServeMuxResolver(mux *http.ServeMux) RouteResolver {
	return RouteResolverFunc(func(r *http.Request) (ResolvedRoute, bool) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			return ResolvedRoute{}, false
		}
		method, path := splitPattern(pattern)
		if method == "" {
			method = r.Method
		}
		return ResolvedRoute{Method: method, Path: path, Action: pattern}, true
	})
}

// splitPattern separates the optional method and host from a ServeMux pattern.
func splitPattern(pattern string) (string, string) {
	method, rest, found := strings.Cut(pattern, " ")
	if !found {
		method, rest = "", pattern
	}
	rest = strings.TrimSpace(rest)
	if i := strings.IndexByte(rest, '/'); i > 0 {
		rest = rest[i:]
	}
	return method, rest
}

// Middleware tracks each request served by next as a unit of work on its route.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.repos.Routes == nil || c.repos.Requests == nil {
			next.ServeHTTP(w, r)
			return
		}
		if ignored, reason := c.ignore.IgnoreRequest(r.Method, r.URL.Path); ignored {
			metrics.EmitIgnored(c.metrics, kindRequest, reason)
			next.ServeHTTP(w, r)
			return
		}

		start := c.clock.Now()
		req := c.beginRequest(r, c.resolve(r), start)
		if req == nil {
			next.ServeHTTP(w, r)
			return
		}

		scope := instrument.NewScope(start)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if v := recover(); v != nil {
				c.finishRequest(r.Context(), req, scope, start, http.StatusInternalServerError, &PanicError{Value: v})
				panic(v)
			}
		}()

		next.ServeHTTP(rec, r.WithContext(instrument.WithScope(r.Context(), scope)))

		var workErr error
		if rec.status >= http.StatusInternalServerError {
			workErr = &HTTPStatusError{Code: rec.status}
		}
		c.finishRequest(r.Context(), req, scope, start, rec.status, workErr)
	})
}

func (c *Collector) resolve(r *http.Request) ResolvedRoute {
	if c.routes != nil {
		if route, ok := c.routes.Resolve(r); ok && route.Path != "" {
			return route
		}
	}
	return ResolvedRoute{Method: r.Method, Path: r.URL.Path}
}

func (c *Collector) beginRequest(r *http.Request, route ResolvedRoute, start time.Time) *model.Request {
	ctx := r.Context()
	pctx := persistContext(ctx)

	routeID, err := c.routeID(pctx, route)
	if err != nil {
		c.instrumentationError(ctx, kindRequest, "find_route", err, "method", route.Method, "path", route.Path)
		return nil
	}

	req, err := c.repos.Requests.Create(pctx, &model.CreateRequestRequest{
		RouteID:          routeID,
		RequestID:        requestID(r),
		ControllerAction: route.Action,
		OccurredAt:       start,
	})
	if err != nil {
		c.instrumentationError(ctx, kindRequest, "create_request", err, "method", route.Method, "path", route.Path)
		return nil
	}
	return req
}

func (c *Collector) routeID(ctx context.Context, route ResolvedRoute) (int64, error) {
	key := routeCacheKey(route.Method, route.Path)
	if id, ok := c.parents.Get(key); ok {
		return id, nil
	}
	rt, err := c.repos.Routes.FindOrCreate(ctx, route.Method, route.Path)
	if err != nil {
		return 0, err
	}
	c.parents.Set(key, rt.ID)
	return rt.ID, nil
}

// finishRequest mirrors finishJobRun; request errors are never returned to the handler chain.
func (c *Collector) finishRequest(ctx context.Context, req *model.Request, scope *instrument.Scope, start time.Time, status int, workErr error) {
	pctx := persistContext(ctx)
	spans := scope.Drain()
	c.persistSpans(pctx, model.Owner{Kind: model.OwnerRequest, ID: req.ID}, spans)

	completion := c.completionFor(start, workErr)
	var httpErr *HTTPStatusError
	if errors.As(workErr, &httpErr) {
		completion.Status = model.RunStatusFailed
	}
	completion.HTTPStatus = &status

	done, changed, err := c.repos.Requests.Complete(pctx, req.ID, completion)
	if err != nil {
		c.instrumentationError(ctx, kindRequest, "complete_request", err, "request_id", req.RequestID)
		return
	}

	metrics.EmitUnitOfWork(c.metrics, metrics.UnitOfWorkMetric{
		Kind:     kindRequest,
		Status:   string(completion.Status),
		Duration: time.Duration(completion.Duration * float64(time.Millisecond)),
		Spans:    len(spans),
	})
	if !changed {
		return
	}
	if err := c.accumulator.ApplyRequest(pctx, done); err != nil {
		c.instrumentationError(ctx, kindRequest, "accumulate", err, "request_id", req.RequestID)
	}
}

// HTTPStatusError records a 5xx response as the request's error.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return "http status " + http.StatusText(e.Code)
}

func requestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	return id
}

// statusRecorder captures the response status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
