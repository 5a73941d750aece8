package model

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Route is the parent entity for requests: one method and path pattern.
type Route struct {
	ID             int64     `json:"id"              db:"id"`
	Method         string    `json:"method"          db:"method"`
	Path           string    `json:"path"            db:"path"`
	ExecutionCount int64     `json:"execution_count" db:"execution_count"`
	FailuresCount  int64     `json:"failures_count"  db:"failures_count"`
	AvgDuration    float64   `json:"avg_duration"    db:"avg_duration"`
	Tags           Tags      `json:"tags"            db:"tags"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}

// Name returns the display name of the route, e.g. "GET /users/{id}".
func (r *Route) Name() string {
	return r.Method + " " + r.Path
}

// Request is one HTTP request served by a Route.
type Request struct {
	ID               int64     `json:"id"                      db:"id"`
	RouteID          int64     `json:"route_id"                db:"route_id"`
	RequestID        string    `json:"request_id"              db:"request_id"`
	Status           RunStatus `json:"status"                  db:"status"`
	HTTPStatus       *int      `json:"http_status,omitempty"   db:"http_status"`
	IsError          bool      `json:"is_error"                db:"is_error"`
	ControllerAction string    `json:"controller_action"       db:"controller_action"`
	OccurredAt       time.Time `json:"occurred_at"             db:"occurred_at"`
	Duration         *float64  `json:"duration,omitempty"      db:"duration"`
	ErrorClass       *string   `json:"error_class,omitempty"   db:"error_class"`
	ErrorMessage     *string   `json:"error_message,omitempty" db:"error_message"`
	Tags             Tags      `json:"tags"                    db:"tags"`
	CreatedAt        time.Time `json:"created_at"              db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"              db:"updated_at"`
}

// CreateRequestRequest carries the values persisted when a request begins.
type CreateRequestRequest struct {
	RouteID          int64
	RequestID        string
	ControllerAction string
	OccurredAt       time.Time
}

// Validate validates the request fields.
func (r *CreateRequestRequest) Validate() error {
	if r.RouteID <= 0 {
		return errors.New("route id is required")
	}
	if strings.TrimSpace(r.RequestID) == "" {
		return errors.New("request id is required")
	}
	return nil
}

// StatusClass buckets an HTTP status code into 2, 3, 4 or 5. Other codes return 0.
func StatusClass(code int) int {
	if code < http.StatusOK || code > 599 {
		return 0
	}
	c := code / 100
	if c == 1 {
		return 0
	}
	return c
}
