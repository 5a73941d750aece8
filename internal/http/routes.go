// Package httpx serves the JSON API: metric cards, job listing and tagging, on-demand
// summary passes, and health probes.
package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/domain/model"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Cards      CardsService
	Jobs       JobsService
	Summarizer SummaryService // Optional: backfill route is omitted when nil
	// Periods is the default period list for backfill requests.
	Periods []model.PeriodType
	Auth    config.AuthConfig
	// MountPath prefixes the API routes. Health probes stay at the root.
	MountPath string
	// Checks back /readyz. Empty answers ok.
	Checks map[string]Checker
	Now    func() time.Time
	Logger *slog.Logger // Optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	api := http.NewServeMux()
	cards := &CardHandlers{Svc: services.Cards, Logger: logger}
	jobs := &JobHandlers{Svc: services.Jobs, Logger: logger}
	api.HandleFunc("GET /api/cards", cards.List)
	api.HandleFunc("GET /api/jobs", jobs.List)
	api.HandleFunc("PUT /api/jobs/{id}/tags", jobs.SetTags)
	if services.Summarizer != nil {
		summaries := &SummaryHandlers{
			Svc:     services.Summarizer,
			Periods: services.Periods,
			Now:     services.Now,
			Logger:  logger,
		}
		api.HandleFunc("POST /api/summaries/backfill", summaries.Backfill)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.HandleFunc("GET /readyz", readinessHandler(services.Checks))

	protected := RequireAuth(services.Auth)(api)
	prefix := strings.TrimRight(services.MountPath, "/")
	if prefix == "" {
		mux.Handle("/api/", protected)
	} else {
		mux.Handle(prefix+"/api/", http.StripPrefix(prefix, protected))
	}

	return Recover(logger)(Logging(logger)(mux))
}
