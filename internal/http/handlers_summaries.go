package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
	"github.com/target/pulse/internal/service"
)

// maxBackfillWindow caps one HTTP-triggered pass; longer backfills go through the admin CLI.
const maxBackfillWindow = 31 * 24 * time.Hour

// SummaryService runs summary passes. *service.Summarizer implements it.
type SummaryService interface {
	Summarize(ctx context.Context, req service.SummarizeRequest) (service.BackfillResult, error)
}

// SummaryHandlers serves on-demand summary passes.
type SummaryHandlers struct {
	Svc     SummaryService
	Periods []model.PeriodType // used when the request names none
	Now     func() time.Time
	Logger  *slog.Logger
}

type backfillRequest struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Periods []string  `json:"periods"`
}

// Backfill handles POST /api/summaries/backfill. End defaults to now.
func (h *SummaryHandlers) Backfill(w http.ResponseWriter, r *http.Request) {
	var body backfillRequest
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.End.IsZero() {
		body.End = h.now()
	}
	if body.Start.IsZero() {
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("start", "start is required"))
		return
	}
	if body.End.Sub(body.Start) > maxBackfillWindow {
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("start", "window cannot exceed 31 days"))
		return
	}

	periods := h.Periods
	if len(body.Periods) > 0 {
		parsed, err := model.ParsePeriodTypes(strings.Join(body.Periods, ","))
		if err != nil {
			WriteServiceError(w, r, h.Logger, apperrors.ValidationField("periods", err.Error()))
			return
		}
		periods = parsed
	}

	res, err := h.Svc.Summarize(r.Context(), service.SummarizeRequest{
		Start:   body.Start,
		End:     body.End,
		Periods: periods,
		Trigger: service.TriggerHTTP,
	})
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *SummaryHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
