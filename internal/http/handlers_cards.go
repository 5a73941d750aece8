package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
	"github.com/target/pulse/internal/service"
)

// CardsService renders metric cards. *service.CardService implements it.
type CardsService interface {
	Cards(ctx context.Context, req service.CardRequest) ([]model.MetricCard, error)
}

// CardHandlers serves the metric card API.
type CardHandlers struct {
	Svc    CardsService
	Logger *slog.Logger
}

type cardsResponse struct {
	Type     model.SummarizableType `json:"type"`
	EntityID *int64                 `json:"entity_id,omitempty"`
	Cards    []model.MetricCard     `json:"cards"`
}

// List handles GET /api/cards?type=job|route&id=N.
func (h *CardHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.CardRequest{Type: model.SummarizableType(strings.ToLower(strings.TrimSpace(q.Get("type"))))}
	if req.Type == "" {
		req.Type = model.SummarizableJob
	}
	if raw := strings.TrimSpace(q.Get("id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			WriteServiceError(w, r, h.Logger, apperrors.ValidationField("id", "must be a positive integer"))
			return
		}
		req.EntityID = &id
	}

	cards, err := h.Svc.Cards(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, cardsResponse{Type: req.Type, EntityID: req.EntityID, Cards: cards})
}
