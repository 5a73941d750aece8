package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

// JobsService is the read and tagging side of jobs. *service.JobService implements it.
type JobsService interface {
	List(ctx context.Context, opts model.JobListOptions) ([]*model.JobWithPerformance, error)
	SetTags(ctx context.Context, id int64, raw []string) (*model.Job, error)
}

// JobHandlers serves the job API.
type JobHandlers struct {
	Svc    JobsService
	Logger *slog.Logger
}

type jobListResponse struct {
	Jobs   []*model.JobWithPerformance `json:"jobs"`
	Limit  int                         `json:"limit"`
	Offset int                         `json:"offset"`
}

// List handles GET /api/jobs with optional queue, tag, sort, dir, limit and offset params.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	sortBy, dir := ParseSortParam(q, "sort", "dir")

	jobs, err := h.Svc.List(r.Context(), model.JobListOptions{
		Queue:     optionalQuery(q, "queue"),
		Tag:       optionalQuery(q, "tag"),
		SortBy:    sortBy,
		SortOrder: dir,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if jobs == nil {
		jobs = []*model.JobWithPerformance{}
	}
	WriteJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Limit: limit, Offset: offset})
}

type setTagsRequest struct {
	Tags []string `json:"tags"`
}

// SetTags handles PUT /api/jobs/{id}/tags.
func (h *JobHandlers) SetTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		WriteServiceError(w, r, h.Logger, apperrors.ValidationField("id", "must be a positive integer"))
		return
	}
	var req setTagsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := h.Svc.SetTags(r.Context(), id, req.Tags)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
