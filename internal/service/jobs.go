package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo        core.JobRepository // Required
	Thresholds  model.Thresholds   // Classifies average durations
	AllowedTags []string           // Optional: defaults to model.DefaultTags
	Logger      *slog.Logger       // Optional
}

// JobService is the read and tagging side of jobs.
type JobService struct {
	repo        core.JobRepository
	thresholds  model.Thresholds
	allowedTags []string
	logger      *slog.Logger
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	allowed := opts.AllowedTags
	if len(allowed) == 0 {
		allowed = model.DefaultTags
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:        opts.Repo,
		thresholds:  opts.Thresholds,
		allowedTags: allowed,
		logger:      logger.With("component", "job_service"),
	}, nil
}

// List returns jobs with their failure rate and performance status.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) ([]*model.JobWithPerformance, error) {
	if opts.SortBy != "" && !slices.Contains(model.JobSortFields, opts.SortBy) {
		return nil, apperrors.ValidationField("sort",
			fmt.Sprintf("must be one of: %s", strings.Join(model.JobSortFields, ", ")))
	}
	if dir := strings.ToLower(opts.SortOrder); dir != "" && dir != "asc" && dir != "desc" {
		return nil, apperrors.ValidationField("dir", "must be one of: asc, desc")
	}

	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*model.JobWithPerformance, len(jobs))
	for i, j := range jobs {
		out[i] = &model.JobWithPerformance{
			Job:         *j,
			FailureRate: j.FailureRate(),
			Performance: s.thresholds.Classify(j.AvgDuration),
		}
	}
	return out, nil
}

// SetTags replaces a job's tags. Tags outside the allowlist are rejected.
func (s *JobService) SetTags(ctx context.Context, id int64, raw []string) (*model.Job, error) {
	if id <= 0 {
		return nil, apperrors.ValidationField("id", "must be a positive integer")
	}
	tags, err := model.NewTags(raw, s.allowedTags)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid tags")
	}
	job, err := s.repo.SetTags(ctx, id, tags)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "job tags updated", "job_id", id, "tags", tags.Strings())
	return job, nil
}

// AllowedTags returns the tag allowlist.
func (s *JobService) AllowedTags() []string {
	return slices.Clone(s.allowedTags)
}
