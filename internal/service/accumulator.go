package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
)

// Accumulator folds terminal units of work into their parent's running totals.
type Accumulator struct {
	repo core.AggregateRepository
}

// NewAccumulator constructs an Accumulator.
func NewAccumulator(repo core.AggregateRepository) (*Accumulator, error) {
	if repo == nil {
		return nil, errors.New("AggregateRepository is required")
	}
	return &Accumulator{repo: repo}, nil
}

// ApplyJobRun updates the run's job. Runs without a duration are skipped.
func (a *Accumulator) ApplyJobRun(ctx context.Context, run *model.JobRun) error {
	if run == nil || run.Duration == nil {
		return nil
	}
	if err := a.repo.Accumulate(ctx, core.AccumulateParams{
		Kind:     core.ParentJob,
		ParentID: run.JobID,
		Duration: *run.Duration,
		Failure:  run.Status.IsFailure(),
		Retried:  run.Status == model.RunStatusRetried,
	}); err != nil {
		return fmt.Errorf("accumulate job %d: %w", run.JobID, err)
	}
	return nil
}

// ApplyRequest updates the request's route. Requests without a duration are skipped.
func (a *Accumulator) ApplyRequest(ctx context.Context, req *model.Request) error {
	if req == nil || req.Duration == nil {
		return nil
	}
	if err := a.repo.Accumulate(ctx, core.AccumulateParams{
		Kind:     core.ParentRoute,
		ParentID: req.RouteID,
		Duration: *req.Duration,
		Failure:  req.Status.IsFailure(),
	}); err != nil {
		return fmt.Errorf("accumulate route %d: %w", req.RouteID, err)
	}
	return nil
}
