package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/bucket"
	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/domain/stats"
	apperrors "github.com/target/pulse/internal/errors"
	"github.com/target/pulse/internal/observability/metrics"
	"github.com/target/pulse/internal/observability/statsd"
)

// Summary pass triggers, used as metric tags.
const (
	TriggerCron  = "cron"
	TriggerAdmin = "admin"
	TriggerHTTP  = "http"
)

const defaultSummaryConcurrency = 4

// summarizableTypes lists the entity kinds every pass covers.
var summarizableTypes = []model.SummarizableType{model.SummarizableJob, model.SummarizableRoute}

// SummarizerOptions groups dependencies for Summarizer.
type SummarizerOptions struct {
	Repo        core.SummaryRepository // Required
	Calendar    bucket.Calendar        // Optional: zero value starts weeks on Sunday
	Concurrency int                    // Optional: bounds parallel upserts, defaults to 4
	Logger      *slog.Logger           // Optional
	Metrics     statsd.Sink            // Optional
}

// Summarizer rolls terminal units of work up into per-bucket summaries.
type Summarizer struct {
	repo        core.SummaryRepository
	calendar    bucket.Calendar
	concurrency int
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewSummarizer constructs a Summarizer.
func NewSummarizer(opts SummarizerOptions) (*Summarizer, error) {
	if opts.Repo == nil {
		return nil, errors.New("SummaryRepository is required")
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultSummaryConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		repo:        opts.Repo,
		calendar:    opts.Calendar,
		concurrency: concurrency,
		logger:      logger.With("component", "summarizer"),
		metrics:     opts.Metrics,
	}, nil
}

// BackfillResult reports what one pass wrote.
type BackfillResult struct {
	Buckets int `json:"buckets"`
	Written int `json:"written"`
	Failed  int `json:"failed"`
}

// SummarizeRequest describes one summary pass.
type SummarizeRequest struct {
	Start   time.Time
	End     time.Time
	Periods []model.PeriodType
	Trigger string
}

// Backfill summarizes [start, end) for each period type. The window is widened to whole
// buckets, so re-running over the same window rewrites the same rows.
func (s *Summarizer) Backfill(ctx context.Context, start, end time.Time, periods []model.PeriodType) (BackfillResult, error) {
	return s.Summarize(ctx, SummarizeRequest{Start: start, End: end, Periods: periods, Trigger: TriggerAdmin})
}

// Summarize runs one pass. Per-bucket upsert failures are logged and counted in the result;
// only load errors and cancellation abort the pass.
func (s *Summarizer) Summarize(ctx context.Context, req SummarizeRequest) (BackfillResult, error) {
	began := time.Now()
	res, err := s.summarize(ctx, req)
	metrics.EmitSummaryPass(s.metrics, metrics.SummaryPassMetric{
		Trigger:  req.Trigger,
		Buckets:  res.Buckets,
		Written:  res.Written,
		Failed:   res.Failed,
		Duration: time.Since(began),
		Err:      err,
	})
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "summary pass completed",
		"trigger", req.Trigger,
		"start", req.Start.UTC(),
		"end", req.End.UTC(),
		"buckets", res.Buckets,
		"written", res.Written,
		"failed", res.Failed,
	)
	return res, nil
}

func (s *Summarizer) summarize(ctx context.Context, req SummarizeRequest) (BackfillResult, error) {
	if !req.Start.Before(req.End) {
		return BackfillResult{}, apperrors.Validationf("invalid window: start %s is not before end %s",
			req.Start.UTC().Format(time.RFC3339), req.End.UTC().Format(time.RFC3339))
	}
	if len(req.Periods) == 0 {
		return BackfillResult{}, apperrors.ValidationField("periods", "at least one period type is required")
	}
	for _, p := range req.Periods {
		if !p.Valid() {
			return BackfillResult{}, apperrors.ValidationField("periods", fmt.Sprintf("invalid period type %q", p))
		}
	}

	var summaries []*model.Summary
	for _, p := range req.Periods {
		from, to := s.calendar.Widen(p, req.Start, req.End)
		for _, typ := range summarizableTypes {
			runs, err := s.repo.CompletedRuns(ctx, typ, from, to)
			if err != nil {
				return BackfillResult{}, fmt.Errorf("load %s runs for %s buckets: %w", typ, p, err)
			}
			summaries = append(summaries, s.buildSummaries(typ, p, runs)...)
		}
	}

	return s.upsertAll(ctx, summaries)
}

// upsertAll writes summaries in parallel. A failed bucket never aborts the others.
func (s *Summarizer) upsertAll(ctx context.Context, summaries []*model.Summary) (BackfillResult, error) {
	var written, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sum := range summaries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.repo.Upsert(gctx, sum); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				s.logger.ErrorContext(gctx, "summary upsert failed",
					"bucket", summaryKey(sum).String(),
					"error", err,
				)
				return nil
			}
			written.Add(1)
			return nil
		})
	}
	err := g.Wait()

	res := BackfillResult{Buckets: len(summaries), Written: int(written.Load()), Failed: int(failed.Load())}
	if err != nil {
		return res, fmt.Errorf("summary pass interrupted: %w", err)
	}
	return res, nil
}

type groupKey struct {
	entity int64
	start  time.Time
}

// buildSummaries groups runs by entity and bucket and computes one summary per group.
// Buckets without runs produce no summary.
func (s *Summarizer) buildSummaries(typ model.SummarizableType, p model.PeriodType, runs []model.CompletedRun) []*model.Summary {
	groups := make(map[groupKey][]model.CompletedRun)
	for _, r := range runs {
		k := groupKey{entity: r.EntityID, start: s.calendar.Truncate(p, r.OccurredAt)}
		groups[k] = append(groups[k], r)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entity != keys[j].entity {
			return keys[i].entity < keys[j].entity
		}
		return keys[i].start.Before(keys[j].start)
	})

	out := make([]*model.Summary, 0, len(keys))
	for _, k := range keys {
		out = append(out, BuildSummary(model.SummaryKey{
			Type: typ, EntityID: k.entity, PeriodType: p, PeriodStart: k.start,
		}, s.calendar.Next(p, k.start), groups[k]))
	}
	return out
}

// BuildSummary computes the statistics for one bucket of runs.
func BuildSummary(key model.SummaryKey, periodEnd time.Time, runs []model.CompletedRun) *model.Summary {
	durations := make([]float64, len(runs))
	sum := &model.Summary{
		SummarizableType: key.Type,
		SummarizableID:   key.EntityID,
		PeriodType:       key.PeriodType,
		PeriodStart:      key.PeriodStart.UTC(),
		PeriodEnd:        periodEnd.UTC(),
	}
	for i, r := range runs {
		durations[i] = r.Duration
		switch {
		case r.Status == model.RunStatusSuccess:
			sum.SuccessCount++
		case r.Status.IsFailure():
			sum.ErrorCount++
		}
		if key.Type == model.SummarizableRoute && r.HTTPStatus != nil {
			switch model.StatusClass(*r.HTTPStatus) {
			case 2:
				sum.Status2xx++
			case 3:
				sum.Status3xx++
			case 4:
				sum.Status4xx++
			case 5:
				sum.Status5xx++
			}
		}
	}

	d := stats.Compute(durations)
	sum.Count = d.Count
	sum.AvgDuration = model.RoundTo(d.Mean, 2)
	sum.MinDuration = d.Min
	sum.MaxDuration = d.Max
	sum.TotalDuration = model.RoundTo(d.Total, 2)
	sum.P50Duration = model.RoundTo(d.P50, 2)
	sum.P95Duration = model.RoundTo(d.P95, 2)
	sum.P99Duration = model.RoundTo(d.P99, 2)
	if d.Stddev != nil {
		sd := model.RoundTo(*d.Stddev, 2)
		sum.StddevDuration = &sd
	}
	return sum
}

func summaryKey(s *model.Summary) model.SummaryKey {
	return model.SummaryKey{
		Type:        s.SummarizableType,
		EntityID:    s.SummarizableID,
		PeriodType:  s.PeriodType,
		PeriodStart: s.PeriodStart,
	}
}
