package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/pulse/internal/core"
	"github.com/target/pulse/internal/domain/model"
	apperrors "github.com/target/pulse/internal/errors"
)

const (
	cardRangeDays  = 14
	cardWindowDays = 7

	cardCacheKeyPrefix = "cards"
	sparkLabelLayout   = "Jan 2"
)

// CardRequest selects the cards to render.
type CardRequest struct {
	Type model.SummarizableType
	// EntityID scopes the cards to one job or route.
	EntityID *int64
}

func (r CardRequest) cacheKey(day time.Time) string {
	entity := "all"
	if r.EntityID != nil {
		entity = strconv.FormatInt(*r.EntityID, 10)
	}
	return fmt.Sprintf("%s:%s:%s:%s", cardCacheKeyPrefix, r.Type, entity, day.Format(time.DateOnly))
}

// CardServiceOptions groups dependencies for CardService.
type CardServiceOptions struct {
	Summaries    core.SummaryRepository // Required
	Jobs         core.JobRepository     // Required
	Cache        *CardCache             // Optional
	TimeProvider core.TimeProvider      // Optional: defaults to the system clock
	Logger       *slog.Logger           // Optional
}

// CardService renders the dashboard metric cards from day summaries.
//
// Windows: previous is [midnight(now-14d), midnight(now-7d)), current is [midnight(now-7d), now].
type CardService struct {
	summaries core.SummaryRepository
	jobs      core.JobRepository
	cache     *CardCache
	clock     core.TimeProvider
	logger    *slog.Logger
}

// NewCardService constructs a CardService.
func NewCardService(opts CardServiceOptions) (*CardService, error) {
	if opts.Summaries == nil {
		return nil, errors.New("SummaryRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = core.SystemTime{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CardService{
		summaries: opts.Summaries,
		jobs:      opts.Jobs,
		cache:     opts.Cache,
		clock:     clock,
		logger:    logger.With("component", "card_service"),
	}, nil
}

// cardWindows holds the window boundaries for one render.
type cardWindows struct {
	now          time.Time
	rangeStart   time.Time
	currentStart time.Time
	// end is the exclusive upper bound on day summary starts: midnight after now.
	end  time.Time
	days []time.Time
}

func windowsAt(now time.Time) cardWindows {
	now = now.UTC()
	today := midnightUTC(now)
	w := cardWindows{
		now:          now,
		rangeStart:   midnightUTC(now.AddDate(0, 0, -cardRangeDays)),
		currentStart: midnightUTC(now.AddDate(0, 0, -cardWindowDays)),
		end:          today.AddDate(0, 0, 1),
	}
	for d := w.rangeStart; !d.After(today); d = d.AddDate(0, 0, 1) {
		w.days = append(w.days, d)
	}
	return w
}

func (w cardWindows) inCurrent(t time.Time) bool { return !t.Before(w.currentStart) }

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Cards renders average duration, failure rate, total runs and, for unscoped job cards, total jobs.
func (s *CardService) Cards(ctx context.Context, req CardRequest) ([]model.MetricCard, error) {
	if !req.Type.Valid() {
		return nil, apperrors.ValidationField("type", fmt.Sprintf("invalid summarizable type %q", req.Type))
	}
	w := windowsAt(s.clock.Now())
	key := req.cacheKey(w.now)

	if cards, ok := s.cache.get(ctx, key); ok {
		return cards, nil
	}

	sums, err := s.summaries.List(ctx, model.SummaryFilter{
		Type:       req.Type,
		EntityID:   req.EntityID,
		PeriodType: model.PeriodDay,
		From:       w.rangeStart,
		To:         w.end,
	})
	if err != nil {
		return nil, fmt.Errorf("load day summaries: %w", err)
	}

	days := foldDays(w, sums)
	cards := []model.MetricCard{
		averageDurationCard(w, days),
		failureRateCard(w, days),
		totalRunsCard(w, days, req.Type),
	}
	if req.Type == model.SummarizableJob && req.EntityID == nil {
		card, err := s.totalJobsCard(ctx, w)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	s.cache.set(ctx, key, cards)
	return cards, nil
}

// dayTotals folds every day summary that starts on one UTC day.
type dayTotals struct {
	count    int64
	errors   int64
	weighted float64
}

func (d *dayTotals) add(o dayTotals) {
	d.count += o.count
	d.errors += o.errors
	d.weighted += o.weighted
}

type foldedDays struct {
	byDay             map[time.Time]dayTotals
	total, cur, prior dayTotals
}

func foldDays(w cardWindows, sums []*model.Summary) foldedDays {
	out := foldedDays{byDay: make(map[time.Time]dayTotals, len(w.days))}
	for _, s := range sums {
		day := midnightUTC(s.PeriodStart)
		if day.Before(w.rangeStart) || day.After(w.now) {
			continue
		}
		t := dayTotals{count: s.Count, errors: s.ErrorCount, weighted: s.AvgDuration * float64(s.Count)}
		acc := out.byDay[day]
		acc.add(t)
		out.byDay[day] = acc
		out.total.add(t)
		if w.inCurrent(day) {
			out.cur.add(t)
		} else {
			out.prior.add(t)
		}
	}
	return out
}

func weightedAverage(t dayTotals) float64 {
	if t.count == 0 {
		return 0
	}
	return model.RoundTo(t.weighted/float64(t.count), 1)
}

func failureRate(t dayTotals) float64 {
	if t.count == 0 {
		return 0
	}
	return model.RoundTo(float64(t.errors)/float64(t.count)*100, 1)
}

func sparkline(w cardWindows, value func(day time.Time) float64) []model.SparkPoint {
	out := make([]model.SparkPoint, 0, len(w.days))
	for _, d := range w.days {
		out = append(out, model.SparkPoint{Date: d, Label: d.Format(sparkLabelLayout), Value: value(d)})
	}
	return out
}

func averageDurationCard(w cardWindows, f foldedDays) model.MetricCard {
	avg := weightedAverage(f.total)
	return model.MetricCard{
		Kind:    model.CardAverageDuration,
		Title:   "Average Duration",
		Summary: strconv.FormatFloat(avg, 'f', 0, 64) + " ms",
		Value:   avg,
		Unit:    "ms",
		Trend:   model.ComputeTrend(weightedAverage(f.cur), weightedAverage(f.prior)),
		Sparkline: sparkline(w, func(d time.Time) float64 {
			return weightedAverage(f.byDay[d])
		}),
	}
}

func failureRateCard(w cardWindows, f foldedDays) model.MetricCard {
	rate := failureRate(f.total)
	return model.MetricCard{
		Kind:    model.CardFailureRate,
		Title:   "Failure Rate",
		Summary: strconv.FormatFloat(rate, 'f', 1, 64) + "%",
		Value:   rate,
		Unit:    "%",
		Trend:   model.ComputeTrend(failureRate(f.cur), failureRate(f.prior)),
		Sparkline: sparkline(w, func(d time.Time) float64 {
			return failureRate(f.byDay[d])
		}),
	}
}

func totalRunsCard(w cardWindows, f foldedDays, typ model.SummarizableType) model.MetricCard {
	title, noun := "Job Runs", "runs"
	if typ == model.SummarizableRoute {
		title, noun = "Requests", "requests"
	}
	return model.MetricCard{
		Kind:    model.CardTotalRuns,
		Title:   title,
		Summary: formatDelimited(f.total.count) + " " + noun,
		Value:   float64(f.total.count),
		Trend:   model.ComputeTrend(float64(f.cur.count), float64(f.prior.count)),
		Sparkline: sparkline(w, func(d time.Time) float64 {
			return float64(f.byDay[d].count)
		}),
	}
}

// totalJobsCard counts every known job and compares jobs first seen in each window.
func (s *CardService) totalJobsCard(ctx context.Context, w cardWindows) (model.MetricCard, error) {
	total, err := s.jobs.CountCreated(ctx, time.Unix(0, 0), w.end)
	if err != nil {
		return model.MetricCard{}, fmt.Errorf("count jobs: %w", err)
	}

	byDay, err := s.jobs.CountCreatedByDay(ctx, w.rangeStart, w.end)
	if err != nil {
		return model.MetricCard{}, fmt.Errorf("count jobs by day: %w", err)
	}

	perDay := make(map[time.Time]float64, len(w.days))
	var cur, prior int64
	for _, d := range w.days {
		n := byDay[d]
		perDay[d] = float64(n)
		if w.inCurrent(d) {
			cur += n
		} else {
			prior += n
		}
	}

	return model.MetricCard{
		Kind:      model.CardTotalJobs,
		Title:     "Total Jobs",
		Summary:   formatDelimited(total) + " jobs",
		Value:     float64(total),
		Trend:     model.ComputeTrend(float64(cur), float64(prior)),
		Sparkline: sparkline(w, func(d time.Time) float64 { return perDay[d] }),
	}, nil
}

// formatDelimited renders n with comma thousands separators.
func formatDelimited(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}

// CardCache keeps rendered cards in the shared cache. A nil *CardCache is a no-op.
type CardCache struct {
	repo   core.CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewCardCache returns nil when repo is nil or ttl is not positive, which disables caching.
func NewCardCache(repo core.CacheRepository, ttl time.Duration, logger *slog.Logger) *CardCache {
	if repo == nil || ttl <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CardCache{repo: repo, ttl: ttl, logger: logger.With("component", "card_cache")}
}

func (c *CardCache) get(ctx context.Context, key string) ([]model.MetricCard, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.repo.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "card cache read failed", "key", key, "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var cards []model.MetricCard
	if err := json.Unmarshal(raw, &cards); err != nil {
		c.logger.WarnContext(ctx, "card cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return cards, true
}

func (c *CardCache) set(ctx context.Context, key string, cards []model.MetricCard) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(cards)
	if err != nil {
		c.logger.WarnContext(ctx, "card cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.repo.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "card cache write failed", "key", key, "error", err)
	}
}
