package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/pulse/internal/domain/model"
	"github.com/target/pulse/internal/service"
)

const defaultBackfillTimeout = time.Hour

type backfillOptions struct {
	Start   time.Time
	End     time.Time
	Periods []model.PeriodType
	Timeout time.Duration
}

// parseBackfillFlags accepts RFC 3339 timestamps or YYYY-MM-DD dates. End defaults to now.
func parseBackfillFlags(args []string, now time.Time) (backfillOptions, error) {
	fs := flag.NewFlagSet("backfill-summaries", flag.ContinueOnError)
	var startRaw, endRaw, periodsRaw string
	opts := backfillOptions{}
	fs.StringVar(&startRaw, "start", "", "Window start (RFC 3339 or YYYY-MM-DD, required)")
	fs.StringVar(&endRaw, "end", "", "Window end (RFC 3339 or YYYY-MM-DD, default now)")
	fs.StringVar(&periodsRaw, "periods", "", "Comma separated period types (default all)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultBackfillTimeout, "Maximum duration of the backfill")
	if err := fs.Parse(args); err != nil {
		return backfillOptions{}, err
	}

	if strings.TrimSpace(startRaw) == "" {
		return backfillOptions{}, errors.New("--start is required")
	}
	start, err := parseTimeFlag(startRaw)
	if err != nil {
		return backfillOptions{}, fmt.Errorf("--start: %w", err)
	}
	opts.Start = start

	opts.End = now.UTC()
	if strings.TrimSpace(endRaw) != "" {
		end, endErr := parseTimeFlag(endRaw)
		if endErr != nil {
			return backfillOptions{}, fmt.Errorf("--end: %w", endErr)
		}
		opts.End = end
	}
	if !opts.Start.Before(opts.End) {
		return backfillOptions{}, errors.New("--start must be before --end")
	}

	periods, err := model.ParsePeriodTypes(periodsRaw)
	if err != nil {
		return backfillOptions{}, fmt.Errorf("--periods: %w", err)
	}
	opts.Periods = periods

	if opts.Timeout <= 0 {
		return backfillOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseTimeFlag(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	return t, nil
}

func runBackfillSummaries(cmdCtx *commandContext, args []string) error {
	opts, err := parseBackfillFlags(args, time.Now())
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, infraOptions{WantDB: true, Timeout: opts.Timeout}, func(ctx context.Context, in *infra) error {
		svcs, svcErr := in.services(cmdCtx)
		if svcErr != nil {
			return svcErr
		}
		res, runErr := svcs.Summarizer.Summarizer().Backfill(ctx, opts.Start, opts.End, opts.Periods)
		if runErr != nil {
			return fmt.Errorf("backfill summaries: %w", runErr)
		}
		return writef(cmdCtx.Out, "buckets=%d written=%d failed=%d\n", res.Buckets, res.Written, res.Failed)
	})
}

type cardsOptions struct {
	Request service.CardRequest
	JSON    bool
}

func parseCardsFlags(args []string) (cardsOptions, error) {
	fs := flag.NewFlagSet("cards", flag.ContinueOnError)
	var typ string
	var id int64
	opts := cardsOptions{}
	fs.StringVar(&typ, "type", string(model.SummarizableJob), "Card type: job or route")
	fs.Int64Var(&id, "id", 0, "Scope the cards to one job or route id")
	fs.BoolVar(&opts.JSON, "json", false, "Print the cards as JSON")
	if err := fs.Parse(args); err != nil {
		return cardsOptions{}, err
	}

	opts.Request.Type = model.SummarizableType(strings.ToLower(strings.TrimSpace(typ)))
	if !opts.Request.Type.Valid() {
		return cardsOptions{}, fmt.Errorf("--type must be %q or %q", model.SummarizableJob, model.SummarizableRoute)
	}
	if id < 0 {
		return cardsOptions{}, errors.New("--id must be positive")
	}
	if id > 0 {
		opts.Request.EntityID = &id
	}
	return opts, nil
}

func runCards(cmdCtx *commandContext, args []string) error {
	opts, err := parseCardsFlags(args)
	if err != nil {
		return err
	}
	wantRedis := hasRedisConfig(&cmdCtx.Config.Redis)
	return withInfra(cmdCtx, infraOptions{WantDB: true, WantRedis: wantRedis, Timeout: time.Minute}, func(ctx context.Context, in *infra) error {
		svcs, svcErr := in.services(cmdCtx)
		if svcErr != nil {
			return svcErr
		}
		cards, cardsErr := svcs.Cards.Cards(ctx, opts.Request)
		if cardsErr != nil {
			return cardsErr
		}
		if opts.JSON {
			enc := json.NewEncoder(cmdCtx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(cards)
		}
		return writeCards(cmdCtx.Out, cards)
	})
}

func writeCards(w io.Writer, cards []model.MetricCard) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "CARD\tVALUE\tTREND\tSUMMARY\n"); err != nil {
		return err
	}
	for _, c := range cards {
		value := fmt.Sprintf("%.2f", c.Value)
		if c.Unit != "" {
			value += " " + c.Unit
		}
		trend := fmt.Sprintf("%s %s", c.Trend.Direction, c.Trend.Amount)
		if err := writef(tw, "%s\t%s\t%s\t%s\n", c.Title, value, trend, c.Summary); err != nil {
			return err
		}
	}
	return tw.Flush()
}
