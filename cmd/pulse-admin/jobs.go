package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/pulse/internal/domain/model"
)

type jobsOptions struct {
	List model.JobListOptions
}

func parseJobsFlags(args []string) (jobsOptions, error) {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	var queue, tag string
	opts := jobsOptions{}
	fs.StringVar(&queue, "queue", "", "Only list jobs on this queue")
	fs.StringVar(&tag, "tag", "", "Only list jobs carrying this tag")
	fs.StringVar(&opts.List.SortBy, "sort", "name", "Sort field: "+strings.Join(model.JobSortFields, ", "))
	fs.StringVar(&opts.List.SortOrder, "dir", "asc", "Sort direction: asc or desc")
	fs.IntVar(&opts.List.Limit, "limit", 50, "Maximum number of jobs")
	fs.IntVar(&opts.List.Offset, "offset", 0, "Number of jobs to skip")
	if err := fs.Parse(args); err != nil {
		return jobsOptions{}, err
	}
	if q := strings.TrimSpace(queue); q != "" {
		opts.List.Queue = &q
	}
	if t := strings.TrimSpace(tag); t != "" {
		opts.List.Tag = &t
	}
	if opts.List.Limit <= 0 || opts.List.Offset < 0 {
		return jobsOptions{}, errors.New("--limit must be positive and --offset non-negative")
	}
	return opts, nil
}

func runJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobsFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, infraOptions{WantDB: true, Timeout: time.Minute}, func(ctx context.Context, in *infra) error {
		svcs, svcErr := in.services(cmdCtx)
		if svcErr != nil {
			return svcErr
		}
		jobs, listErr := svcs.Jobs.List(ctx, opts.List)
		if listErr != nil {
			return listErr
		}
		return writeJobs(cmdCtx.Out, jobs)
	})
}

func writeJobs(w io.Writer, jobs []*model.JobWithPerformance) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tNAME\tQUEUE\tRUNS\tFAILURE %%\tAVG MS\tSTATUS\tTAGS\n"); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := writef(tw, "%d\t%s\t%s\t%d\t%.2f\t%.2f\t%s\t%s\n",
			j.ID, j.Name, j.QueueName, j.ExecutionCount, j.FailureRate, j.AvgDuration, j.Performance,
			strings.Join(j.Tags, ","),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type tagJobOptions struct {
	ID   int64
	Tags []string
}

func parseTagJobFlags(args []string) (tagJobOptions, error) {
	fs := flag.NewFlagSet("tag-job", flag.ContinueOnError)
	var tags string
	opts := tagJobOptions{}
	fs.Int64Var(&opts.ID, "id", 0, "Job id (required)")
	fs.StringVar(&tags, "tags", "", "Comma separated tags; empty clears them")
	if err := fs.Parse(args); err != nil {
		return tagJobOptions{}, err
	}
	if opts.ID <= 0 {
		return tagJobOptions{}, errors.New("--id is required")
	}
	opts.Tags = []string{}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			opts.Tags = append(opts.Tags, t)
		}
	}
	return opts, nil
}

func runTagJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseTagJobFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, infraOptions{WantDB: true, Timeout: time.Minute}, func(ctx context.Context, in *infra) error {
		svcs, svcErr := in.services(cmdCtx)
		if svcErr != nil {
			return svcErr
		}
		job, tagErr := svcs.Jobs.SetTags(ctx, opts.ID, opts.Tags)
		if tagErr != nil {
			return fmt.Errorf("tag job %d: %w", opts.ID, tagErr)
		}
		return writef(cmdCtx.Out, "job %d (%s) tags: %s\n", job.ID, job.Name, strings.Join(job.Tags, ","))
	})
}
