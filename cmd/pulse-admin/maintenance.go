package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/pulse/internal/bootstrap"
	"github.com/target/pulse/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultRetentionTimeout = 30 * time.Minute
	cardCacheScanCount      = 500
)

type migrateOptions struct {
	Timeout time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, infraOptions{WantDB: true, Timeout: opts.Timeout}, func(ctx context.Context, in *infra) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, in.DB, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		cmdCtx.Logger.Info("database migrations completed")
		return nil
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

type retentionOptions struct {
	Timeout     time.Duration
	Yes         bool
	AllowRemote bool
}

func parseRetentionFlags(args []string) (retentionOptions, error) {
	fs := flag.NewFlagSet("retention", flag.ContinueOnError)
	opts := retentionOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultRetentionTimeout, "Maximum duration of the pass")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Permit running against a non-local database host")
	if err := fs.Parse(args); err != nil {
		return retentionOptions{}, err
	}
	if opts.Timeout <= 0 {
		return retentionOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runRetention(cmdCtx *commandContext, args []string) error {
	opts, err := parseRetentionFlags(args)
	if err != nil {
		return err
	}
	remote, err := cmdCtx.guardRemoteHost(opts.AllowRemote, "delete expired telemetry rows")
	if err != nil {
		return err
	}
	if !remote {
		if confirmErr := cmdCtx.confirmAction(opts.Yes, "delete expired telemetry rows"); confirmErr != nil {
			return confirmErr
		}
	}

	return withInfra(cmdCtx, infraOptions{WantDB: true, Timeout: opts.Timeout}, func(ctx context.Context, in *infra) error {
		svcs, svcErr := in.services(cmdCtx)
		if svcErr != nil {
			return svcErr
		}
		res, runErr := svcs.Retention.RunOnce(ctx)
		if writeErr := writeRetentionResult(cmdCtx.Out, res); writeErr != nil {
			return writeErr
		}
		return runErr
	})
}

func writeRetentionResult(w io.Writer, res service.RetentionResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "STEP\tDELETED\tERROR\n"); err != nil {
		return err
	}
	for _, step := range res.Steps {
		msg := "-"
		if step.Error != "" {
			msg = step.Error
		}
		if err := writef(tw, "%s\t%d\t%s\n", step.Step, step.Deleted, msg); err != nil {
			return err
		}
	}
	if err := writef(tw, "total\t%d\t\n", res.Deleted); err != nil {
		return err
	}
	return tw.Flush()
}

type clearCacheOptions struct {
	Timeout time.Duration
}

func runClearCardCache(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-card-cache", flag.ContinueOnError)
	opts := clearCacheOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", time.Minute, "Maximum duration of the scan")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withInfra(cmdCtx, infraOptions{WantRedis: true, Timeout: opts.Timeout}, func(ctx context.Context, in *infra) error {
		deleted, err := clearCardCache(ctx, in.Redis)
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "deleted %d cached card sets\n", deleted)
	})
}

// clearCardCache deletes every cached card set. Cluster clients are scanned per master.
func clearCardCache(ctx context.Context, client redis.UniversalClient) (int64, error) {
	pattern := bootstrap.CacheKeyPrefix + "cards:*"
	if cluster, ok := client.(*redis.ClusterClient); ok {
		var total atomic.Int64
		err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			n, err := scanAndDelete(ctx, node, pattern)
			total.Add(n)
			return err
		})
		return total.Load(), err
	}
	return scanAndDelete(ctx, client, pattern)
}

func scanAndDelete(ctx context.Context, client redis.Cmdable, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, cardCacheScanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		for _, key := range keys {
			// Keys may hash to different slots, so delete one at a time.
			n, delErr := client.Del(ctx, key).Result()
			if delErr != nil {
				return deleted, fmt.Errorf("delete %s: %w", key, delErr)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (cmdCtx *commandContext) guardRemoteHost(allow bool, action string) (bool, error) {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			host,
		)
	}
	return true, cmdCtx.requireRemoteHostConfirmation(action, host)
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" || h == "localhost" || strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func (cmdCtx *commandContext) requireRemoteHostConfirmation(action, host string) error {
	if err := writef(
		cmdCtx.Out,
		"\nWARNING: database host %q does not look like a local address.\nThis operation will %s.\n"+
			"Type %q to continue or press enter to abort: ",
		host, action, host,
	); err != nil {
		return fmt.Errorf("print remote host prompt: %w", err)
	}
	resp, err := bufio.NewReader(cmdCtx.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(resp) != host {
		return errors.New("aborted by user")
	}
	return nil
}
