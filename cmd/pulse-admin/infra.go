package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/bootstrap"
	"github.com/target/pulse/internal/data"
)

var errRedisNotConfigured = errors.New("redis not configured")

// infra bundles the connections a command opened.
type infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
	Repos *data.Repos
}

func (i *infra) Close() error {
	var closeErr error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

type infraOptions struct {
	WantDB    bool
	WantRedis bool
	Timeout   time.Duration
}

// withInfra connects what opts asks for, runs f under a signal- and timeout-bound context,
// and closes the connections afterwards.
func withInfra(cmdCtx *commandContext, opts infraOptions, f func(context.Context, *infra) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	in := &infra{}
	defer func() {
		if err := in.Close(); err != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", err)
		}
	}()

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		in.DB = db
		in.Repos = data.NewRepos(db, data.RepoConfig{})
	}
	if opts.WantRedis {
		if !hasRedisConfig(&cmdCtx.Config.Redis) {
			return errRedisNotConfigured
		}
		client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cmdCtx.Config.Redis, Logger: cmdCtx.Logger})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		in.Redis = client
	}

	return f(ctx, in)
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

// services wires the application services on top of the open connections.
func (i *infra) services(cmdCtx *commandContext) (bootstrap.ServiceContainer, error) {
	if i.DB == nil {
		return bootstrap.ServiceContainer{}, errors.New("database connection is required")
	}
	cfg := cmdCtx.Config
	return bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          i.DB,
		RedisClient: i.Redis,
		Logger:      cmdCtx.Logger,
	})
}
