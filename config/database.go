package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"pulse"`
	Password string `env:"PASSWORD" envDefault:"pulse"`
	Name     string `env:"NAME"     envDefault:"pulse"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	// RunMigrationsOnStart applies embedded migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	// InstrumentQueries wraps the driver so host SQL becomes sql spans.
	InstrumentQueries bool `env:"INSTRUMENT_QUERIES" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig controls read-side caching in Redis.
type CacheConfig struct {
	// CardTTL is how long rendered metric cards are cached. Zero disables the cache.
	CardTTL time.Duration `env:"CACHE_CARD_TTL" envDefault:"1m"`
}
