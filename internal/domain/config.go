package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	CMS       CMSConfig       `mapstructure:"cms"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// Per-client token bucket; zero disables rate limiting.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig represents snapshot store configuration. Driver selects
// the backend: "sqlite" for local runs, "postgres" for server deployments.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SQLiteConfig represents the embedded store used by the CLI and local runs
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// CMSConfig represents the public CMS dataset endpoints and client behavior
type CMSConfig struct {
	ServiceDatasetURL  string        `mapstructure:"service_dataset_url"`
	ProviderDatasetURL string        `mapstructure:"provider_dataset_url"`
	QualityDatasetURL  string        `mapstructure:"quality_dataset_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RateLimit          float64       `mapstructure:"rate_limit"`
	RetryCount         int           `mapstructure:"retry_count"`
}

// CacheConfig represents the in-process snapshot cache
type CacheConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	SnapshotEntries int  `mapstructure:"snapshot_entries"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalyticsConfig carries the tunables of the analytics engine. It is
// immutable at request time and passed explicitly into each component so
// every computation is reproducible in isolation.
type AnalyticsConfig struct {
	// Minimum peer group size; smaller groups are flagged insufficient
	// and classified low-confidence.
	MinPeerGroupSize int `mapstructure:"min_peer_group_size"`
	// MEDIAN (default) or MEAN as the peer reference statistic.
	CentralTendency CentralTendency `mapstructure:"central_tendency"`
	// Minimum historical observations required to fit a forecast.
	MinObservations int `mapstructure:"min_observations"`
	// Upper bound on the requested forecast horizon.
	MaxHorizon int `mapstructure:"max_horizon"`
	// Interval half-width multiplier; 1.96 approximates a 95% interval.
	ConfidenceZ float64 `mapstructure:"confidence_z"`
	// Floor on the residual standard error, as a fraction of the mean
	// absolute historical value, so perfectly linear series still get
	// non-degenerate intervals.
	ResidualFloorPct float64 `mapstructure:"residual_floor_pct"`
	// Upper bounds of the volume tiers, ascending. Fixed boundaries keep
	// volume-adjusted classification deterministic across runs.
	VolumeTierBounds []int64 `mapstructure:"volume_tier_bounds"`
}
