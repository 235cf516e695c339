package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cms-analytics-server/internal/domain"
)

// Manager loads and validates application configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/cms-analytics-server/")

	viper.SetEnvPrefix("CMS_ANALYTICS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars suffice.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.rate_limit_per_second", 10.0)
	viper.SetDefault("server.rate_limit_burst", 20)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "cms_analytics")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "migrations")

	// SQLite defaults (CLI / local runs)
	viper.SetDefault("sqlite.path", "data/cms_analytics.db")

	// CMS dataset endpoints: Medicare Physician & Other Practitioners
	// (service- and provider-level) plus hospital quality scores.
	viper.SetDefault("cms.service_dataset_url", "https://data.cms.gov/sites/default/files/2024-05/1570d9f0-59ef-416f-bb37-e78a7afe6f88/MUP_PHY_R24_P05_V10_D22_Prov_Svc.csv")
	viper.SetDefault("cms.provider_dataset_url", "https://data.cms.gov/sites/default/files/2024-06/5aed74f7-d04e-48b4-93b3-d396a2e59c87/MUP_PHY_R24_P07_V10_D22_Prov.csv")
	viper.SetDefault("cms.quality_dataset_url", "")
	viper.SetDefault("cms.timeout", "60s")
	viper.SetDefault("cms.rate_limit", 2.0)
	viper.SetDefault("cms.retry_count", 3)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.snapshot_entries", 8)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// Analytics defaults; see domain.AnalyticsConfig for semantics.
	viper.SetDefault("analytics.min_peer_group_size", 5)
	viper.SetDefault("analytics.central_tendency", "MEDIAN")
	viper.SetDefault("analytics.min_observations", 3)
	viper.SetDefault("analytics.max_horizon", 12)
	viper.SetDefault("analytics.confidence_z", 1.96)
	viper.SetDefault("analytics.residual_floor_pct", 0.01)
	viper.SetDefault("analytics.volume_tier_bounds", []int64{100, 1000, 10000})
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetAnalyticsConfig returns the analytics engine tunables
func (m *Manager) GetAnalyticsConfig() *domain.AnalyticsConfig {
	return &m.config.Analytics
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", config.Database.Driver)
	}

	if config.Logging.Level != "" {
		switch strings.ToLower(config.Logging.Level) {
		case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
		default:
			return fmt.Errorf("invalid logging level: %s", config.Logging.Level)
		}
	}

	a := config.Analytics
	if a.MinPeerGroupSize < 1 {
		return fmt.Errorf("analytics.min_peer_group_size must be at least 1, got %d", a.MinPeerGroupSize)
	}
	if !a.CentralTendency.IsValid() {
		return fmt.Errorf("invalid analytics.central_tendency: %s", a.CentralTendency)
	}
	if a.MinObservations < 2 {
		return fmt.Errorf("analytics.min_observations must be at least 2, got %d", a.MinObservations)
	}
	if a.MaxHorizon < 1 {
		return fmt.Errorf("analytics.max_horizon must be at least 1, got %d", a.MaxHorizon)
	}
	if a.ConfidenceZ <= 0 {
		return fmt.Errorf("analytics.confidence_z must be positive, got %f", a.ConfidenceZ)
	}
	if a.ResidualFloorPct < 0 {
		return fmt.Errorf("analytics.residual_floor_pct must be non-negative, got %f", a.ResidualFloorPct)
	}
	for i := 1; i < len(a.VolumeTierBounds); i++ {
		if a.VolumeTierBounds[i] <= a.VolumeTierBounds[i-1] {
			return fmt.Errorf("analytics.volume_tier_bounds must be strictly ascending")
		}
	}

	return nil
}
