package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-analytics-server/internal/domain"
)

func TestNewManager_Defaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)

	a := cfg.Analytics
	assert.Equal(t, 5, a.MinPeerGroupSize)
	assert.Equal(t, domain.MEDIAN, a.CentralTendency)
	assert.Equal(t, 3, a.MinObservations)
	assert.Equal(t, 12, a.MaxHorizon)
	assert.InDelta(t, 1.96, a.ConfidenceZ, 1e-9)
	assert.Equal(t, []int64{100, 1000, 10000}, a.VolumeTierBounds)
}

func TestManager_Validate_Defaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)
	assert.NoError(t, manager.Validate())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *domain.Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(cfg *domain.Config) { cfg.Server.Port = 0 },
			wantErr: "port",
		},
		{
			name:    "unknown database driver",
			mutate:  func(cfg *domain.Config) { cfg.Database.Driver = "oracle" },
			wantErr: "driver",
		},
		{
			name:    "unknown logging level",
			mutate:  func(cfg *domain.Config) { cfg.Logging.Level = "verbose" },
			wantErr: "logging level",
		},
		{
			name:    "zero peer group size",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.MinPeerGroupSize = 0 },
			wantErr: "min_peer_group_size",
		},
		{
			name:    "unknown central tendency",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.CentralTendency = "MODE" },
			wantErr: "central_tendency",
		},
		{
			name:    "min observations below two",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.MinObservations = 1 },
			wantErr: "min_observations",
		},
		{
			name:    "zero max horizon",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.MaxHorizon = 0 },
			wantErr: "max_horizon",
		},
		{
			name:    "non-positive confidence z",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.ConfidenceZ = 0 },
			wantErr: "confidence_z",
		},
		{
			name:    "negative residual floor",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.ResidualFloorPct = -0.1 },
			wantErr: "residual_floor_pct",
		},
		{
			name:    "unsorted volume tiers",
			mutate:  func(cfg *domain.Config) { cfg.Analytics.VolumeTierBounds = []int64{1000, 100} },
			wantErr: "volume_tier_bounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewManager()
			require.NoError(t, err)

			tt.mutate(manager.GetConfig())

			err = manager.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Accessors(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	assert.Equal(t, &manager.GetConfig().Server, manager.GetServerConfig())
	assert.Equal(t, &manager.GetConfig().Database, manager.GetDatabaseConfig())
	assert.Equal(t, &manager.GetConfig().Analytics, manager.GetAnalyticsConfig())
}
