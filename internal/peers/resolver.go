// Package peers partitions normalized provider records into peer groups,
// the populations a single provider's cost and quality are scored against.
package peers

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/domain"
)

// Resolver groups records by comparability key. Groups are computed per
// request; nothing is cached across calls.
type Resolver struct {
	logger *logrus.Logger
	cfg    domain.AnalyticsConfig
}

// NewResolver creates a resolver with the given immutable configuration.
func NewResolver(logger *logrus.Logger, cfg domain.AnalyticsConfig) *Resolver {
	return &Resolver{logger: logger, cfg: cfg}
}

// Resolve partitions records into peer groups keyed by procedure and region,
// optionally bucketed by volume tier. Groups smaller than the configured
// minimum are flagged Insufficient rather than silently scored.
//
// Group membership is deterministic: records within a group are ordered by
// provider ID, and group iteration order is the sorted key order.
func (r *Resolver) Resolve(records []domain.ProviderRecord, volumeAdjusted bool) []domain.PeerGroup {
	byKey := make(map[domain.PeerGroupKey][]domain.ProviderRecord)

	for _, rec := range records {
		key := domain.PeerGroupKey{
			ProcedureCode: rec.ProcedureCode,
			RegionCode:    rec.RegionCode,
		}
		if volumeAdjusted {
			key.VolumeTier = r.volumeTier(rec.Volume)
		}
		byKey[key] = append(byKey[key], rec)
	}

	keys := make([]domain.PeerGroupKey, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	groups := make([]domain.PeerGroup, 0, len(keys))
	for _, key := range keys {
		members := byKey[key]
		sort.Slice(members, func(i, j int) bool {
			return members[i].ProviderID < members[j].ProviderID
		})

		group := domain.PeerGroup{
			Key:          key,
			Records:      members,
			Insufficient: len(members) < r.cfg.MinPeerGroupSize,
		}
		if group.Insufficient {
			r.logger.WithFields(logrus.Fields{
				"key":  key.String(),
				"size": len(members),
				"min":  r.cfg.MinPeerGroupSize,
			}).Debug("Peer group below minimum size, flagged insufficient")
		}
		groups = append(groups, group)
	}

	r.logger.WithFields(logrus.Fields{
		"records":         len(records),
		"groups":          len(groups),
		"volume_adjusted": volumeAdjusted,
	}).Debug("Resolved peer groups")

	return groups
}

// volumeTier buckets a service volume into one of the fixed, configured
// tiers. Fixed boundaries keep volume-adjusted classification deterministic
// across runs.
func (r *Resolver) volumeTier(volume int64) string {
	bounds := r.cfg.VolumeTierBounds
	for i, bound := range bounds {
		if volume < bound {
			return fmt.Sprintf("T%d", i)
		}
	}
	return fmt.Sprintf("T%d", len(bounds))
}
