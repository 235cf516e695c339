// Package classify assigns providers to cost/quality quadrants relative to
// their peer group.
//
// Indices are expressed against the peer group's central tendency:
// index = value/reference - 1, so zero means "exactly at the reference".
// The median is the default reference because provider payment data is
// heavily right-skewed and a handful of outliers would drag a mean-based
// reference away from the typical peer.
package classify

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/domain"
)

// Classifier computes quadrant assignments. It is a pure function of its
// inputs and the immutable configuration; identical inputs always yield
// identical labels.
type Classifier struct {
	logger *logrus.Logger
	cfg    domain.AnalyticsConfig
}

// NewClassifier creates a classifier.
func NewClassifier(logger *logrus.Logger, cfg domain.AnalyticsConfig) *Classifier {
	return &Classifier{logger: logger, cfg: cfg}
}

// Classify scores one provider record against its resolved peer group.
//
// Tie-break rule: a provider exactly at the reference resolves to the
// favorable side — equal cost counts as low-cost, equal quality counts as
// high-quality. This keeps the function total; there is no undefined state
// at exact equality.
//
// If the group is flagged insufficient the result carries
// LowConfidence=true and no quadrant label. The classifier never guesses.
func (c *Classifier) Classify(rec domain.ProviderRecord, group domain.PeerGroup) domain.QuadrantResult {
	result := domain.QuadrantResult{
		ProviderID:    rec.ProviderID,
		ProviderName:  rec.ProviderName,
		PeerGroupSize: group.Size(),
	}

	if group.Insufficient {
		result.LowConfidence = true
		c.logger.WithFields(logrus.Fields{
			"provider_id": rec.ProviderID,
			"group":       group.Key.String(),
			"size":        group.Size(),
		}).Debug("Insufficient peer data, returning low-confidence result")
		return result
	}

	costRef := c.reference(group.Records, func(r domain.ProviderRecord) float64 { return float64(r.CostCents) })
	qualityRef := c.reference(group.Records, func(r domain.ProviderRecord) float64 { return r.QualityScore })

	result.CostIndex = index(float64(rec.CostCents), costRef)
	result.QualityIndex = index(rec.QualityScore, qualityRef)

	lowCost := result.CostIndex <= 0        // at-or-below reference is favorable
	highQuality := result.QualityIndex >= 0 // at-or-above reference is favorable

	switch {
	case highQuality && lowCost:
		result.Quadrant = domain.HIGH_VALUE
	case highQuality && !lowCost:
		result.Quadrant = domain.HIGH_COST_HIGH_QUALITY
	case !highQuality && lowCost:
		result.Quadrant = domain.LOW_COST_LOW_QUALITY
	default:
		result.Quadrant = domain.LOW_VALUE
	}

	return result
}

// index expresses value relative to the reference. A zero reference with a
// zero value is "at reference"; a zero reference with a positive value is
// maximally above it.
func index(value, reference float64) float64 {
	if reference == 0 {
		if value == 0 {
			return 0
		}
		return 1
	}
	return value/reference - 1
}

// reference computes the configured central tendency over the group.
func (c *Classifier) reference(records []domain.ProviderRecord, metric func(domain.ProviderRecord) float64) float64 {
	if c.cfg.CentralTendency == domain.MEAN {
		var sum float64
		for _, r := range records {
			sum += metric(r)
		}
		return sum / float64(len(records))
	}
	return median(records, metric)
}

// median returns the middle value, averaging the two central values for
// even-sized groups. Equal values sort by provider ID so the ordering, and
// with it the result, is deterministic.
func median(records []domain.ProviderRecord, metric func(domain.ProviderRecord) float64) float64 {
	values := make([]struct {
		v  float64
		id string
	}, len(records))
	for i, r := range records {
		values[i].v = metric(r)
		values[i].id = r.ProviderID
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].v != values[j].v {
			return values[i].v < values[j].v
		}
		return values[i].id < values[j].id
	})

	n := len(values)
	if n%2 == 1 {
		return values[n/2].v
	}
	return (values[n/2-1].v + values[n/2].v) / 2
}
