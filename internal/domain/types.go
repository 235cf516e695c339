// Package domain contains the core entities for CMS provider cost/quality
// analytics: normalized provider records, peer groups, quadrant
// classifications and cost/volume forecasts.
//
// Source datasets: Medicare Physician & Other Practitioners
// (utilization and payment) and Hospital Quality files published on
// data.cms.gov.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Quadrant is the comparative cost/quality classification of a provider
// against its peer group. The set is closed; downstream consumers must
// handle every value explicitly.
type Quadrant string

const (
	HIGH_VALUE             Quadrant = "HIGH_VALUE"             // high quality, low-or-equal cost
	HIGH_COST_HIGH_QUALITY Quadrant = "HIGH_COST_HIGH_QUALITY" // high quality, high cost
	LOW_COST_LOW_QUALITY   Quadrant = "LOW_COST_LOW_QUALITY"   // low quality, low cost
	LOW_VALUE              Quadrant = "LOW_VALUE"              // low quality, high cost
)

// Metric identifies which series of a provider/procedure is forecast.
type Metric string

const (
	COST   Metric = "COST"
	VOLUME Metric = "VOLUME"
)

// SourceSchema identifies which CMS source file a raw record came from.
type SourceSchema string

const (
	UTILIZATION      SourceSchema = "UTILIZATION"      // provider utilization & payment file
	HOSPITAL_QUALITY SourceSchema = "HOSPITAL_QUALITY" // hospital quality score file
)

// CentralTendency selects the peer-group reference statistic.
type CentralTendency string

const (
	MEDIAN CentralTendency = "MEDIAN"
	MEAN   CentralTendency = "MEAN"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidQuadrant = errors.New("invalid quadrant label")
	ErrInvalidMetric   = errors.New("invalid forecast metric")
	ErrInvalidPeriod   = errors.New("invalid period")
)

// IsValid reports whether the quadrant is one of the four defined labels.
func (q Quadrant) IsValid() bool {
	switch q {
	case HIGH_VALUE, HIGH_COST_HIGH_QUALITY, LOW_COST_LOW_QUALITY, LOW_VALUE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the quadrant.
func (q Quadrant) String() string {
	return string(q)
}

// Description returns a human-readable description for reporting layers.
func (q Quadrant) Description() string {
	switch q {
	case HIGH_VALUE:
		return "High Value - Above-median quality at or below median cost"
	case HIGH_COST_HIGH_QUALITY:
		return "High Cost, High Quality - Above-median quality at above-median cost"
	case LOW_COST_LOW_QUALITY:
		return "Low Cost, Low Quality - Below-median quality at or below median cost"
	case LOW_VALUE:
		return "Low Value - Below-median quality at above-median cost"
	default:
		return "Unknown quadrant"
	}
}

// IsValid reports whether the metric is supported.
func (m Metric) IsValid() bool {
	switch m {
	case COST, VOLUME:
		return true
	default:
		return false
	}
}

func (m Metric) String() string { return string(m) }

// IsValid reports whether the source schema is recognized.
func (s SourceSchema) IsValid() bool {
	switch s {
	case UTILIZATION, HOSPITAL_QUALITY:
		return true
	default:
		return false
	}
}

// IsValid reports whether the central tendency is supported.
func (ct CentralTendency) IsValid() bool {
	switch ct {
	case MEDIAN, MEAN:
		return true
	default:
		return false
	}
}

// Period is a calendar quarter. Periods order totally by their index, so
// series arithmetic (gaps, successors) is integer arithmetic.
type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// IsValid reports whether the period has a plausible year and a quarter in 1..4.
func (p Period) IsValid() bool {
	return p.Year >= 1900 && p.Year <= 2200 && p.Quarter >= 1 && p.Quarter <= 4
}

// Index maps the period onto a contiguous integer scale, one unit per quarter.
func (p Period) Index() int {
	return p.Year*4 + (p.Quarter - 1)
}

// PeriodFromIndex is the inverse of Index.
func PeriodFromIndex(idx int) Period {
	return Period{Year: idx / 4, Quarter: idx%4 + 1}
}

// Next returns the immediately following quarter.
func (p Period) Next() Period {
	return PeriodFromIndex(p.Index() + 1)
}

// Before reports whether p precedes o.
func (p Period) Before(o Period) bool {
	return p.Index() < o.Index()
}

// String renders the period as e.g. "2021Q3".
func (p Period) String() string {
	return fmt.Sprintf("%04dQ%d", p.Year, p.Quarter)
}

// ParsePeriod parses a "2021Q3" style period string.
func ParsePeriod(s string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(s, "%dQ%d", &p.Year, &p.Quarter); err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, ErrInvalidPeriod)
	}
	if !p.IsValid() {
		return Period{}, fmt.Errorf("parse period %q: %w", s, ErrInvalidPeriod)
	}
	return p, nil
}

// ProviderRecord is one normalized observation: one provider, one procedure,
// one period. Records are immutable once emitted by the normalizer.
//
// CostCents is the average payment amount in cents; QualityScore is on a
// single 0-100 scale regardless of the source encoding.
type ProviderRecord struct {
	ProviderID    string  `json:"provider_id"`
	ProviderName  string  `json:"provider_name,omitempty"`
	RegionCode    string  `json:"region_code"`
	ProcedureCode string  `json:"procedure_code"`
	Period        Period  `json:"period"`
	CostCents     int64   `json:"cost_cents"`
	Volume        int64   `json:"volume"`
	QualityScore  float64 `json:"quality_score"`
}

// Validate ensures the record meets the canonical schema invariants.
func (r *ProviderRecord) Validate() error {
	if r.ProviderID == "" {
		return &ValidationError{Field: "provider_id", Message: "provider ID is required"}
	}
	if r.RegionCode == "" {
		return &ValidationError{Field: "region_code", Message: "region code is required"}
	}
	if r.ProcedureCode == "" {
		return &ValidationError{Field: "procedure_code", Message: "procedure code is required"}
	}
	if !r.Period.IsValid() {
		return &ValidationError{Field: "period", Message: "period is invalid", Value: r.Period.String()}
	}
	if r.CostCents < 0 {
		return &ValidationError{Field: "cost_cents", Message: "cost must be non-negative", Value: r.CostCents}
	}
	if r.Volume < 0 {
		return &ValidationError{Field: "volume", Message: "volume must be non-negative", Value: r.Volume}
	}
	if r.QualityScore < 0 || r.QualityScore > 100 {
		return &ValidationError{Field: "quality_score", Message: "quality score must be within [0,100]", Value: r.QualityScore}
	}
	return nil
}

// RecordKey identifies a record for deduplication: duplicates share
// provider, procedure and period.
func (r *ProviderRecord) RecordKey() string {
	return fmt.Sprintf("%s|%s|%s", r.ProviderID, r.ProcedureCode, r.Period)
}

// PeerGroupKey is the comparability key: every record in a peer group shares
// procedure and region, and optionally a volume tier.
type PeerGroupKey struct {
	ProcedureCode string `json:"procedure_code"`
	RegionCode    string `json:"region_code"`
	VolumeTier    string `json:"volume_tier,omitempty"`
}

func (k PeerGroupKey) String() string {
	if k.VolumeTier == "" {
		return fmt.Sprintf("%s/%s", k.ProcedureCode, k.RegionCode)
	}
	return fmt.Sprintf("%s/%s/%s", k.ProcedureCode, k.RegionCode, k.VolumeTier)
}

// PeerGroup is the population a single provider is scored against. Groups
// are recomputed per request and never cached across requests.
type PeerGroup struct {
	Key          PeerGroupKey     `json:"key"`
	Records      []ProviderRecord `json:"records"`
	Insufficient bool             `json:"insufficient"` // below minimum group size
}

// Size returns the number of members in the group.
func (g *PeerGroup) Size() int { return len(g.Records) }

// QuadrantResult is the classifier output for one provider. When
// LowConfidence is set the peer group was too small and Quadrant is empty;
// the classifier never guesses.
type QuadrantResult struct {
	ProviderID    string   `json:"provider_id"`
	ProviderName  string   `json:"provider_name,omitempty"`
	CostIndex     float64  `json:"cost_index"`
	QualityIndex  float64  `json:"quality_index"`
	Quadrant      Quadrant `json:"quadrant,omitempty"`
	LowConfidence bool     `json:"low_confidence"`
	PeerGroupSize int      `json:"peer_group_size"`
}

// SeriesPoint is one historical observation of a forecast series.
type SeriesPoint struct {
	Period Period  `json:"period"`
	Value  float64 `json:"value"`
}

// ForecastPoint is one forecasted period with its confidence interval.
// Invariant: Lower <= Estimate <= Upper.
type ForecastPoint struct {
	Period   Period  `json:"period"`
	Estimate float64 `json:"estimate"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// SeriesID identifies a forecast series: one provider, one procedure, one metric.
type SeriesID struct {
	ProviderID    string `json:"provider_id"`
	ProcedureCode string `json:"procedure_code"`
	Metric        Metric `json:"metric"`
}

func (id SeriesID) String() string {
	return fmt.Sprintf("%s/%s/%s", id.ProviderID, id.ProcedureCode, id.Metric)
}

// ForecastResult carries the fitted history and the forecast horizon for one
// series. Forecast periods are strictly increasing and start immediately
// after the last historical period.
type ForecastResult struct {
	SeriesID SeriesID        `json:"series_id"`
	History  []SeriesPoint   `json:"history"`
	Points   []ForecastPoint `json:"points"`
}

// AnalyticsRequest carries the filter criteria for one analytics run.
// A zero Horizon disables forecasting.
type AnalyticsRequest struct {
	RegionCode     string   `json:"region_code,omitempty"`
	ProcedureCode  string   `json:"procedure_code,omitempty"`
	ProviderIDs    []string `json:"provider_ids,omitempty"`
	StartPeriod    Period   `json:"start_period"`
	EndPeriod      Period   `json:"end_period"`
	Horizon        int      `json:"horizon"`
	ForecastMetric Metric   `json:"forecast_metric,omitempty"`
	VolumeAdjusted bool     `json:"volume_adjusted"`
}

// Validate checks request-level parameters. Failures abort the whole request
// with an INVALID_REQUEST error; record- and series-level problems are
// reported as diagnostics instead.
func (r *AnalyticsRequest) Validate(maxHorizon int) error {
	if !r.StartPeriod.IsValid() {
		return NewRequestError("start_period", "start period is invalid")
	}
	if !r.EndPeriod.IsValid() {
		return NewRequestError("end_period", "end period is invalid")
	}
	if r.EndPeriod.Before(r.StartPeriod) {
		return NewRequestError("end_period", "end period must not precede start period")
	}
	if r.Horizon < 0 || r.Horizon > maxHorizon {
		return NewRequestError("horizon", fmt.Sprintf("horizon must be within [0,%d]", maxHorizon))
	}
	if r.ForecastMetric != "" && !r.ForecastMetric.IsValid() {
		return NewRequestError("forecast_metric", fmt.Sprintf("unknown metric %q", r.ForecastMetric))
	}
	return nil
}

// MetricOrDefault returns the requested forecast metric, defaulting to COST.
func (r *AnalyticsRequest) MetricOrDefault() Metric {
	if r.ForecastMetric == "" {
		return COST
	}
	return r.ForecastMetric
}

// ProviderEntry is one per-provider slot in the response. Either result may
// be absent when the corresponding computation was skipped or failed; the
// failure then appears in the response diagnostics.
type ProviderEntry struct {
	ProviderID   string           `json:"provider_id"`
	ProviderName string           `json:"provider_name,omitempty"`
	Quadrant     *QuadrantResult  `json:"quadrant,omitempty"`
	Forecasts    []ForecastResult `json:"forecasts,omitempty"`
}

// AnalyticsResponse is a pure function of the request and the dataset
// snapshot. Entries are ordered by the request's provider list when one was
// given, otherwise ascending by provider ID.
type AnalyticsResponse struct {
	RequestID   string          `json:"request_id"`
	Entries     []ProviderEntry `json:"entries"`
	Diagnostics []Diagnostic    `json:"diagnostics"`
	GeneratedAt time.Time       `json:"generated_at"`
}
