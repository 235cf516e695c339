// Package normalize converts raw CMS dataset rows into the canonical
// ProviderRecord schema. The two source files name the same concepts
// differently (and the column names have drifted across releases), so each
// canonical field is resolved through a list of known column aliases.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/domain"
)

// RawRecord is one unparsed row from a source dataset, keyed by the
// original column headers.
type RawRecord struct {
	Source domain.SourceSchema
	Fields map[string]string
}

// Column aliases per canonical field, probed in order. Mirrors the column
// drift observed across CMS releases of the utilization-and-payment and
// hospital-quality files.
var (
	providerIDCols = []string{"Rndrng_NPI", "NPI", "Facility ID", "Facility_ID", "Provider_ID"}
	providerNameCols = []string{
		"Rndrng_Prvdr_Org_Name", "Rndrng_Prvdr_Last_Org_Name", "Org_Name",
		"Facility Name", "Facility_Name", "Provider_Name",
	}
	regionCols = []string{
		"Rndrng_Prvdr_State_Abrvtn", "Rndrng_Prvdr_State", "State_Abrvtn", "State",
	}
	procedureCols = []string{"HCPCS_Cd", "HCPCS_Code", "Measure ID", "Measure_ID", "Procedure_Code"}
	costCols      = []string{"Avg_Mdcr_Pymt_Amt", "Avg_Pymt_Amt", "Avg_Payment_Amount", "Payment", "Cost"}
	volumeCols    = []string{"Tot_Srvcs", "Total_Services", "Denominator", "Volume"}
	qualityCols   = []string{"Quality_Score", "Score", "Star_Rating", "Quality Metrics"}
	yearCols      = []string{"Year", "Data_Year", "year"}
	quarterCols   = []string{"Quarter", "quarter"}

	// Star-rating columns carry a 0-5 scale that must be stretched to 0-100.
	starRatingCols = map[string]bool{"Star_Rating": true}
)

// Result carries the normalized batch plus per-record diagnostics. Rejected
// and duplicate records are reported, never silently dropped.
type Result struct {
	Records     []domain.ProviderRecord
	Diagnostics []domain.Diagnostic
}

// Normalizer parses raw record batches into the uniform schema.
type Normalizer struct {
	logger *logrus.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts a raw batch into ProviderRecords. Exact duplicates
// (same provider, procedure, period) collapse last-write-wins with one
// duplicate diagnostic per collision.
func (n *Normalizer) Normalize(batch []RawRecord) *Result {
	res := &Result{}
	index := make(map[string]int) // record key -> position in res.Records

	for i := range batch {
		rec, err := n.normalizeOne(&batch[i])
		if err != nil {
			var verr *domain.ValidationError
			if v, ok := err.(*domain.ValidationError); ok {
				verr = v
			} else {
				verr = &domain.ValidationError{Field: "record", Message: err.Error()}
			}
			n.logger.WithFields(logrus.Fields{
				"row":    i,
				"source": batch[i].Source,
				"field":  verr.Field,
			}).Warn("Rejected raw record")
			res.Diagnostics = append(res.Diagnostics, domain.Diagnostic{
				Code:     domain.ErrCodeValidation,
				Severity: domain.SeverityError,
				Message:  fmt.Sprintf("row %d: %s", i, verr.Error()),
				Field:    verr.Field,
			})
			continue
		}

		key := rec.RecordKey()
		if pos, seen := index[key]; seen {
			// Last-write-wins: the later row replaces the earlier one in place.
			n.logger.WithFields(logrus.Fields{
				"provider_id": rec.ProviderID,
				"procedure":   rec.ProcedureCode,
				"period":      rec.Period.String(),
			}).Warn("Duplicate record collapsed, keeping last occurrence")
			res.Records[pos] = *rec
			res.Diagnostics = append(res.Diagnostics, domain.Diagnostic{
				Code:       domain.ErrCodeDuplicateRecord,
				Severity:   domain.SeverityWarning,
				Message:    fmt.Sprintf("duplicate record for %s collapsed, kept last occurrence", key),
				ProviderID: rec.ProviderID,
			})
			continue
		}

		index[key] = len(res.Records)
		res.Records = append(res.Records, *rec)
	}

	n.logger.WithFields(logrus.Fields{
		"input":    len(batch),
		"accepted": len(res.Records),
		"rejected": len(res.Diagnostics),
	}).Info("Normalized raw record batch")

	return res
}

// normalizeOne maps one raw row onto the canonical schema.
func (n *Normalizer) normalizeOne(raw *RawRecord) (*domain.ProviderRecord, error) {
	if !raw.Source.IsValid() {
		return nil, &domain.ValidationError{Field: "source", Message: "unknown source schema", Value: string(raw.Source)}
	}

	var missing []string

	providerID, _ := lookup(raw.Fields, providerIDCols)
	if providerID == "" {
		missing = append(missing, "provider_id")
	}

	costRaw, _ := lookup(raw.Fields, costCols)
	if costRaw == "" {
		missing = append(missing, "cost")
	}

	qualityRaw, qualityCol := lookup(raw.Fields, qualityCols)
	if qualityRaw == "" {
		missing = append(missing, "quality_score")
	}

	if len(missing) > 0 {
		return nil, &domain.ValidationError{
			Field:   strings.Join(missing, ","),
			Message: "missing required field(s)",
		}
	}

	costCents, err := DollarsToCents(costRaw)
	if err != nil {
		return nil, &domain.ValidationError{Field: "cost", Message: err.Error(), Value: costRaw}
	}

	quality, err := normalizeQuality(qualityRaw, qualityCol)
	if err != nil {
		return nil, &domain.ValidationError{Field: "quality_score", Message: err.Error(), Value: qualityRaw}
	}

	rec := &domain.ProviderRecord{
		ProviderID:   providerID,
		CostCents:    costCents,
		QualityScore: quality,
	}

	rec.ProviderName, _ = lookup(raw.Fields, providerNameCols)
	rec.RegionCode, _ = lookup(raw.Fields, regionCols)
	rec.ProcedureCode, _ = lookup(raw.Fields, procedureCols)

	if volRaw, _ := lookup(raw.Fields, volumeCols); volRaw != "" {
		vol, err := parseCount(volRaw)
		if err != nil {
			return nil, &domain.ValidationError{Field: "volume", Message: err.Error(), Value: volRaw}
		}
		rec.Volume = vol
	}

	period, err := parsePeriod(raw.Fields)
	if err != nil {
		return nil, err
	}
	rec.Period = period

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	return rec, nil
}

// lookup probes the alias list in order and returns the first non-empty
// value together with the column it came from.
func lookup(fields map[string]string, aliases []string) (string, string) {
	for _, col := range aliases {
		if v, ok := fields[col]; ok {
			v = strings.TrimSpace(v)
			if v != "" {
				return v, col
			}
		}
	}
	return "", ""
}

// DollarsToCents converts a currency string such as "$1,234.56" to cents.
// Fractions of a cent round half away from zero.
func DollarsToCents(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty currency value")
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable currency value: %w", err)
	}
	return int64(math.Round(amount * 100)), nil
}

// normalizeQuality maps a raw quality signal onto the canonical 0-100
// scale. Percent strings lose their suffix, star ratings (0-5) stretch by
// a factor of 20, and plain numbers pass through.
func normalizeQuality(raw, column string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	isPercent := strings.HasSuffix(cleaned, "%")
	cleaned = strings.TrimSuffix(cleaned, "%")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable quality score: %w", err)
	}

	if !isPercent && starRatingCols[column] {
		v *= 20
	}
	return v, nil
}

// parseCount parses a non-negative integer that may be encoded as a float
// ("123.0") in the source files.
func parseCount(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable count: %w", err)
	}
	return int64(math.Round(f)), nil
}

// parsePeriod extracts the reporting period. The annual CMS files carry only
// a year column; the quarter defaults to 1 in that case so annual series
// remain contiguous on the quarter index.
func parsePeriod(fields map[string]string) (domain.Period, error) {
	yearRaw, _ := lookup(fields, yearCols)
	if yearRaw == "" {
		return domain.Period{}, &domain.ValidationError{Field: "period", Message: "missing year column"}
	}
	year, err := strconv.Atoi(strings.TrimSpace(yearRaw))
	if err != nil {
		return domain.Period{}, &domain.ValidationError{Field: "period", Message: "unparseable year", Value: yearRaw}
	}

	quarter := 1
	if qRaw, _ := lookup(fields, quarterCols); qRaw != "" {
		q, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(qRaw, "Q")))
		if err != nil {
			return domain.Period{}, &domain.ValidationError{Field: "period", Message: "unparseable quarter", Value: qRaw}
		}
		quarter = q
	}

	p := domain.Period{Year: year, Quarter: quarter}
	if !p.IsValid() {
		return domain.Period{}, &domain.ValidationError{Field: "period", Message: "period out of range", Value: p.String()}
	}
	return p, nil
}
