package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_Index(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		want   int
	}{
		{"first quarter", Period{Year: 2021, Quarter: 1}, 2021 * 4},
		{"last quarter", Period{Year: 2021, Quarter: 4}, 2021*4 + 3},
		{"year rollover is contiguous", Period{Year: 2022, Quarter: 1}, 2021*4 + 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.Index())
		})
	}
}

func TestPeriod_Next(t *testing.T) {
	assert.Equal(t, Period{Year: 2021, Quarter: 2}, Period{Year: 2021, Quarter: 1}.Next())
	assert.Equal(t, Period{Year: 2022, Quarter: 1}, Period{Year: 2021, Quarter: 4}.Next())
}

func TestPeriod_Before(t *testing.T) {
	early := Period{Year: 2021, Quarter: 3}
	late := Period{Year: 2022, Quarter: 1}

	assert.True(t, early.Before(late))
	assert.False(t, late.Before(early))
	assert.False(t, early.Before(early))
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Period
		wantErr bool
	}{
		{"valid", "2021Q3", Period{Year: 2021, Quarter: 3}, false},
		{"quarter out of range", "2021Q5", Period{}, true},
		{"garbage", "not-a-period", Period{}, true},
		{"empty", "", Period{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuadrant_IsValid(t *testing.T) {
	for _, q := range []Quadrant{HIGH_VALUE, HIGH_COST_HIGH_QUALITY, LOW_COST_LOW_QUALITY, LOW_VALUE} {
		assert.True(t, q.IsValid(), q.String())
	}
	assert.False(t, Quadrant("MEDIUM_VALUE").IsValid())
	assert.False(t, Quadrant("").IsValid())
}

func TestProviderRecord_Validate(t *testing.T) {
	valid := ProviderRecord{
		ProviderID:    "1003000126",
		RegionCode:    "CA",
		ProcedureCode: "99213",
		Period:        Period{Year: 2022, Quarter: 1},
		CostCents:     12550,
		Volume:        340,
		QualityScore:  81.5,
	}

	tests := []struct {
		name    string
		mutate  func(r *ProviderRecord)
		wantErr string
	}{
		{"valid record", func(r *ProviderRecord) {}, ""},
		{"missing provider ID", func(r *ProviderRecord) { r.ProviderID = "" }, "provider_id"},
		{"missing region", func(r *ProviderRecord) { r.RegionCode = "" }, "region_code"},
		{"missing procedure", func(r *ProviderRecord) { r.ProcedureCode = "" }, "procedure_code"},
		{"invalid period", func(r *ProviderRecord) { r.Period = Period{} }, "period"},
		{"negative cost", func(r *ProviderRecord) { r.CostCents = -1 }, "cost_cents"},
		{"negative volume", func(r *ProviderRecord) { r.Volume = -1 }, "volume"},
		{"quality above 100", func(r *ProviderRecord) { r.QualityScore = 101 }, "quality_score"},
		{"quality below 0", func(r *ProviderRecord) { r.QualityScore = -0.1 }, "quality_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			err := rec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Field)
		})
	}
}

func TestAnalyticsRequest_Validate(t *testing.T) {
	const maxHorizon = 12

	valid := AnalyticsRequest{
		StartPeriod: Period{Year: 2021, Quarter: 1},
		EndPeriod:   Period{Year: 2023, Quarter: 4},
		Horizon:     4,
	}

	tests := []struct {
		name      string
		mutate    func(r *AnalyticsRequest)
		wantField string
	}{
		{"valid request", func(r *AnalyticsRequest) {}, ""},
		{"zero horizon disables forecasting", func(r *AnalyticsRequest) { r.Horizon = 0 }, ""},
		{"invalid start period", func(r *AnalyticsRequest) { r.StartPeriod = Period{Year: 2021, Quarter: 9} }, "start_period"},
		{"invalid end period", func(r *AnalyticsRequest) { r.EndPeriod = Period{} }, "end_period"},
		{"end before start", func(r *AnalyticsRequest) { r.EndPeriod = Period{Year: 2020, Quarter: 4} }, "end_period"},
		{"negative horizon", func(r *AnalyticsRequest) { r.Horizon = -1 }, "horizon"},
		{"horizon above max", func(r *AnalyticsRequest) { r.Horizon = maxHorizon + 1 }, "horizon"},
		{"unknown metric", func(r *AnalyticsRequest) { r.ForecastMetric = "REVENUE" }, "forecast_metric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate(maxHorizon)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tt.wantField, reqErr.Field)
		})
	}
}

func TestAnalyticsRequest_MetricOrDefault(t *testing.T) {
	req := AnalyticsRequest{}
	assert.Equal(t, COST, req.MetricOrDefault())

	req.ForecastMetric = VOLUME
	assert.Equal(t, VOLUME, req.MetricOrDefault())
}
