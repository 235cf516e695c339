// Package service orchestrates one analytics run: request validation,
// snapshot filtering, peer-group resolution, quadrant classification,
// forecasting and final assembly of the response.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cms-analytics-server/internal/classify"
	"github.com/cms-analytics-server/internal/domain"
	"github.com/cms-analytics-server/internal/forecast"
	"github.com/cms-analytics-server/internal/peers"
)

// AnalyticsService runs analytics requests against normalized dataset
// snapshots. It holds no mutable state across requests; concurrent Run
// calls are independent.
type AnalyticsService struct {
	logger     *logrus.Logger
	cfg        domain.AnalyticsConfig
	resolver   *peers.Resolver
	classifier *classify.Classifier
	engine     *forecast.Engine
}

// NewAnalyticsService creates the service with its immutable configuration.
func NewAnalyticsService(logger *logrus.Logger, cfg domain.AnalyticsConfig) *AnalyticsService {
	return &AnalyticsService{
		logger:     logger,
		cfg:        cfg,
		resolver:   peers.NewResolver(logger, cfg),
		classifier: classify.NewClassifier(logger, cfg),
		engine:     forecast.NewEngine(logger, cfg),
	}
}

// Run executes one analytics request against the given snapshot.
// baseDiagnostics (typically from the normalizer) are carried into the
// response ahead of any diagnostics this run produces.
//
// Classification and forecasting fan out per provider and per series; the
// assembly step joins all sub-results before building the response.
// Request-level malformation is the only hard failure; everything else is
// reported as a diagnostic alongside the successful entries.
func (s *AnalyticsService) Run(ctx context.Context, req *domain.AnalyticsRequest, snapshot []domain.ProviderRecord, baseDiagnostics []domain.Diagnostic) (*domain.AnalyticsResponse, error) {
	if err := req.Validate(s.cfg.MaxHorizon); err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	start := time.Now()

	filtered := filterRecords(snapshot, req)
	s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"snapshot":   len(snapshot),
		"matched":    len(filtered),
		"horizon":    req.Horizon,
	}).Info("Starting analytics run")

	latest := latestPerProviderProcedure(filtered)
	groups := s.resolver.Resolve(latest, req.VolumeAdjusted)
	groupByKey := make(map[domain.PeerGroupKey]*domain.PeerGroup, len(groups))
	for i := range groups {
		groupByKey[groups[i].Key] = &groups[i]
	}

	var (
		mu          sync.Mutex
		quadrants   = make(map[string]*domain.QuadrantResult)
		forecasts   = make(map[string][]domain.ForecastResult)
		diagnostics []domain.Diagnostic
	)

	g, gctx := errgroup.WithContext(ctx)

	// Quadrant classification: one result per provider, scored on the
	// provider's dominant (highest-volume) procedure record.
	for _, rec := range dominantPerProvider(latest) {
		rec := rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := domain.PeerGroupKey{ProcedureCode: rec.ProcedureCode, RegionCode: rec.RegionCode}
			if req.VolumeAdjusted {
				key.VolumeTier = volumeTierOf(groupByKey, rec)
			}
			group, ok := groupByKey[key]
			if !ok {
				return nil
			}
			result := s.classifier.Classify(rec, *group)

			mu.Lock()
			defer mu.Unlock()
			quadrants[rec.ProviderID] = &result
			if result.LowConfidence {
				diagnostics = append(diagnostics, domain.Diagnostic{
					Code:       domain.ErrCodeInsufficientPeers,
					Severity:   domain.SeverityWarning,
					Message:    fmt.Sprintf("peer group %s has %d members, need %d; returning low-confidence result", group.Key, group.Size(), s.cfg.MinPeerGroupSize),
					ProviderID: rec.ProviderID,
				})
			}
			return nil
		})
	}

	// Forecasting: one series per provider/procedure for the requested
	// metric. Failed series are omitted with a diagnostic; siblings are
	// unaffected.
	if req.Horizon > 0 {
		metric := req.MetricOrDefault()
		for id, history := range buildSeries(filtered, metric) {
			id, history := id, history
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				result, err := s.engine.Forecast(id, history, req.Horizon)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					diagnostics = append(diagnostics, seriesDiagnostic(id, err))
					return nil
				}
				forecasts[id.ProviderID] = append(forecasts[id.ProviderID], *result)
				return nil
			})
		}
	}

	// Join barrier: the assembler waits for every classifier and forecast
	// sub-result before building the response.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	response := s.assemble(requestID, req, filtered, quadrants, forecasts, append(baseDiagnostics, diagnostics...))

	s.logger.WithFields(logrus.Fields{
		"request_id":  requestID,
		"entries":     len(response.Entries),
		"diagnostics": len(response.Diagnostics),
		"elapsed":     time.Since(start),
	}).Info("Analytics run completed")

	return response, nil
}

// assemble joins quadrant and forecast results into the ordered response.
// It performs no computation beyond the structural merge.
func (s *AnalyticsService) assemble(requestID string, req *domain.AnalyticsRequest, records []domain.ProviderRecord, quadrants map[string]*domain.QuadrantResult, forecasts map[string][]domain.ForecastResult, diagnostics []domain.Diagnostic) *domain.AnalyticsResponse {
	names := make(map[string]string)
	for _, rec := range records {
		if rec.ProviderName != "" {
			names[rec.ProviderID] = rec.ProviderName
		}
	}

	providerIDs := orderedProviderIDs(req, quadrants, forecasts)

	entries := make([]domain.ProviderEntry, 0, len(providerIDs))
	for _, id := range providerIDs {
		entry := domain.ProviderEntry{
			ProviderID:   id,
			ProviderName: names[id],
			Quadrant:     quadrants[id],
		}
		if fs := forecasts[id]; len(fs) > 0 {
			sort.Slice(fs, func(i, j int) bool {
				return fs[i].SeriesID.String() < fs[j].SeriesID.String()
			})
			entry.Forecasts = fs
		}
		entries = append(entries, entry)
	}

	if diagnostics == nil {
		diagnostics = []domain.Diagnostic{}
	}

	return &domain.AnalyticsResponse{
		RequestID:   requestID,
		Entries:     entries,
		Diagnostics: diagnostics,
		GeneratedAt: time.Now().UTC(),
	}
}

// orderedProviderIDs preserves the requester's explicit provider ordering
// when one was given, defaulting to ascending provider ID otherwise.
func orderedProviderIDs(req *domain.AnalyticsRequest, quadrants map[string]*domain.QuadrantResult, forecasts map[string][]domain.ForecastResult) []string {
	present := make(map[string]bool)
	for id := range quadrants {
		present[id] = true
	}
	for id := range forecasts {
		present[id] = true
	}

	if len(req.ProviderIDs) > 0 {
		ordered := make([]string, 0, len(req.ProviderIDs))
		seen := make(map[string]bool)
		for _, id := range req.ProviderIDs {
			if present[id] && !seen[id] {
				ordered = append(ordered, id)
				seen[id] = true
			}
		}
		return ordered
	}

	ordered := make([]string, 0, len(present))
	for id := range present {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)
	return ordered
}

// filterRecords applies the request's region, procedure, provider and date
// range filters to the snapshot.
func filterRecords(snapshot []domain.ProviderRecord, req *domain.AnalyticsRequest) []domain.ProviderRecord {
	var wanted map[string]bool
	if len(req.ProviderIDs) > 0 {
		wanted = make(map[string]bool, len(req.ProviderIDs))
		for _, id := range req.ProviderIDs {
			wanted[id] = true
		}
	}

	out := make([]domain.ProviderRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		if req.RegionCode != "" && rec.RegionCode != req.RegionCode {
			continue
		}
		if req.ProcedureCode != "" && rec.ProcedureCode != req.ProcedureCode {
			continue
		}
		if wanted != nil && !wanted[rec.ProviderID] {
			continue
		}
		if rec.Period.Before(req.StartPeriod) || req.EndPeriod.Before(rec.Period) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// latestPerProviderProcedure reduces multi-period records to the most recent
// observation per provider/procedure/region, the record classification
// scores against.
func latestPerProviderProcedure(records []domain.ProviderRecord) []domain.ProviderRecord {
	type key struct{ provider, procedure, region string }
	latest := make(map[key]domain.ProviderRecord)
	for _, rec := range records {
		k := key{rec.ProviderID, rec.ProcedureCode, rec.RegionCode}
		if cur, ok := latest[k]; !ok || cur.Period.Before(rec.Period) {
			latest[k] = rec
		}
	}

	out := make([]domain.ProviderRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].ProcedureCode < out[j].ProcedureCode
	})
	return out
}

// dominantPerProvider picks the record a provider is classified on: the
// procedure with the highest volume, ties broken by procedure code so the
// choice is deterministic.
func dominantPerProvider(records []domain.ProviderRecord) []domain.ProviderRecord {
	dominant := make(map[string]domain.ProviderRecord)
	for _, rec := range records {
		cur, ok := dominant[rec.ProviderID]
		if !ok || rec.Volume > cur.Volume ||
			(rec.Volume == cur.Volume && rec.ProcedureCode < cur.ProcedureCode) {
			dominant[rec.ProviderID] = rec
		}
	}

	out := make([]domain.ProviderRecord, 0, len(dominant))
	for _, rec := range dominant {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// buildSeries groups the filtered records into ordered historical series,
// one per provider/procedure, for the requested metric.
func buildSeries(records []domain.ProviderRecord, metric domain.Metric) map[domain.SeriesID][]domain.SeriesPoint {
	series := make(map[domain.SeriesID][]domain.SeriesPoint)
	for _, rec := range records {
		id := domain.SeriesID{
			ProviderID:    rec.ProviderID,
			ProcedureCode: rec.ProcedureCode,
			Metric:        metric,
		}
		value := float64(rec.CostCents)
		if metric == domain.VOLUME {
			value = float64(rec.Volume)
		}
		series[id] = append(series[id], domain.SeriesPoint{Period: rec.Period, Value: value})
	}

	for id := range series {
		pts := series[id]
		sort.Slice(pts, func(i, j int) bool { return pts[i].Period.Before(pts[j].Period) })
		series[id] = pts
	}
	return series
}

// volumeTierOf recovers the tier key the resolver placed this record in.
func volumeTierOf(groups map[domain.PeerGroupKey]*domain.PeerGroup, rec domain.ProviderRecord) string {
	for key, group := range groups {
		if key.ProcedureCode != rec.ProcedureCode || key.RegionCode != rec.RegionCode {
			continue
		}
		for _, member := range group.Records {
			if member.ProviderID == rec.ProviderID && member.Period == rec.Period {
				return key.VolumeTier
			}
		}
	}
	return ""
}

// seriesDiagnostic maps a per-series failure onto its diagnostic entry.
func seriesDiagnostic(id domain.SeriesID, err error) domain.Diagnostic {
	diag := domain.Diagnostic{
		Severity:   domain.SeverityWarning,
		Message:    err.Error(),
		ProviderID: id.ProviderID,
		SeriesID:   id.String(),
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientHistory):
		diag.Code = domain.ErrCodeInsufficientHistory
	case errors.Is(err, domain.ErrMalformedSeries):
		diag.Code = domain.ErrCodeMalformedSeries
		diag.Severity = domain.SeverityError
	default:
		diag.Code = domain.ErrCodeInternal
		diag.Severity = domain.SeverityError
	}
	return diag
}
