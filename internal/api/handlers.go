package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/domain"
	"github.com/cms-analytics-server/internal/store"
)

// handleAnalytics runs one analytics request against the latest ingested
// snapshot. Request-level malformation maps to 400; everything else is
// carried in the response diagnostics.
func (s *Server) handleAnalytics(c *gin.Context) {
	var req domain.AnalyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "malformed request body", err)
		return
	}

	records, err := s.latestRecords(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortWithError(c, http.StatusNotFound, domain.ErrCodeDatasetFetch,
				"no dataset snapshot available, trigger a dataset refresh first", err)
			return
		}
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to load snapshot", err)
		return
	}

	response, err := s.analytics.Run(c.Request.Context(), &req, records, nil)
	if err != nil {
		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) {
			s.abortWithError(c, http.StatusBadRequest, domain.ErrCodeInvalidRequest, reqErr.Error(), nil)
			return
		}
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrCodeInternal, "analytics run failed", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleDatasetRefresh fetches the configured CMS datasets, normalizes them
// and persists a new snapshot. Normalization diagnostics are returned to
// the caller, not swallowed.
func (s *Server) handleDatasetRefresh(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := s.fetcher.FetchServiceData(ctx)
	if err != nil {
		s.abortWithError(c, http.StatusBadGateway, domain.ErrCodeDatasetFetch, "failed to fetch CMS dataset", err)
		return
	}
	if quality, err := s.fetcher.FetchQualityData(ctx); err == nil {
		raw = append(raw, quality...)
	} else {
		s.logger.WithError(err).Warn("Quality dataset unavailable, continuing with utilization data only")
	}

	result := s.normalizer.Normalize(raw)

	snap := &store.Snapshot{
		ID:             uuid.New().String(),
		DatasetVersion: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		FetchedAt:      time.Now().UTC(),
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap, result.Records); err != nil {
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to persist snapshot", err)
		return
	}
	s.cache.Put(snap.ID, result.Records)

	s.logger.WithFields(logrus.Fields{
		"snapshot_id": snap.ID,
		"records":     snap.RecordCount,
		"diagnostics": len(result.Diagnostics),
	}).Info("Dataset snapshot ingested")

	c.JSON(http.StatusCreated, gin.H{
		"snapshot":    snap,
		"diagnostics": result.Diagnostics,
	})
}

// handleListSnapshots lists ingested snapshots, newest first.
func (s *Server) handleListSnapshots(c *gin.Context) {
	snaps, err := s.snapshots.ListSnapshots(c.Request.Context(), 50)
	if err != nil {
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to list snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []*store.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// handleGetProvider returns the latest snapshot's records for one provider.
func (s *Server) handleGetProvider(c *gin.Context) {
	providerID := c.Param("id")

	records, err := s.latestRecords(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.abortWithError(c, http.StatusNotFound, domain.ErrCodeDatasetFetch, "no dataset snapshot available", err)
			return
		}
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "failed to load snapshot", err)
		return
	}

	matched := make([]domain.ProviderRecord, 0)
	for _, rec := range records {
		if rec.ProviderID == providerID {
			matched = append(matched, rec)
		}
	}
	if len(matched) == 0 {
		s.abortWithError(c, http.StatusNotFound, domain.ErrCodeInvalidRequest, "provider not found in latest snapshot", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"provider_id": providerID, "records": matched})
}

// latestRecords loads the newest snapshot, through the cache when possible.
func (s *Server) latestRecords(ctx context.Context) ([]domain.ProviderRecord, error) {
	snap, err := s.snapshots.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if records, ok := s.cache.Get(snap.ID); ok {
		return records, nil
	}

	records, err := s.snapshots.LoadSnapshot(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(snap.ID, records)
	return records, nil
}

// abortWithError writes the standardized error envelope.
func (s *Server) abortWithError(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
		s.logger.WithError(err).WithField("code", code).Warn(message)
	}
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString("correlation_id")))
}
