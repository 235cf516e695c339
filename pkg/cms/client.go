// Package cms fetches the public CMS datasets the analytics engine ingests:
// the Medicare Physician & Other Practitioners utilization-and-payment file
// and the hospital quality score file.
//
// The endpoints are plain CSV downloads. The client wraps them with a
// token-bucket rate limiter, bounded retries and a circuit breaker so a
// flapping upstream degrades fast instead of hanging ingestion.
package cms

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cms-analytics-server/internal/domain"
	"github.com/cms-analytics-server/internal/normalize"
)

// Client downloads and decodes CMS dataset files.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	cfg        domain.CMSConfig
	logger     *logrus.Logger
}

// NewClient creates a CMS dataset client.
func NewClient(cfg domain.CMSConfig, logger *logrus.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "CMS",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		limiter:    rate.NewLimiter(limit, 1),
		cfg:        cfg,
		logger:     logger,
	}
}

// FetchServiceData downloads the service-level utilization-and-payment file.
func (c *Client) FetchServiceData(ctx context.Context) ([]normalize.RawRecord, error) {
	return c.fetch(ctx, c.cfg.ServiceDatasetURL, domain.UTILIZATION)
}

// FetchProviderData downloads the provider-level utilization-and-payment file.
func (c *Client) FetchProviderData(ctx context.Context) ([]normalize.RawRecord, error) {
	return c.fetch(ctx, c.cfg.ProviderDatasetURL, domain.UTILIZATION)
}

// FetchQualityData downloads the hospital quality score file. Returns an
// error when no quality endpoint is configured.
func (c *Client) FetchQualityData(ctx context.Context) ([]normalize.RawRecord, error) {
	if c.cfg.QualityDatasetURL == "" {
		return nil, fmt.Errorf("no quality dataset URL configured")
	}
	return c.fetch(ctx, c.cfg.QualityDatasetURL, domain.HOSPITAL_QUALITY)
}

// fetch downloads one CSV dataset and decodes it into raw records.
func (c *Client) fetch(ctx context.Context, url string, source domain.SourceSchema) ([]normalize.RawRecord, error) {
	if url == "" {
		return nil, fmt.Errorf("dataset URL is empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.download(ctx, url, source)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	records := result.([]normalize.RawRecord)
	c.logger.WithFields(logrus.Fields{
		"url":     url,
		"source":  source,
		"records": len(records),
		"elapsed": time.Since(start),
	}).Info("Fetched CMS dataset")

	return records, nil
}

// download performs the GET with bounded retries and decodes the body.
func (c *Client) download(ctx context.Context, url string, source domain.SourceSchema) ([]normalize.RawRecord, error) {
	retries := c.cfg.RetryCount
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			// Linear backoff between attempts.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		records, err := c.attempt(ctx, url, source)
		if err == nil {
			return records, nil
		}
		lastErr = err
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
		}).Warn("Dataset download attempt failed")
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, url string, source domain.SourceSchema) ([]normalize.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	records, err := ParseCSV(resp.Body, source)
	if err != nil {
		return nil, fmt.Errorf("decoding CSV: %w", err)
	}
	return records, nil
}
