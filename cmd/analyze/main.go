// Command analyze runs a single analytics pass from the command line: it
// loads CMS dataset CSVs (local files or the configured remote endpoints),
// normalizes them and prints the analytics response as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/config"
	"github.com/cms-analytics-server/internal/domain"
	"github.com/cms-analytics-server/internal/normalize"
	"github.com/cms-analytics-server/internal/service"
	"github.com/cms-analytics-server/pkg/cms"
)

func main() {
	var (
		serviceCSV = flag.String("service-csv", "", "path to a local utilization-and-payment CSV (skips the network fetch)")
		qualityCSV = flag.String("quality-csv", "", "path to a local hospital quality CSV")
		region     = flag.String("region", "", "region code filter")
		procedure  = flag.String("procedure", "", "procedure code filter")
		providers  = flag.String("providers", "", "comma-separated provider IDs, output preserves this order")
		start      = flag.String("start", "2000Q1", "start period, e.g. 2021Q1")
		end        = flag.String("end", "2100Q4", "end period, e.g. 2023Q4")
		horizon    = flag.Int("horizon", 0, "forecast horizon in quarters, 0 disables forecasting")
		metric     = flag.String("metric", "", "forecast metric: COST or VOLUME (default COST)")
		volumeAdj  = flag.Bool("volume-adjusted", false, "partition peer groups by volume tier")
		pretty     = flag.Bool("pretty", true, "indent the JSON output")
	)
	flag.Parse()

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx := context.Background()

	raw, err := loadRaw(ctx, cfg, logger, *serviceCSV, *qualityCSV)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load datasets")
	}

	normalizer := normalize.NewNormalizer(logger)
	result := normalizer.Normalize(raw)

	req, err := buildRequest(*region, *procedure, *providers, *start, *end, *horizon, *metric, *volumeAdj)
	if err != nil {
		logger.WithError(err).Fatal("Invalid request parameters")
	}

	analytics := service.NewAnalyticsService(logger, cfg.Analytics)
	response, err := analytics.Run(ctx, req, result.Records, result.Diagnostics)
	if err != nil {
		logger.WithError(err).Fatal("Analytics run failed")
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(response); err != nil {
		logger.WithError(err).Fatal("Failed to encode response")
	}
}

// loadRaw reads the raw dataset rows from local files when paths were given,
// falling back to the configured CMS endpoints otherwise. The quality feed is
// optional either way.
func loadRaw(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, serviceCSV, qualityCSV string) ([]normalize.RawRecord, error) {
	var raw []normalize.RawRecord

	if serviceCSV != "" {
		records, err := readCSVFile(serviceCSV, domain.UTILIZATION)
		if err != nil {
			return nil, err
		}
		raw = append(raw, records...)
	} else {
		client := cms.NewClient(cfg.CMS, logger)
		records, err := client.FetchServiceData(ctx)
		if err != nil {
			return nil, err
		}
		raw = append(raw, records...)
	}

	if qualityCSV != "" {
		records, err := readCSVFile(qualityCSV, domain.HOSPITAL_QUALITY)
		if err != nil {
			return nil, err
		}
		raw = append(raw, records...)
	} else if cfg.CMS.QualityDatasetURL != "" {
		client := cms.NewClient(cfg.CMS, logger)
		records, err := client.FetchQualityData(ctx)
		if err != nil {
			logger.WithError(err).Warn("Quality dataset unavailable, continuing without it")
		} else {
			raw = append(raw, records...)
		}
	}

	return raw, nil
}

func buildRequest(region, procedure, providers, start, end string, horizon int, metric string, volumeAdjusted bool) (*domain.AnalyticsRequest, error) {
	startPeriod, err := domain.ParsePeriod(start)
	if err != nil {
		return nil, err
	}
	endPeriod, err := domain.ParsePeriod(end)
	if err != nil {
		return nil, err
	}

	req := &domain.AnalyticsRequest{
		RegionCode:     region,
		ProcedureCode:  procedure,
		StartPeriod:    startPeriod,
		EndPeriod:      endPeriod,
		Horizon:        horizon,
		ForecastMetric: domain.Metric(strings.ToUpper(metric)),
		VolumeAdjusted: volumeAdjusted,
	}
	if providers != "" {
		for _, id := range strings.Split(providers, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.ProviderIDs = append(req.ProviderIDs, id)
			}
		}
	}
	return req, nil
}

func readCSVFile(path string, source domain.SourceSchema) ([]normalize.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return cms.ParseCSV(f, source)
}
