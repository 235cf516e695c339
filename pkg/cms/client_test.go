package cms

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-analytics-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testClientConfig(serviceURL string) domain.CMSConfig {
	return domain.CMSConfig{
		ServiceDatasetURL: serviceURL,
		Timeout:           5 * time.Second,
		RetryCount:        1,
	}
}

const sampleCSV = "Rndrng_NPI,HCPCS_Cd,Avg_Mdcr_Pymt_Amt,Year\n1003000126,99213,125.50,2022\n"

func TestClient_FetchServiceData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		w.Write([]byte(sampleCSV))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), testLogger())

	records, err := client.FetchServiceData(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1003000126", records[0].Fields["Rndrng_NPI"])
	assert.Equal(t, domain.UTILIZATION, records[0].Source)
}

func TestClient_FetchServiceData_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.RetryCount = 3
	client := NewClient(cfg, testLogger())

	records, err := client.FetchServiceData(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_FetchServiceData_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), testLogger())

	_, err := client.FetchServiceData(context.Background())
	assert.Error(t, err)
}

func TestClient_FetchServiceData_EmptyURL(t *testing.T) {
	client := NewClient(domain.CMSConfig{Timeout: time.Second}, testLogger())

	_, err := client.FetchServiceData(context.Background())
	assert.Error(t, err)
}

func TestClient_FetchQualityData_Unconfigured(t *testing.T) {
	client := NewClient(domain.CMSConfig{Timeout: time.Second}, testLogger())

	_, err := client.FetchQualityData(context.Background())
	assert.Error(t, err)
}

func TestClient_FetchQualityData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Facility ID,Star_Rating,Year\n050108,4,2022\n"))
	}))
	defer server.Close()

	cfg := domain.CMSConfig{QualityDatasetURL: server.URL, Timeout: 5 * time.Second, RetryCount: 1}
	client := NewClient(cfg, testLogger())

	records, err := client.FetchQualityData(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.HOSPITAL_QUALITY, records[0].Source)
}
