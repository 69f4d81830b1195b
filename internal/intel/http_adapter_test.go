package intel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackendQueryContextPostsReportAndDecodesResult(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/intel/query", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")

		var report models.KillReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		assert.Equal(t, "k1", report.KillID)

		json.NewEncoder(w).Encode(models.IntelContext{QueryID: "q1", KillID: "k1", RiskScore: 0.7})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "tok123", 2*time.Second)
	out, err := b.QueryContext(context.Background(), models.KillReport{KillID: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "q1", out.QueryID)
	assert.Equal(t, 0.7, out.RiskScore)
	assert.Equal(t, "Bearer tok123", gotAuth)
}

func TestHTTPBackendGetHistoryReturnsDecodedSlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/intel/history/checkout", r.URL.Path)
		json.NewEncoder(w).Encode([]models.OutcomeRecord{{KillID: "k1", Outcome: models.MonitorOutcomeStable}})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "", time.Second)
	out, err := b.GetHistory(context.Background(), "checkout")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.MonitorOutcomeStable, out[0].Outcome)
}

func TestHTTPBackendReportOutcomeSendsPostWithNoDecodedBody(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/v1/intel/outcome", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "", time.Second)
	err := b.ReportOutcome(context.Background(), models.OutcomeRecord{KillID: "k1"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestHTTPBackendHealthCheckNonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "", time.Second)
	assert.Error(t, b.HealthCheck(context.Background()))
}

func TestHTTPBackendNonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "", time.Second)
	_, err := b.QueryContext(context.Background(), models.KillReport{KillID: "k1"})
	assert.Error(t, err)
}
