package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRestarterRestartSendsModuleAndInstance(t *testing.T) {
	var gotPath string
	var gotBody restartRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Result{Success: true, Message: "ok"})
	}))
	defer srv.Close()

	restarter := NewHTTPRestarter(srv.URL, time.Second)
	result, err := restarter.Restart(context.Background(), "checkout", "checkout-2")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "/v1/restart", gotPath)
	assert.Equal(t, "checkout", gotBody.Module)
	assert.Equal(t, "checkout-2", gotBody.InstanceID)
}

func TestHTTPRestarterRollbackSendsReason(t *testing.T) {
	var gotBody restartRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Result{Success: true})
	}))
	defer srv.Close()

	restarter := NewHTTPRestarter(srv.URL, time.Second)
	_, err := restarter.Rollback(context.Background(), "checkout", "checkout-2", "unhealthy")
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", gotBody.Reason)
}

func TestHTTPRestarterNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	restarter := NewHTTPRestarter(srv.URL, time.Second)
	result, err := restarter.Restart(context.Background(), "checkout", "checkout-2")
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestInProcessRestarterAlwaysSucceeds(t *testing.T) {
	r := NewInProcessRestarter()
	result, err := r.Restart(context.Background(), "checkout", "checkout-0")
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = r.Rollback(context.Background(), "checkout", "checkout-0", "flapping")
	require.NoError(t, err)
	assert.True(t, result.Success)
}
