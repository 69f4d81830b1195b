package queueapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/admission"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/edgecase"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/queue"
)

func proposal() models.ResurrectionProposal {
	return models.ResurrectionProposal{
		Decision:   models.ResurrectionDecision{DecisionID: "d1", KillID: "k1"},
		KillReport: models.KillReport{KillID: "k1", TargetModule: "checkout", TargetInstanceID: "checkout-0"},
		Urgency:    models.SeverityHigh,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func testServer(t *testing.T) (*Server, *queue.Queue) {
	t.Helper()
	q := queue.New(10, "", nil)
	a := admission.New(config.AdmissionConfig{}, nil, nil, nil, nil)
	e := edgecase.New(config.EdgeCaseConfig{}, nil)
	return New(q, a, e, nil, "fallback-operator"), q
}

func TestHandleListReturnsPendingItems(t *testing.T) {
	s, q := testServer(t)
	_, err := q.Enqueue(proposal())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/queue")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var items []models.QueueItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "checkout", items[0].Proposal.KillReport.TargetModule)
}

func TestHandleItemShowApproveDeny(t *testing.T) {
	s, q := testServer(t)
	id, err := q.Enqueue(proposal())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/queue/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := json.Marshal(reviewRequest{Reviewer: "operator-1", Notes: "ok"})
	resp, err = http.Post(srv.URL+"/v1/queue/"+id+"/approve", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var request models.ResurrectionRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&request))
	assert.Equal(t, "operator-1", request.ApprovedBy)

	// already approved: deny should now fail with a conflict.
	body, _ = json.Marshal(reviewRequest{Reviewer: "operator-1", Reason: "too late"})
	resp, err = http.Post(srv.URL+"/v1/queue/"+id+"/deny", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleItemApproveFallsBackToDefaultReviewer(t *testing.T) {
	s, q := testServer(t)
	id, err := q.Enqueue(proposal())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(reviewRequest{Notes: "scripted"})
	resp, err := http.Post(srv.URL+"/v1/queue/"+id+"/approve", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var request models.ResurrectionRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&request))
	assert.Equal(t, "fallback-operator", request.ApprovedBy)
}

func TestHandleItemApproveRejectsMissingReviewerWithNoDefault(t *testing.T) {
	q := queue.New(10, "", nil)
	a := admission.New(config.AdmissionConfig{}, nil, nil, nil, nil)
	e := edgecase.New(config.EdgeCaseConfig{}, nil)
	s := New(q, a, e, nil, "")
	id, err := q.Enqueue(proposal())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/queue/"+id+"/approve", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleItemUnknownIDReturnsNotFound(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/queue/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStatsReflectsQueueAndEdgeCaseState(t *testing.T) {
	s, q := testServer(t)
	_, err := q.Enqueue(proposal())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Queue.Pending)
	assert.Equal(t, 0, stats.Attempts)
	assert.False(t, stats.Paused)
}

func TestHandleListRejectsNonGet(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/queue", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
