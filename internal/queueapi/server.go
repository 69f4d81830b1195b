// Package queueapi exposes the approval queue's operator-console contract
// over HTTP, so the medic-approvalctl CLI can drive a running agent's
// queue remotely instead of needing in-process access.
package queueapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kase1111-hash/medic-agent/internal/admission"
	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/edgecase"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/queue"
)

// Server answers the queue-admin HTTP API.
type Server struct {
	queue *queue.Queue
	admission *admission.Manager
	edgeCase *edgecase.Manager
	logger agentlog.Logger
	defaultReviewer string
}

// New constructs a Server backed by the given agent subsystems.
// defaultReviewer, if set, is attributed to approve/deny calls that omit a
// reviewer (e.g. scripted automation hitting the API directly rather than
// through medic-approvalctl, which always sends one).
func New(q *queue.Queue, a *admission.Manager, e *edgecase.Manager, logger agentlog.Logger, defaultReviewer string) *Server {
	return &Server{queue: q, admission: a, edgeCase: e, logger: logger, defaultReviewer: defaultReviewer}
}

// Handler returns the mux the caller should mount (directly, or behind its
// own auth/TLS termination).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/queue", s.handleList)
	mux.HandleFunc("/v1/queue/", s.handleItem)
	mux.HandleFunc("/v1/stats", s.handleStats)
	return mux
}

type statsResponse struct {
	Queue queue.Stats `json:"queue"`
	Attempts int `json:"attempts_recorded"`
	Paused bool `json:"auto_resurrection_paused"`
	EdgeCases []models.EdgeCase `json:"active_edge_cases"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	items := s.queue.ListPending(0)
	s.writeJSON(w, items)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statsResponse{
		Queue: s.queue.Stats(),
		Attempts: len(s.admission.History()),
		Paused: s.edgeCase.IsAutoResurrectionPaused(),
		EdgeCases: s.edgeCase.ActiveEdgeCases(),
	}
	s.writeJSON(w, resp)
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Notes string `json:"notes"`
	Reason string `json:"reason"`
}

// handleItem serves /v1/queue/{id}, /v1/queue/{id}/approve, /v1/queue/{id}/deny.
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/queue/")
	parts := strings.SplitN(rest, "/", 2)
	itemID := parts[0]
	if itemID == "" {
		http.Error(w, "item id required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		item, err := s.queue.GetItem(itemID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.writeJSON(w, item)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reviewer == "" {
		req.Reviewer = s.defaultReviewer
	}
	if req.Reviewer == "" {
		http.Error(w, "reviewer is required", http.StatusBadRequest)
		return
	}

	switch parts[1] {
	case "approve":
		request, err := s.queue.Approve(itemID, req.Reviewer, req.Notes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		s.writeJSON(w, request)
	case "deny":
		if err := s.queue.Deny(itemID, req.Reviewer, req.Reason); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Error("failed to encode response", agentlog.Fields{"error": err.Error()})
	}
}
