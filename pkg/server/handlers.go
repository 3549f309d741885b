package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/routing"
)

// CreateSessionRequest is the body of POST /v1/sessions. Every field is optional.
type CreateSessionRequest struct {
	ID       string            `json:"id,omitempty"`
	OwnerRef string            `json:"owner_ref,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageRequest is the body of POST /v1/sessions/{id}/messages.
type MessageRequest struct {
	Text        string   `json:"text"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// HistoryResponse is the body of GET /v1/sessions/{id}/messages.
type HistoryResponse struct {
	SessionID string                 `json:"session_id"`
	Messages  []conversation.Message `json:"messages"`
}

// ProvidersResponse is the body of GET /v1/providers.
type ProvidersResponse struct {
	Ready     bool                     `json:"ready"`
	Providers []routing.ProviderRecord `json:"providers"`
}

// HealthReportRequest is the body of PUT /v1/providers/{name}/health.
type HealthReportRequest struct {
	Healthy bool   `json:"healthy"`
	Reason  string `json:"reason,omitempty"`
}

// MaintenanceRequest is the body of PUT /v1/providers/{name}/maintenance.
type MaintenanceRequest struct {
	Down bool `json:"down"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	sess, err := s.store.CreateSession(r.Context(), conversation.SessionOptions{
		ID:       req.ID,
		OwnerRef: req.OwnerRef,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, err := s.dispatcher.ProcessMessage(r.Context(), r.PathValue("id"), req.Text, dispatch.Options{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	setRateLimitHeaders(w.Header(), res.RateLimit.Limit, res.RateLimit.Remaining, res.RateLimit.ResetAt)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	msgs, err := s.store.GetRecentMessages(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Messages: msgs})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteHistory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProvidersResponse{
		Ready:     s.registry.Ready(),
		Providers: s.registry.Snapshot(),
	})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.providerExists(w, name) {
		return
	}
	var req MaintenanceRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	s.registry.Health().SetMaintenance(name, req.Down)
	s.logger.InfoContext(r.Context(), "provider maintenance changed", "provider", name, "down", req.Down)
	s.handleProviders(w, r)
}

// handleHealthReport stores a reading from an external monitor. It is
// replaced by the next probe once the health TTL expires.
func (s *Server) handleHealthReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.providerExists(w, name) {
		return
	}
	var req HealthReportRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	s.registry.Health().Set(name, req.Healthy, req.Reason)
	s.logger.InfoContext(r.Context(), "provider health reported", "provider", name, "healthy", req.Healthy)
	s.handleProviders(w, r)
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.providerExists(w, name) {
		return
	}
	entry, _ := s.registry.Get(name)
	entry.Breaker.Reset()
	s.registry.Health().Invalidate(name)
	s.logger.InfoContext(r.Context(), "circuit breaker reset by operator", "provider", name)
	s.handleProviders(w, r)
}

func (s *Server) providerExists(w http.ResponseWriter, name string) bool {
	if _, err := s.registry.Get(name); err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    ErrorTypeNotFound,
			Param:   "name",
		}})
		return false
	}
	return true
}

// decodeBody decodes a JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && optional:
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{
			Message: "request body too large",
			Type:    ErrorTypeInvalidRequest,
		}})
		return false
	}
	writeBadRequest(w, "", "invalid JSON body: "+err.Error())
	return false
}
