package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/dispatch"
)

// StatusClientClosedRequest is answered when the caller went away before a
// reply was produced.
const StatusClientClosedRequest = 499

// Error types reported in ErrorDetail.Type.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeCanceled           = "request_canceled"
	ErrorTypeServerError        = "server_error"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Param    string `json:"param,omitempty"`
}

// statusFor maps an error to its status code and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorTypeRateLimitExceeded
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound, ErrorTypeNotFound
	case errors.Is(err, conversation.ErrSessionExists):
		return http.StatusConflict, ErrorTypeInvalidRequest
	}

	switch dispatch.Classify(err) {
	case dispatch.CategoryCaller:
		return http.StatusBadRequest, ErrorTypeInvalidRequest
	case dispatch.CategoryExhaustion, dispatch.CategoryProviderTransient:
		return http.StatusServiceUnavailable, ErrorTypeServiceUnavailable
	case dispatch.CategoryCanceled:
		return StatusClientClosedRequest, ErrorTypeCanceled
	default:
		return http.StatusInternalServerError, ErrorTypeServerError
	}
}

// writeError answers with the mapped status. Persistence and internal errors
// are logged and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, typ := statusFor(err)
	detail := ErrorDetail{
		Message:  err.Error(),
		Type:     typ,
		Category: string(dispatch.Classify(err)),
	}

	var ve *dispatch.ValidationError
	if errors.As(err, &ve) {
		detail.Param = ve.Field
	}

	var rl *dispatch.RateLimitError
	if errors.As(err, &rl) {
		setRateLimitHeaders(w.Header(), rl.Limit, rl.Remaining, rl.ResetAt)
		retry := int((rl.RetryAfter + time.Second - 1) / time.Second)
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		detail.Message = "An internal error occurred. Please try again later."
	}

	writeJSON(w, status, ErrorResponse{Error: detail})
}

// writeBadRequest answers 400 for malformed requests that never reach the dispatcher.
func writeBadRequest(w http.ResponseWriter, param, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
		Message:  msg,
		Type:     ErrorTypeInvalidRequest,
		Category: string(dispatch.CategoryCaller),
		Param:    param,
	}})
}

func setRateLimitHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
