package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeValidation  = "validation_error"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInvariant   = "invariant_violation"
	ErrCodeUpstream    = "upstream_unavailable"
	ErrCodeCancelled   = "request_cancelled"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// statusClientClosed is the de facto status for requests the client gave up on.
const statusClientClosed = 499

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best effort; the client may have gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// statusFor maps an error onto an HTTP status and code by its fault kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosed, ErrCodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeUpstream
	case errors.Is(err, fault.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, fault.ErrInvariant):
		return http.StatusConflict, ErrCodeInvariant
	case errors.Is(err, fault.ErrConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, fault.ErrTransport):
		return http.StatusBadGateway, ErrCodeUpstream
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// writeServiceError writes err with the status its kind maps to. Internal
// errors are logged and their text withheld.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"correlation_id", correlationFrom(r.Context()), "error", err)
		msg = "internal server error"
	}
	writeError(w, status, code, msg)
}
