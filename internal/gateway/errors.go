package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"llamad/internal/registry"
	"llamad/internal/supervisor"
	"llamad/pkg/types"
)

// writeError emits the OpenAI-style error envelope.
func writeError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: types.APIError{
		Message: msg,
		Type:    typ,
		Code:    strconv.Itoa(status),
	}})
}

// writeAcquireError maps supervisor and registry failures to HTTP statuses:
// unknown alias 404, queue timeout 429, crash during startup 502, terminal
// crash loop or shutdown 503, readiness timeout 504.
func (s *Server) writeAcquireError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case registry.IsAliasNotFound(err):
		writeError(w, http.StatusNotFound, "model_not_found", err.Error())
	case supervisor.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", err.Error())
	case supervisor.IsStartTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "start_timeout", err.Error())
	case supervisor.IsCrashed(err):
		writeError(w, http.StatusBadGateway, "engine_error", err.Error())
	case errors.Is(err, supervisor.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		backpressureTotal.WithLabelValues("queue_timeout").Inc()
		writeError(w, http.StatusTooManyRequests, "queue_timeout", "request timed out waiting for model capacity")
	case errors.Is(err, context.Canceled):
		// Client went away; there is nobody to answer.
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("acquire failed")
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
