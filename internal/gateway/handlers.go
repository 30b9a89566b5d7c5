package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"llamad/internal/supervisor"
	"llamad/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleListModels serves GET /v1/models from the alias registry.
//
// @Summary  List models
// @Produce  json
// @Success  200 {object} types.OpenAIModelList
// @Router   /v1/models [get]
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	aliases := s.registry.List()
	out := types.OpenAIModelList{Object: "list", Data: make([]types.OpenAIModel, 0, len(aliases))}
	for _, a := range aliases {
		out.Data = append(out.Data, s.modelFor(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetModel serves GET /v1/models/{id}.
//
// @Summary  Get one model
// @Produce  json
// @Param    id path string true "model alias"
// @Success  200 {object} types.OpenAIModel
// @Failure  404 {object} types.ErrorResponse
// @Router   /v1/models/{id} [get]
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.registry.Resolve(id)
	if err != nil {
		s.writeAcquireError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.modelFor(a))
}

func (s *Server) modelFor(a types.Alias) types.OpenAIModel {
	return types.OpenAIModel{
		ID:      a.Alias,
		Object:  "model",
		Created: s.registry.UpdatedAt(a.Alias).Unix(),
		OwnedBy: "llamad",
	}
}

// handleStatus serves GET /status: the supervisor's handle table plus
// daemon-level facts.
//
// @Summary  Daemon status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{
		Handles:        s.pool.Handles(),
		MaxReady:       s.pool.MaxReady(),
		Variant:        s.cfg.Variant,
		Aliases:        s.registry.Len(),
		UptimeSeconds:  int64(s.pool.Uptime().Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("starting"))
}

// handleResetAlias serves POST /admin/aliases/{alias}/reset, clearing a
// crash-looped alias back to a startable state.
func (s *Server) handleResetAlias(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if _, err := s.registry.Resolve(alias); err != nil {
		s.writeAcquireError(w, r, err)
		return
	}
	if err := s.pool.Reset(alias); err != nil && !supervisor.IsNotRunning(err) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "alias": alias})
}

// handleStopAlias serves POST /admin/aliases/{alias}/stop.
func (s *Server) handleStopAlias(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if _, err := s.registry.Resolve(alias); err != nil {
		s.writeAcquireError(w, r, err)
		return
	}
	if err := s.pool.StopAlias(r.Context(), alias); err != nil {
		if supervisor.IsNotRunning(err) {
			writeError(w, http.StatusConflict, "not_running", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "alias": alias})
}

// handleEvents serves GET /admin/events: the recent lifecycle event ring.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := []supervisor.Event{}
	if s.events != nil {
		events = s.events.Recent()
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
