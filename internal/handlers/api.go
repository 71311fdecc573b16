package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
)

// APIHandler serves the process-level endpoints.
type APIHandler struct {
	logger arbor.ILogger
}

func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{logger: logger}
}

func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, common.CurrentBuild())
}

// HealthHandler reports uptime and the number of background runs in flight.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"uptime_seconds":   int64(common.Uptime().Seconds()),
		"background_tasks": common.GetGoroutineCount(),
	})
}

func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug().Str("path", r.URL.Path).Msg("No route")
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": "not found",
		"path":  r.URL.Path,
	})
}
