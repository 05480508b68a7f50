package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"isp-saas.com/routersync/internal/middleware"
)

// PullEntities is the operator-initiated pull: enumerate a device table and
// reconcile it into the local store. Pull creates and updates local rows but
// never deletes them.
func (h *Handler) PullEntities(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)
	kind := mux.Vars(r)["kind"]

	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	switch kind {
	case "profiles":
		summary, err := h.orch.PullProfiles()
		if err != nil {
			h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
			return
		}
		h.logger.Info("Profiles pulled", "by", claims.UserID, "total", summary.Total)
		h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Profiles pulled from router", Data: summary})
	case "secrets":
		summary, err := h.orch.PullSecrets()
		if err != nil {
			h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
			return
		}
		h.logger.Info("Secrets pulled", "by", claims.UserID, "total", summary.Total)
		h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Secrets pulled from router", Data: summary})
	default:
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Unknown kind. Use 'profiles' or 'secrets'."})
	}
}

// SyncSessions sweeps the live session table into the usage log.
func (h *Handler) SyncSessions(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	sweep, err := h.orch.SyncSessions()
	if err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Session log updated", Data: sweep})
}
