package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"isp-saas.com/routersync/internal/routeros"
)

// GetStatus serves the dashboard's per-subscriber status. The cache is
// consulted first, so a warm entry costs no router call at all and still
// answers while the session is down; only a miss opens the session.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	result, err := h.status.Status(username)
	if errors.Is(err, routeros.ErrConnection) {
		if cerr := h.ensureConnected(); cerr != nil {
			h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: cerr.Error()})
			return
		}
		result, err = h.status.Status(username)
	}
	if err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

func (h *Handler) ForceRefreshStatus(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	result, err := h.status.ForceRefresh(username)
	if err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

// AggressiveRefreshStatus is the troubleshooting path: one direct query with
// the extended timeout, no cache involved. A timeout comes back as a
// "timeout" status with guidance, not as an error.
func (h *Handler) AggressiveRefreshStatus(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	result, err := h.status.AggressiveRefresh(username)
	if err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: result})
}
