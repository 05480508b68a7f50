package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"isp-saas.com/routersync/internal/middleware"
	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/internal/store"
)

type ConnectionProfileRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseTLS   bool   `json:"use_tls"`
}

func (h *Handler) GetConnectionProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListConnectionProfiles()
	if err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}
	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: profiles})
}

func (h *Handler) GetConnectionProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	profile, err := h.store.GetConnectionProfile(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Connection profile not found"})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: map[string]interface{}{
		"profile":   profile,
		"connected": profile.Connected(),
	}})
}

func (h *Handler) CreateConnectionProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)

	var req ConnectionProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	if req.Host == "" || req.Username == "" {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Host and username are required"})
		return
	}
	if req.Port == 0 {
		req.Port = 8728
		if req.UseTLS {
			req.Port = 8729
		}
	}
	if req.Name == "" {
		req.Name = req.Host
	}

	id, err := h.store.CreateConnectionProfile(connectionProfileFromRequest(&req))
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Failed to create connection profile"})
		return
	}

	h.logger.Info("Connection profile created", "id", id, "host", req.Host, "by", claims.UserID)
	h.sendJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Connection profile created successfully",
		Data:    map[string]int{"id": id},
	})
}

func (h *Handler) UpdateConnectionProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	var req ConnectionProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	profile := connectionProfileFromRequest(&req)
	profile.ID = id
	if err := h.store.UpdateConnectionProfile(profile); err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to update connection profile"})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Connection profile updated successfully"})
}

func (h *Handler) ActivateConnectionProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)
	if claims.Role != "admin" {
		h.sendJSON(w, http.StatusForbidden, Response{Success: false, Error: "Admin access required"})
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	if err := h.store.ActivateConnectionProfile(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Connection profile not found"})
			return
		}
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to activate connection profile"})
		return
	}

	// Session still points at the previous device until it is reopened.
	h.conn.Disconnect()

	h.logger.Info("Connection profile activated", "id", id, "by", claims.UserID)
	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Connection profile activated successfully"})
}

// TestConnectionProfile runs a throwaway connect/disconnect probe against a
// stored profile, without touching the shared session. Backs the settings
// screen's "test" button.
func (h *Handler) TestConnectionProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	profile, err := h.store.GetConnectionProfile(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Connection profile not found"})
		return
	}

	if err := routeros.Probe(dialConfig(profile, h.dialTimeout), h.logger); err != nil {
		h.sendJSON(w, http.StatusOK, Response{
			Success: false,
			Error:   err.Error(),
			Data:    map[string]string{"result": classifyProbeError(err)},
		})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Connection test passed",
		Data:    map[string]string{"result": "ok"},
	})
}

func (h *Handler) ConnectRouter(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}
	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Router session established"})
}

func (h *Handler) DisconnectRouter(w http.ResponseWriter, r *http.Request) {
	h.conn.Disconnect()
	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Router session closed"})
}

func (h *Handler) RouterHealth(w http.ResponseWriter, r *http.Request) {
	healthy := h.conn.IsHealthy()
	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: map[string]bool{"healthy": healthy}})
}

func connectionProfileFromRequest(req *ConnectionProfileRequest) *models.ConnectionProfile {
	return &models.ConnectionProfile{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		UseTLS:   req.UseTLS,
	}
}

func classifyProbeError(err error) string {
	switch {
	case errors.Is(err, routeros.ErrAuth):
		return "auth-rejected"
	case errors.Is(err, routeros.ErrTimeout):
		return "timeout"
	case errors.Is(err, routeros.ErrProtocol):
		return "protocol-error"
	default:
		return "unreachable"
	}
}
