package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"isp-saas.com/routersync/internal/middleware"
	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/internal/store"
)

type SecretRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Service   string `json:"service"`
	ProfileID int    `json:"profile_id"`
	AutoSync  *bool  `json:"auto_sync"`
}

type SuspendRequest struct {
	SuspendProfileID int `json:"suspend_profile_id"`
}

func (h *Handler) GetSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := h.store.ListSecrets()
	if err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}
	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: secrets})
}

func (h *Handler) GetSecret(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Secret not found"})
		return
	}
	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: map[string]interface{}{
		"secret":    secret,
		"suspended": secret.Suspended(),
	}})
}

func (h *Handler) CreateSecret(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)

	var req SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" || req.ProfileID == 0 {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Username, password, and profile_id are required"})
		return
	}
	if req.Service == "" {
		req.Service = "pppoe"
	}

	secret := &models.Secret{
		Username:  req.Username,
		Password:  req.Password,
		Service:   req.Service,
		ProfileID: req.ProfileID,
		AutoSync:  true,
	}
	if req.AutoSync != nil {
		secret.AutoSync = *req.AutoSync
	}

	id, err := h.store.CreateSecret(secret)
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Failed to create secret. Username may already exist."})
		return
	}
	secret.ID = id

	outcome := h.trigger.SecretSaved(secret)

	h.logger.Info("Secret created", "id", id, "username", req.Username, "by", claims.UserID)
	h.sendJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Secret created successfully",
		Data:    map[string]interface{}{"id": id, "sync": syncOutcome(outcome)},
	})
}

func (h *Handler) UpdateSecret(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	var req SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Secret not found"})
		return
	}

	if req.Username != "" {
		secret.Username = req.Username
	}
	if req.Password != "" {
		secret.Password = req.Password
	}
	if req.Service != "" {
		secret.Service = req.Service
	}
	if req.ProfileID != 0 {
		if secret.Suspended() {
			h.sendJSON(w, http.StatusConflict, Response{Success: false, Error: "Cannot change profile while suspended"})
			return
		}
		secret.ProfileID = req.ProfileID
	}
	if req.AutoSync != nil {
		secret.AutoSync = *req.AutoSync
	}

	if err := h.store.UpdateSecret(secret); err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to update secret"})
		return
	}

	outcome := h.trigger.SecretSaved(secret)

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Secret updated successfully",
		Data:    map[string]interface{}{"sync": syncOutcome(outcome)},
	})
}

func (h *Handler) SuspendSecret(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	var req SuspendRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	suspendProfileID := req.SuspendProfileID
	if suspendProfileID == 0 {
		suspendProfile, err := h.store.GetProfileByName("suspended")
		if err != nil {
			h.sendJSON(w, http.StatusBadRequest, Response{Success: false,
				Error: "No suspend_profile_id given and no profile named 'suspended' exists"})
			return
		}
		suspendProfileID = suspendProfile.ID
	}

	if err := h.store.SuspendSecret(id, suspendProfileID); err != nil {
		h.sendJSON(w, http.StatusConflict, Response{Success: false, Error: err.Error()})
		return
	}

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}

	outcome := h.trigger.SecretSaved(secret)

	h.logger.Info("Secret suspended", "id", id, "by", claims.UserID)
	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Secret suspended successfully",
		Data:    map[string]interface{}{"sync": syncOutcome(outcome)},
	})
}

func (h *Handler) RestoreSecret(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	if err := h.store.RestoreSecret(id); err != nil {
		h.sendJSON(w, http.StatusConflict, Response{Success: false, Error: err.Error()})
		return
	}

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}

	outcome := h.trigger.SecretSaved(secret)

	h.logger.Info("Secret restored", "id", id, "by", claims.UserID)
	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Secret restored successfully",
		Data:    map[string]interface{}{"sync": syncOutcome(outcome)},
	})
}

func (h *Handler) DeleteSecret(w http.ResponseWriter, r *http.Request) {
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

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Secret not found"})
		return
	}

	// The remote counterpart goes first; the local row only falls once the
	// router no longer knows the subscriber.
	if secret.RemoteID.Valid {
		if err := h.ensureConnected(); err != nil {
			h.sendJSON(w, http.StatusBadGateway, Response{Success: false,
				Error: "Router unreachable; remote secret must be removed before local delete"})
			return
		}
		if err := h.orch.DeleteSecretRemote(secret); err != nil {
			h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
			return
		}
	}

	if err := h.store.DeleteSecret(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Secret not found"})
			return
		}
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to delete secret"})
		return
	}

	h.logger.Info("Secret deleted", "id", id, "username", secret.Username, "by", claims.UserID)
	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: "Secret deleted successfully"})
}

// PushSecret is the operator-initiated push: unlike the trigger it reports
// failures instead of absorbing them.
func (h *Handler) PushSecret(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Secret not found"})
		return
	}

	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}
	if err := h.orch.PushSecret(secret); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Secret pushed to router",
		Data:    map[string]string{"remote_id": secret.RemoteID.String},
	})
}

func (h *Handler) GetSecretSessions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	secret, err := h.store.GetSecret(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Secret not found"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.store.ListSessionsForUsername(secret.Username, limit)
	if err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: sessions})
}
