package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"isp-saas.com/routersync/internal/middleware"
	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/internal/store"
)

type ProfileRequest struct {
	Name          string  `json:"name"`
	LocalAddress  string  `json:"local_address"`
	RemoteAddress string  `json:"remote_address"`
	RateLimit     string  `json:"rate_limit"`
	ParentQueue   string  `json:"parent_queue"`
	Price         float64 `json:"price"`
	BillingDay    int     `json:"billing_day"`
	IsActive      *bool   `json:"is_active"`
	AutoSync      *bool   `json:"auto_sync"`
}

func (req *ProfileRequest) apply(p *models.ServiceProfile) {
	p.Name = req.Name
	p.LocalAddress = sql.NullString{String: req.LocalAddress, Valid: req.LocalAddress != ""}
	p.RemoteAddress = sql.NullString{String: req.RemoteAddress, Valid: req.RemoteAddress != ""}
	p.RateLimit = req.RateLimit
	p.ParentQueue = sql.NullString{String: req.ParentQueue, Valid: req.ParentQueue != ""}
	p.Price = req.Price
	p.BillingDay = req.BillingDay
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.AutoSync != nil {
		p.AutoSync = *req.AutoSync
	}
}

func (h *Handler) GetProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListProfiles()
	if err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}
	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: profiles})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	profile, err := h.store.GetProfile(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Profile not found"})
		return
	}
	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: profile})
}

func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r)

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}
	if req.Name == "" {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Name is required"})
		return
	}

	profile := &models.ServiceProfile{IsActive: true, AutoSync: true}
	req.apply(profile)

	id, err := h.store.CreateProfile(profile)
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Failed to create profile. Name may already exist."})
		return
	}
	profile.ID = id

	// The local write is committed; the push outcome is informational only.
	outcome := h.trigger.ProfileSaved(profile)

	h.logger.Info("Profile created", "id", id, "name", req.Name, "by", claims.UserID)
	h.sendJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Profile created successfully",
		Data:    map[string]interface{}{"id": id, "sync": syncOutcome(outcome)},
	})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	profile, err := h.store.GetProfile(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Profile not found"})
		return
	}

	if req.Name == "" {
		req.Name = profile.Name
	}
	req.apply(profile)

	if err := h.store.UpdateProfile(profile); err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to update profile"})
		return
	}

	outcome := h.trigger.ProfileSaved(profile)

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Profile updated successfully",
		Data:    map[string]interface{}{"sync": syncOutcome(outcome)},
	})
}

func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
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

	profile, err := h.store.GetProfile(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Profile not found"})
		return
	}

	if err := h.store.DeleteProfile(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Profile not found"})
			return
		}
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to delete profile"})
		return
	}

	outcome := h.trigger.ProfileDeleted(profile)

	h.logger.Info("Profile deleted", "id", id, "by", claims.UserID)
	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Profile deleted successfully",
		Data:    map[string]interface{}{"sync": syncOutcome(outcome)},
	})
}

// PushProfile is the operator-initiated push: unlike the trigger it reports
// failures instead of absorbing them.
func (h *Handler) PushProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid id"})
		return
	}

	profile, err := h.store.GetProfile(id)
	if err != nil {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Profile not found"})
		return
	}

	if err := h.ensureConnected(); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}
	if err := h.orch.PushProfile(profile); err != nil {
		h.sendJSON(w, http.StatusBadGateway, Response{Success: false, Error: err.Error()})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Profile pushed to router",
		Data:    map[string]string{"remote_id": profile.RemoteID.String},
	})
}
