package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/internal/status"
	"isp-saas.com/routersync/internal/store"
	"isp-saas.com/routersync/internal/syncer"
	"isp-saas.com/routersync/pkg/database"
	"isp-saas.com/routersync/pkg/logger"
)

type Handler struct {
	db      *database.DB
	store   *store.Store
	conn    *routeros.Manager
	orch    *syncer.Orchestrator
	trigger *syncer.Trigger
	status  *status.Cache
	logger  *logger.Logger

	dialTimeout time.Duration
}

func New(db *database.DB, st *store.Store, conn *routeros.Manager, orch *syncer.Orchestrator,
	trigger *syncer.Trigger, statusCache *status.Cache, l *logger.Logger, dialTimeout time.Duration) *Handler {
	return &Handler{
		db:          db,
		store:       st,
		conn:        conn,
		orch:        orch,
		trigger:     trigger,
		status:      statusCache,
		logger:      l,
		dialTimeout: dialTimeout,
	}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var dbStatus string
	if err := h.db.Ping(); err != nil {
		dbStatus = "disconnected"
	} else {
		dbStatus = "connected"
	}

	routerStatus := "disconnected"
	if h.conn.IsHealthy() {
		routerStatus = "connected"
	}

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Router Sync Engine API is running",
		Data: map[string]interface{}{
			"version":   "1.0.0",
			"timestamp": time.Now().Format(time.RFC3339),
			"database":  dbStatus,
			"router":    routerStatus,
		},
	})
}

func dialConfig(p *models.ConnectionProfile, timeout time.Duration) routeros.DialConfig {
	return routeros.DialConfig{
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Password: p.Password,
		UseTLS:   p.UseTLS,
		Timeout:  timeout,
	}
}

// ensureConnected opens the shared session from the active connection
// profile if it is not already healthy. Operator-initiated sync and status
// calls go through here; the auto-sync trigger deliberately does not, it
// only fires when the session is already up.
func (h *Handler) ensureConnected() error {
	if h.conn.IsHealthy() {
		return nil
	}
	profile, err := h.store.ActiveConnectionProfile()
	if err != nil {
		return err
	}
	return h.conn.Connect(dialConfig(profile, h.dialTimeout))
}

// syncOutcome shapes a trigger outcome for inclusion in write responses, so
// the "intentionally ignored" contract is visible to API consumers too.
func syncOutcome(out syncer.Outcome) map[string]interface{} {
	data := map[string]interface{}{
		"attempted": out.Attempted,
		"synced":    out.Synced(),
	}
	if out.SkipReason != "" {
		data["skip_reason"] = out.SkipReason
	}
	if out.Err != nil {
		data["error"] = out.Err.Error()
	}
	return data
}
