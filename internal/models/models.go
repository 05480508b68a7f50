package models

import (
	"database/sql"
	"time"
)

// ConnectionProfile is one saved way to reach the router. At most one row
// has is_active set; "connected" is derived from the timestamps, never
// stored as its own flag.
type ConnectionProfile struct {
	ID                 int          `json:"id"`
	Name               string       `json:"name"`
	Host               string       `json:"host"`
	Port               int          `json:"port"`
	Username           string       `json:"username"`
	Password           string       `json:"-"`
	UseTLS             bool         `json:"use_tls"`
	IsActive           bool         `json:"is_active"`
	LastConnectedAt    sql.NullTime `json:"last_connected_at"`
	LastDisconnectedAt sql.NullTime `json:"last_disconnected_at"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// ConnectedRecency bounds how old a last-connected timestamp may be before
// the profile no longer counts as connected.
const ConnectedRecency = 5 * time.Minute

func (p *ConnectionProfile) Connected() bool {
	if !p.IsActive || !p.LastConnectedAt.Valid {
		return false
	}
	if p.LastDisconnectedAt.Valid && p.LastDisconnectedAt.Time.After(p.LastConnectedAt.Time) {
		return false
	}
	return time.Since(p.LastConnectedAt.Time) < ConnectedRecency
}

// ServiceProfile is a rate plan. Name doubles as the identifier on the
// router; RemoteID stays NULL until the first successful push or pull and
// is set exactly once per device object.
type ServiceProfile struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	LocalAddress  sql.NullString  `json:"local_address"`
	RemoteAddress sql.NullString  `json:"remote_address"`
	RateLimit     string          `json:"rate_limit"`
	ParentQueue   sql.NullString  `json:"parent_queue"`
	Price         float64         `json:"price"`
	BillingDay    int             `json:"billing_day"`
	IsActive      bool            `json:"is_active"`
	RemoteID      sql.NullString  `json:"remote_id"`
	AutoSync      bool            `json:"auto_sync"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Secret is a subscriber credential. Username doubles as the identifier on
// the router. OriginalProfileID is only ever non-NULL while the subscriber
// is suspended, so restoration is exact.
type Secret struct {
	ID                int            `json:"id"`
	Username          string         `json:"username"`
	Password          string         `json:"-"`
	Service           string         `json:"service"`
	ProfileID         int            `json:"profile_id"`
	OriginalProfileID sql.NullInt64  `json:"original_profile_id"`
	RemoteID          sql.NullString `json:"remote_id"`
	AutoSync          bool           `json:"auto_sync"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (s *Secret) Suspended() bool {
	return s.OriginalProfileID.Valid
}

// SessionRecord is one observed connection in the usage log. Append-only:
// once DisconnectedAt is set the row is closed and never mutated again.
type SessionRecord struct {
	ID             int          `json:"id"`
	Username       string       `json:"username"`
	SessionID      string       `json:"session_id"`
	CallerID       string       `json:"caller_id"`
	Uptime         string       `json:"uptime"`
	BytesIn        int64        `json:"bytes_in"`
	BytesOut       int64        `json:"bytes_out"`
	ConnectedAt    time.Time    `json:"connected_at"`
	DisconnectedAt sql.NullTime `json:"disconnected_at"`
}
