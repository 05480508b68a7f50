package syncer

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/internal/store"
	"isp-saas.com/routersync/pkg/logger"
)

// Command paths on the device.
const (
	profilePath = "/ppp/profile"
	secretPath  = "/ppp/secret"
	activePath  = "/ppp/active"
)

// Device is the mutating surface the orchestrator pushes through.
// Satisfied by *routeros.Client.
type Device interface {
	Execute(path string, attrs map[string]string, timeout time.Duration) (string, error)
}

// Lister enumerates full device tables. Satisfied by *routeros.BatchReader.
type Lister interface {
	ReadAll(path string, filters []routeros.Filter) ([]routeros.Record, error)
}

// Store is the slice of the local store the orchestrator reconciles against.
type Store interface {
	GetProfile(id int) (*models.ServiceProfile, error)
	GetProfileByName(name string) (*models.ServiceProfile, error)
	GetProfileByRemoteID(remoteID string) (*models.ServiceProfile, error)
	CreateProfile(p *models.ServiceProfile) (int, error)
	ApplyDeviceProfile(p *models.ServiceProfile) error
	SetProfileRemoteID(id int, remoteID string) error

	GetSecretByUsername(username string) (*models.Secret, error)
	GetSecretByRemoteID(remoteID string) (*models.Secret, error)
	CreateSecret(sec *models.Secret) (int, error)
	ApplyDeviceSecret(sec *models.Secret) error
	SetSecretRemoteID(id int, remoteID string) error

	OpenSessionIDs() (map[string]bool, error)
	OpenSession(rec *models.SessionRecord) error
	UpdateOpenSession(sessionID, uptime string, bytesIn, bytesOut int64) error
	CloseSession(sessionID string, at time.Time) error
}

// PullSummary reports what one pull reconciled.
type PullSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// SessionSweep reports what one active-session sweep wrote to the usage log.
type SessionSweep struct {
	Active int `json:"active"`
	Opened int `json:"opened"`
	Closed int `json:"closed"`
}

// Orchestrator reconciles service profiles and secrets between the local
// store and the router, in both directions. Every device call is a single
// attempt; the next local write or operator-initiated sync is the retry.
type Orchestrator struct {
	store   Store
	device  Device
	lister  Lister
	log     *logger.Logger
	timeout time.Duration
}

func New(store Store, device Device, lister Lister, log *logger.Logger, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Orchestrator{store: store, device: device, lister: lister, log: log, timeout: timeout}
}

func profileAttrs(p *models.ServiceProfile) map[string]string {
	attrs := map[string]string{"name": p.Name}
	if p.LocalAddress.Valid {
		attrs["local-address"] = p.LocalAddress.String
	}
	if p.RemoteAddress.Valid {
		attrs["remote-address"] = p.RemoteAddress.String
	}
	if p.RateLimit != "" {
		attrs["rate-limit"] = p.RateLimit
	}
	if p.ParentQueue.Valid {
		attrs["parent-queue"] = p.ParentQueue.String
	}
	return attrs
}

// PushProfile writes a local profile to the device. First contact issues an
// add and binds the returned device id; afterwards the same device object is
// always addressed by that id with set.
func (o *Orchestrator) PushProfile(p *models.ServiceProfile) error {
	attrs := profileAttrs(p)

	if !p.RemoteID.Valid {
		id, err := o.device.Execute(profilePath+"/add", attrs, o.timeout)
		if err != nil {
			return err
		}
		if err := o.store.SetProfileRemoteID(p.ID, id); err != nil {
			return fmt.Errorf("record remote id for profile %d: %w", p.ID, err)
		}
		p.RemoteID = sql.NullString{String: id, Valid: true}
		return nil
	}

	attrs[".id"] = p.RemoteID.String
	_, err := o.device.Execute(profilePath+"/set", attrs, o.timeout)
	return err
}

// DeleteProfileRemote removes the device-side counterpart. Without a remote
// id there is nothing to remove and the call is a no-op.
func (o *Orchestrator) DeleteProfileRemote(p *models.ServiceProfile) error {
	if !p.RemoteID.Valid {
		return nil
	}
	_, err := o.device.Execute(profilePath+"/remove", map[string]string{".id": p.RemoteID.String}, o.timeout)
	return err
}

func (o *Orchestrator) secretAttrs(sec *models.Secret) (map[string]string, error) {
	profile, err := o.store.GetProfile(sec.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("resolve profile %d for secret %q: %w", sec.ProfileID, sec.Username, err)
	}
	return map[string]string{
		"name":     sec.Username,
		"password": sec.Password,
		"service":  sec.Service,
		"profile":  profile.Name,
	}, nil
}

// PushSecret writes a local secret to the device, same add/set discipline as
// PushProfile. The device references profiles by name, so the secret's
// profile row resolves the name first.
func (o *Orchestrator) PushSecret(sec *models.Secret) error {
	attrs, err := o.secretAttrs(sec)
	if err != nil {
		return err
	}

	if !sec.RemoteID.Valid {
		id, err := o.device.Execute(secretPath+"/add", attrs, o.timeout)
		if err != nil {
			return err
		}
		if err := o.store.SetSecretRemoteID(sec.ID, id); err != nil {
			return fmt.Errorf("record remote id for secret %q: %w", sec.Username, err)
		}
		sec.RemoteID = sql.NullString{String: id, Valid: true}
		return nil
	}

	attrs[".id"] = sec.RemoteID.String
	_, err = o.device.Execute(secretPath+"/set", attrs, o.timeout)
	return err
}

func (o *Orchestrator) DeleteSecretRemote(sec *models.Secret) error {
	if !sec.RemoteID.Valid {
		return nil
	}
	_, err := o.device.Execute(secretPath+"/remove", map[string]string{".id": sec.RemoteID.String}, o.timeout)
	return err
}

// PullProfiles imports the device's profile table. Matching is by remote id
// first, then by name for first contact. Device objects with no local match
// become new local rows; local rows absent from the listing are left alone.
// Pull never deletes local data.
func (o *Orchestrator) PullProfiles() (*PullSummary, error) {
	records, err := o.lister.ReadAll(profilePath+"/print", nil)
	if err != nil {
		return nil, err
	}

	summary := &PullSummary{Total: len(records)}
	for _, rec := range records {
		remoteID := rec[".id"]
		name := rec["name"]
		if remoteID == "" || name == "" {
			o.log.Warn("Skipping device profile without id or name", "record", map[string]string(rec))
			continue
		}

		local, err := o.store.GetProfileByRemoteID(remoteID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		if local == nil {
			local, err = o.store.GetProfileByName(name)
			if err != nil && !isNotFound(err) {
				return nil, err
			}
			if local != nil {
				if err := o.store.SetProfileRemoteID(local.ID, remoteID); err != nil {
					return nil, err
				}
			}
		}

		if local == nil {
			created := deviceProfile(rec)
			created.RemoteID = sql.NullString{String: remoteID, Valid: true}
			if _, err := o.store.CreateProfile(created); err != nil {
				return nil, err
			}
			summary.Created++
			continue
		}

		updated := deviceProfile(rec)
		updated.ID = local.ID
		if err := o.store.ApplyDeviceProfile(updated); err != nil {
			return nil, err
		}
		summary.Updated++
	}

	o.log.Info("Profile pull complete", "total", summary.Total,
		"created", summary.Created, "updated", summary.Updated)
	return summary, nil
}

func deviceProfile(rec routeros.Record) *models.ServiceProfile {
	return &models.ServiceProfile{
		Name:          rec["name"],
		LocalAddress:  nullString(rec["local-address"]),
		RemoteAddress: nullString(rec["remote-address"]),
		RateLimit:     rec["rate-limit"],
		ParentQueue:   nullString(rec["parent-queue"]),
		IsActive:      true,
		AutoSync:      true,
	}
}

// PullSecrets imports the device's secret table with the same matching and
// no-delete rules as PullProfiles. Secrets arriving before their profile get
// a minimal local profile row so the reference resolves; a later profile
// pull fleshes it out.
func (o *Orchestrator) PullSecrets() (*PullSummary, error) {
	records, err := o.lister.ReadAll(secretPath+"/print", nil)
	if err != nil {
		return nil, err
	}

	summary := &PullSummary{Total: len(records)}
	for _, rec := range records {
		remoteID := rec[".id"]
		username := rec["name"]
		if remoteID == "" || username == "" {
			o.log.Warn("Skipping device secret without id or name", "record", map[string]string(rec))
			continue
		}

		profileID, err := o.resolveProfileID(rec["profile"])
		if err != nil {
			return nil, err
		}

		local, err := o.store.GetSecretByRemoteID(remoteID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		if local == nil {
			local, err = o.store.GetSecretByUsername(username)
			if err != nil && !isNotFound(err) {
				return nil, err
			}
			if local != nil {
				if err := o.store.SetSecretRemoteID(local.ID, remoteID); err != nil {
					return nil, err
				}
			}
		}

		if local == nil {
			created := &models.Secret{
				Username:  username,
				Password:  rec["password"],
				Service:   rec["service"],
				ProfileID: profileID,
				RemoteID:  sql.NullString{String: remoteID, Valid: true},
				AutoSync:  true,
			}
			if _, err := o.store.CreateSecret(created); err != nil {
				return nil, err
			}
			summary.Created++
			continue
		}

		updated := &models.Secret{
			ID:        local.ID,
			Username:  username,
			Password:  rec["password"],
			Service:   rec["service"],
			ProfileID: profileID,
		}
		if err := o.store.ApplyDeviceSecret(updated); err != nil {
			return nil, err
		}
		summary.Updated++
	}

	o.log.Info("Secret pull complete", "total", summary.Total,
		"created", summary.Created, "updated", summary.Updated)
	return summary, nil
}

func (o *Orchestrator) resolveProfileID(name string) (int, error) {
	if name == "" {
		name = "default"
	}
	profile, err := o.store.GetProfileByName(name)
	if err == nil {
		return profile.ID, nil
	}
	if !isNotFound(err) {
		return 0, err
	}

	id, err := o.store.CreateProfile(&models.ServiceProfile{
		Name:     name,
		IsActive: true,
		AutoSync: true,
	})
	if err != nil {
		return 0, fmt.Errorf("create placeholder profile %q: %w", name, err)
	}
	o.log.Info("Created placeholder profile for pulled secret", "name", name)
	return id, nil
}

// SyncSessions sweeps the live session table into the usage log: rows open
// for sessions the device no longer reports are closed, newly seen sessions
// are opened, still-running ones get fresh counters.
func (o *Orchestrator) SyncSessions() (*SessionSweep, error) {
	records, err := o.lister.ReadAll(activePath+"/print", nil)
	if err != nil {
		return nil, err
	}

	open, err := o.store.OpenSessionIDs()
	if err != nil {
		return nil, err
	}

	sweep := &SessionSweep{Active: len(records)}
	now := time.Now()
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		sessionID := rec[".id"]
		username := rec["name"]
		if sessionID == "" || username == "" {
			continue
		}
		seen[sessionID] = true

		bytesIn := parseInt64(rec["bytes-in"])
		bytesOut := parseInt64(rec["bytes-out"])

		if open[sessionID] {
			if err := o.store.UpdateOpenSession(sessionID, rec["uptime"], bytesIn, bytesOut); err != nil {
				return nil, err
			}
			continue
		}

		err := o.store.OpenSession(&models.SessionRecord{
			Username:    username,
			SessionID:   sessionID,
			CallerID:    rec["caller-id"],
			Uptime:      rec["uptime"],
			BytesIn:     bytesIn,
			BytesOut:    bytesOut,
			ConnectedAt: now,
		})
		if err != nil {
			return nil, err
		}
		sweep.Opened++
	}

	for sessionID := range open {
		if seen[sessionID] {
			continue
		}
		if err := o.store.CloseSession(sessionID, now); err != nil {
			return nil, err
		}
		sweep.Closed++
	}

	o.log.Info("Session sweep complete", "active", sweep.Active,
		"opened", sweep.Opened, "closed", sweep.Closed)
	return sweep, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
