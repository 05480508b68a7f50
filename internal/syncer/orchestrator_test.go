package syncer

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/internal/store"
	"isp-saas.com/routersync/pkg/logger"
)

type deviceCall struct {
	path  string
	attrs map[string]string
}

type fakeDevice struct {
	calls  []deviceCall
	nextID string
	err    error
}

func (d *fakeDevice) Execute(path string, attrs map[string]string, timeout time.Duration) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.calls = append(d.calls, deviceCall{path: path, attrs: attrs})
	if id := attrs[".id"]; id != "" {
		return id, nil
	}
	return d.nextID, nil
}

type fakeLister struct {
	records map[string][]routeros.Record
	err     error
}

func (l *fakeLister) ReadAll(path string, filters []routeros.Filter) ([]routeros.Record, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.records[path], nil
}

type fakeStore struct {
	profiles map[int]*models.ServiceProfile
	secrets  map[int]*models.Secret
	nextID   int

	open    map[string]bool
	opened  []models.SessionRecord
	updated []string
	closed  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[int]*models.ServiceProfile),
		secrets:  make(map[int]*models.Secret),
		open:     make(map[string]bool),
		nextID:   1,
	}
}

func (s *fakeStore) addProfile(p models.ServiceProfile) *models.ServiceProfile {
	p.ID = s.nextID
	s.nextID++
	s.profiles[p.ID] = &p
	return &p
}

func (s *fakeStore) addSecret(sec models.Secret) *models.Secret {
	sec.ID = s.nextID
	s.nextID++
	s.secrets[sec.ID] = &sec
	return &sec
}

func (s *fakeStore) GetProfile(id int) (*models.ServiceProfile, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) GetProfileByName(name string) (*models.ServiceProfile, error) {
	for _, p := range s.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) GetProfileByRemoteID(remoteID string) (*models.ServiceProfile, error) {
	for _, p := range s.profiles {
		if p.RemoteID.Valid && p.RemoteID.String == remoteID {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) CreateProfile(p *models.ServiceProfile) (int, error) {
	created := s.addProfile(*p)
	return created.ID, nil
}

func (s *fakeStore) ApplyDeviceProfile(p *models.ServiceProfile) error {
	existing, ok := s.profiles[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Name = p.Name
	existing.LocalAddress = p.LocalAddress
	existing.RemoteAddress = p.RemoteAddress
	existing.RateLimit = p.RateLimit
	existing.ParentQueue = p.ParentQueue
	return nil
}

func (s *fakeStore) SetProfileRemoteID(id int, remoteID string) error {
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.RemoteID.Valid && p.RemoteID.String != remoteID {
		return fmt.Errorf("profile %d already bound", id)
	}
	p.RemoteID = sql.NullString{String: remoteID, Valid: true}
	return nil
}

func (s *fakeStore) GetSecretByUsername(username string) (*models.Secret, error) {
	for _, sec := range s.secrets {
		if sec.Username == username {
			return sec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) GetSecretByRemoteID(remoteID string) (*models.Secret, error) {
	for _, sec := range s.secrets {
		if sec.RemoteID.Valid && sec.RemoteID.String == remoteID {
			return sec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) CreateSecret(sec *models.Secret) (int, error) {
	created := s.addSecret(*sec)
	return created.ID, nil
}

func (s *fakeStore) ApplyDeviceSecret(sec *models.Secret) error {
	existing, ok := s.secrets[sec.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Username = sec.Username
	existing.Password = sec.Password
	existing.Service = sec.Service
	existing.ProfileID = sec.ProfileID
	return nil
}

func (s *fakeStore) SetSecretRemoteID(id int, remoteID string) error {
	sec, ok := s.secrets[id]
	if !ok {
		return store.ErrNotFound
	}
	if sec.RemoteID.Valid && sec.RemoteID.String != remoteID {
		return fmt.Errorf("secret %d already bound", id)
	}
	sec.RemoteID = sql.NullString{String: remoteID, Valid: true}
	return nil
}

func (s *fakeStore) OpenSessionIDs() (map[string]bool, error) {
	out := make(map[string]bool, len(s.open))
	for id := range s.open {
		out[id] = true
	}
	return out, nil
}

func (s *fakeStore) OpenSession(rec *models.SessionRecord) error {
	s.open[rec.SessionID] = true
	s.opened = append(s.opened, *rec)
	return nil
}

func (s *fakeStore) UpdateOpenSession(sessionID, uptime string, bytesIn, bytesOut int64) error {
	s.updated = append(s.updated, sessionID)
	return nil
}

func (s *fakeStore) CloseSession(sessionID string, at time.Time) error {
	delete(s.open, sessionID)
	s.closed = append(s.closed, sessionID)
	return nil
}

func newOrchestrator(st Store, device Device, lister Lister) *Orchestrator {
	return New(st, device, lister, logger.New(), time.Second)
}

func TestPushProfileAddThenSet(t *testing.T) {
	st := newFakeStore()
	device := &fakeDevice{nextID: "*A1"}
	orch := newOrchestrator(st, device, nil)

	profile := st.addProfile(models.ServiceProfile{Name: "gold", RateLimit: "10M/2M", AutoSync: true})

	require.NoError(t, orch.PushProfile(profile))
	require.Len(t, device.calls, 1)
	assert.Equal(t, "/ppp/profile/add", device.calls[0].path)
	assert.Equal(t, "gold", device.calls[0].attrs["name"])
	assert.Equal(t, "10M/2M", device.calls[0].attrs["rate-limit"])

	// First contact bound the device id, locally and on the passed record.
	assert.Equal(t, "*A1", st.profiles[profile.ID].RemoteID.String)
	assert.True(t, profile.RemoteID.Valid)

	// A second push must address the same device object with set, never add.
	require.NoError(t, orch.PushProfile(profile))
	require.Len(t, device.calls, 2)
	assert.Equal(t, "/ppp/profile/set", device.calls[1].path)
	assert.Equal(t, "*A1", device.calls[1].attrs[".id"])
}

func TestPushProfileFailureLeavesRemoteIDNull(t *testing.T) {
	st := newFakeStore()
	device := &fakeDevice{err: fmt.Errorf("execute: %w", routeros.ErrTimeout)}
	orch := newOrchestrator(st, device, nil)

	profile := st.addProfile(models.ServiceProfile{Name: "gold"})

	err := orch.PushProfile(profile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, routeros.ErrTimeout))
	assert.False(t, st.profiles[profile.ID].RemoteID.Valid)
}

func TestPushSecretResolvesProfileName(t *testing.T) {
	st := newFakeStore()
	device := &fakeDevice{nextID: "*B7"}
	orch := newOrchestrator(st, device, nil)

	gold := st.addProfile(models.ServiceProfile{Name: "gold"})
	alice := st.addSecret(models.Secret{
		Username: "alice", Password: "pw", Service: "pppoe", ProfileID: gold.ID, AutoSync: true,
	})

	require.NoError(t, orch.PushSecret(alice))
	require.Len(t, device.calls, 1)
	assert.Equal(t, "/ppp/secret/add", device.calls[0].path)
	assert.Equal(t, "alice", device.calls[0].attrs["name"])
	assert.Equal(t, "gold", device.calls[0].attrs["profile"])
	assert.Equal(t, "*B7", st.secrets[alice.ID].RemoteID.String)
}

func TestDeleteSkipsWithoutRemoteID(t *testing.T) {
	st := newFakeStore()
	device := &fakeDevice{}
	orch := newOrchestrator(st, device, nil)

	profile := st.addProfile(models.ServiceProfile{Name: "gold"})
	secret := st.addSecret(models.Secret{Username: "alice", ProfileID: profile.ID})

	require.NoError(t, orch.DeleteProfileRemote(profile))
	require.NoError(t, orch.DeleteSecretRemote(secret))
	assert.Empty(t, device.calls)
}

func TestDeleteRemovesByRemoteID(t *testing.T) {
	st := newFakeStore()
	device := &fakeDevice{}
	orch := newOrchestrator(st, device, nil)

	profile := st.addProfile(models.ServiceProfile{
		Name:     "gold",
		RemoteID: sql.NullString{String: "*A1", Valid: true},
	})

	require.NoError(t, orch.DeleteProfileRemote(profile))
	require.Len(t, device.calls, 1)
	assert.Equal(t, "/ppp/profile/remove", device.calls[0].path)
	assert.Equal(t, "*A1", device.calls[0].attrs[".id"])
}

func TestPullProfilesMatchesCreatesAndNeverDeletes(t *testing.T) {
	st := newFakeStore()

	// Bound by remote id under an outdated name: the device's name wins.
	bound := st.addProfile(models.ServiceProfile{
		Name:     "old-gold",
		RemoteID: sql.NullString{String: "*A1", Valid: true},
	})
	// Known by name only: first contact adopts the device id.
	byName := st.addProfile(models.ServiceProfile{Name: "silver"})
	// Local-only: the device does not report it; pull must leave it alone.
	localOnly := st.addProfile(models.ServiceProfile{Name: "draft-plan"})

	lister := &fakeLister{records: map[string][]routeros.Record{
		"/ppp/profile/print": {
			{".id": "*A1", "name": "gold", "rate-limit": "20M/5M"},
			{".id": "*A2", "name": "silver", "rate-limit": "5M/1M"},
			{".id": "*A3", "name": "bronze", "rate-limit": "1M/256k"},
		},
	}}
	orch := newOrchestrator(st, &fakeDevice{}, lister)

	summary, err := orch.PullProfiles()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 2, summary.Updated)

	assert.Equal(t, "gold", st.profiles[bound.ID].Name)
	assert.Equal(t, "20M/5M", st.profiles[bound.ID].RateLimit)
	assert.Equal(t, "*A2", st.profiles[byName.ID].RemoteID.String)

	_, err = st.GetProfileByName("bronze")
	require.NoError(t, err)

	// The unmatched local row survived the pull untouched.
	assert.Equal(t, "draft-plan", st.profiles[localOnly.ID].Name)
	assert.False(t, st.profiles[localOnly.ID].RemoteID.Valid)
}

func TestPullProfilesEmptyListingIsNotDataLoss(t *testing.T) {
	st := newFakeStore()
	st.addProfile(models.ServiceProfile{Name: "gold", RemoteID: sql.NullString{String: "*A1", Valid: true}})
	st.addProfile(models.ServiceProfile{Name: "silver"})

	lister := &fakeLister{records: map[string][]routeros.Record{}}
	orch := newOrchestrator(st, &fakeDevice{}, lister)

	summary, err := orch.PullProfiles()
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Len(t, st.profiles, 2)
}

func TestPullSecretsCreatesPlaceholderProfile(t *testing.T) {
	st := newFakeStore()
	lister := &fakeLister{records: map[string][]routeros.Record{
		"/ppp/secret/print": {
			{".id": "*B1", "name": "alice", "password": "pw", "service": "pppoe", "profile": "gold"},
		},
	}}
	orch := newOrchestrator(st, &fakeDevice{}, lister)

	summary, err := orch.PullSecrets()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	gold, err := st.GetProfileByName("gold")
	require.NoError(t, err)

	alice, err := st.GetSecretByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, gold.ID, alice.ProfileID)
	assert.Equal(t, "*B1", alice.RemoteID.String)
	assert.True(t, alice.AutoSync)
}

func TestPullSecretsAdoptsByUsername(t *testing.T) {
	st := newFakeStore()
	gold := st.addProfile(models.ServiceProfile{Name: "gold"})
	alice := st.addSecret(models.Secret{Username: "alice", Password: "old", ProfileID: gold.ID})

	lister := &fakeLister{records: map[string][]routeros.Record{
		"/ppp/secret/print": {
			{".id": "*B1", "name": "alice", "password": "new", "service": "pppoe", "profile": "gold"},
		},
	}}
	orch := newOrchestrator(st, &fakeDevice{}, lister)

	summary, err := orch.PullSecrets()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, "*B1", st.secrets[alice.ID].RemoteID.String)
	assert.Equal(t, "new", st.secrets[alice.ID].Password)
}

func TestPullAbortsOnListingFailure(t *testing.T) {
	st := newFakeStore()
	st.addProfile(models.ServiceProfile{Name: "gold"})

	lister := &fakeLister{err: fmt.Errorf("read window: %w", routeros.ErrTimeout)}
	orch := newOrchestrator(st, &fakeDevice{}, lister)

	_, err := orch.PullProfiles()
	require.Error(t, err)
	assert.True(t, errors.Is(err, routeros.ErrTimeout))
	assert.Len(t, st.profiles, 1)
}

func TestSyncSessionsOpensUpdatesAndCloses(t *testing.T) {
	st := newFakeStore()
	st.open["*S1"] = true
	st.open["*S2"] = true

	lister := &fakeLister{records: map[string][]routeros.Record{
		"/ppp/active/print": {
			{".id": "*S2", "name": "alice", "uptime": "2h3m", "bytes-in": "1024", "bytes-out": "2048"},
			{".id": "*S3", "name": "bob", "caller-id": "AA:BB:CC:DD:EE:FF", "uptime": "5s"},
		},
	}}
	orch := newOrchestrator(st, &fakeDevice{}, lister)

	sweep, err := orch.SyncSessions()
	require.NoError(t, err)
	assert.Equal(t, 2, sweep.Active)
	assert.Equal(t, 1, sweep.Opened)
	assert.Equal(t, 1, sweep.Closed)

	assert.Equal(t, []string{"*S2"}, st.updated)
	assert.Equal(t, []string{"*S1"}, st.closed)
	require.Len(t, st.opened, 1)
	assert.Equal(t, "bob", st.opened[0].Username)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", st.opened[0].CallerID)
}
