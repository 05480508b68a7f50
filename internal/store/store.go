package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/pkg/database"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrNoActiveConnection is returned when no connection profile is active.
var ErrNoActiveConnection = errors.New("no active connection profile")

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

const connectionProfileColumns = `
	id, name, host, port, username, password, use_tls, is_active,
	last_connected_at, last_disconnected_at, created_at, updated_at
`

func scanConnectionProfile(row *sql.Row) (*models.ConnectionProfile, error) {
	var p models.ConnectionProfile
	err := row.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Username, &p.Password,
		&p.UseTLS, &p.IsActive, &p.LastConnectedAt, &p.LastDisconnectedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection profile: %w", err)
	}
	return &p, nil
}

// ActiveConnectionProfile returns the single profile with the activity flag
// set. Every component that reaches the router goes through this lookup.
func (s *Store) ActiveConnectionProfile() (*models.ConnectionProfile, error) {
	p, err := scanConnectionProfile(s.db.QueryRow(
		"SELECT " + connectionProfileColumns + " FROM connection_profiles WHERE is_active = true",
	))
	if err == ErrNotFound {
		return nil, ErrNoActiveConnection
	}
	return p, err
}

func (s *Store) GetConnectionProfile(id int) (*models.ConnectionProfile, error) {
	return scanConnectionProfile(s.db.QueryRow(
		"SELECT "+connectionProfileColumns+" FROM connection_profiles WHERE id = $1", id,
	))
}

func (s *Store) ListConnectionProfiles() ([]models.ConnectionProfile, error) {
	rows, err := s.db.Query("SELECT " + connectionProfileColumns + " FROM connection_profiles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list connection profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.ConnectionProfile
	for rows.Next() {
		var p models.ConnectionProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Username, &p.Password,
			&p.UseTLS, &p.IsActive, &p.LastConnectedAt, &p.LastDisconnectedAt,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan connection profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Store) CreateConnectionProfile(p *models.ConnectionProfile) (int, error) {
	var id int
	err := s.db.QueryRow(`
		INSERT INTO connection_profiles (name, host, port, username, password, use_tls, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, false) RETURNING id
	`, p.Name, p.Host, p.Port, p.Username, p.Password, p.UseTLS).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create connection profile: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateConnectionProfile(p *models.ConnectionProfile) error {
	_, err := s.db.Exec(`
		UPDATE connection_profiles SET
			name = COALESCE(NULLIF($1, ''), name),
			host = COALESCE(NULLIF($2, ''), host),
			port = CASE WHEN $3 > 0 THEN $3 ELSE port END,
			username = COALESCE(NULLIF($4, ''), username),
			password = COALESCE(NULLIF($5, ''), password),
			use_tls = $6,
			updated_at = NOW()
		WHERE id = $7
	`, p.Name, p.Host, p.Port, p.Username, p.Password, p.UseTLS, p.ID)
	if err != nil {
		return fmt.Errorf("update connection profile: %w", err)
	}
	return nil
}

// ActivateConnectionProfile flips the activity flag to exactly one profile.
func (s *Store) ActivateConnectionProfile(id int) error {
	result, err := s.db.Exec("UPDATE connection_profiles SET is_active = (id = $1), updated_at = NOW()", id)
	if err != nil {
		return fmt.Errorf("activate connection profile: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchConnected(id int, at time.Time) error {
	_, err := s.db.Exec("UPDATE connection_profiles SET last_connected_at = $1 WHERE id = $2", at, id)
	return err
}

func (s *Store) TouchDisconnected(id int, at time.Time) error {
	_, err := s.db.Exec("UPDATE connection_profiles SET last_disconnected_at = $1 WHERE id = $2", at, id)
	return err
}
