package store

import (
	"database/sql"
	"fmt"

	"isp-saas.com/routersync/internal/models"
)

const profileColumns = `
	id, name, local_address, remote_address, rate_limit, parent_queue,
	price, billing_day, is_active, remote_id, auto_sync, created_at, updated_at
`

func scanProfile(row *sql.Row) (*models.ServiceProfile, error) {
	var p models.ServiceProfile
	err := row.Scan(&p.ID, &p.Name, &p.LocalAddress, &p.RemoteAddress, &p.RateLimit,
		&p.ParentQueue, &p.Price, &p.BillingDay, &p.IsActive, &p.RemoteID,
		&p.AutoSync, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProfiles() ([]models.ServiceProfile, error) {
	rows, err := s.db.Query("SELECT " + profileColumns + " FROM service_profiles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.ServiceProfile
	for rows.Next() {
		var p models.ServiceProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.LocalAddress, &p.RemoteAddress, &p.RateLimit,
			&p.ParentQueue, &p.Price, &p.BillingDay, &p.IsActive, &p.RemoteID,
			&p.AutoSync, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Store) GetProfile(id int) (*models.ServiceProfile, error) {
	return scanProfile(s.db.QueryRow("SELECT "+profileColumns+" FROM service_profiles WHERE id = $1", id))
}

func (s *Store) GetProfileByName(name string) (*models.ServiceProfile, error) {
	return scanProfile(s.db.QueryRow("SELECT "+profileColumns+" FROM service_profiles WHERE name = $1", name))
}

func (s *Store) GetProfileByRemoteID(remoteID string) (*models.ServiceProfile, error) {
	return scanProfile(s.db.QueryRow("SELECT "+profileColumns+" FROM service_profiles WHERE remote_id = $1", remoteID))
}

func (s *Store) CreateProfile(p *models.ServiceProfile) (int, error) {
	var id int
	err := s.db.QueryRow(`
		INSERT INTO service_profiles
			(name, local_address, remote_address, rate_limit, parent_queue,
			 price, billing_day, is_active, remote_id, auto_sync)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id
	`, p.Name, p.LocalAddress, p.RemoteAddress, p.RateLimit, p.ParentQueue,
		p.Price, p.BillingDay, p.IsActive, p.RemoteID, p.AutoSync).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create profile: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateProfile(p *models.ServiceProfile) error {
	result, err := s.db.Exec(`
		UPDATE service_profiles SET
			name = $1, local_address = $2, remote_address = $3, rate_limit = $4,
			parent_queue = $5, price = $6, billing_day = $7, is_active = $8,
			auto_sync = $9, updated_at = NOW()
		WHERE id = $10
	`, p.Name, p.LocalAddress, p.RemoteAddress, p.RateLimit, p.ParentQueue,
		p.Price, p.BillingDay, p.IsActive, p.AutoSync, p.ID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyDeviceProfile overwrites the device-owned fields of a local profile
// from a pulled record. Pricing and billing fields are local-only and are
// never touched by a pull.
func (s *Store) ApplyDeviceProfile(p *models.ServiceProfile) error {
	_, err := s.db.Exec(`
		UPDATE service_profiles SET
			name = $1, local_address = $2, remote_address = $3, rate_limit = $4,
			parent_queue = $5, updated_at = NOW()
		WHERE id = $6
	`, p.Name, p.LocalAddress, p.RemoteAddress, p.RateLimit, p.ParentQueue, p.ID)
	if err != nil {
		return fmt.Errorf("apply device profile: %w", err)
	}
	return nil
}

// SetProfileRemoteID records the device-assigned id. The guard keeps a
// remote id from ever being reassigned to a different device object.
func (s *Store) SetProfileRemoteID(id int, remoteID string) error {
	result, err := s.db.Exec(`
		UPDATE service_profiles SET remote_id = $1, updated_at = NOW()
		WHERE id = $2 AND (remote_id IS NULL OR remote_id = $1)
	`, remoteID, id)
	if err != nil {
		return fmt.Errorf("set profile remote id: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("profile %d already bound to a different device object", id)
	}
	return nil
}

func (s *Store) ClearProfileRemoteID(id int) error {
	_, err := s.db.Exec("UPDATE service_profiles SET remote_id = NULL, updated_at = NOW() WHERE id = $1", id)
	return err
}

func (s *Store) DeleteProfile(id int) error {
	result, err := s.db.Exec("DELETE FROM service_profiles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
