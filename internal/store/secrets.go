package store

import (
	"database/sql"
	"fmt"

	"isp-saas.com/routersync/internal/models"
)

const secretColumns = `
	id, username, password, service, profile_id, original_profile_id,
	remote_id, auto_sync, created_at, updated_at
`

func scanSecret(row *sql.Row) (*models.Secret, error) {
	var sec models.Secret
	err := row.Scan(&sec.ID, &sec.Username, &sec.Password, &sec.Service,
		&sec.ProfileID, &sec.OriginalProfileID, &sec.RemoteID, &sec.AutoSync,
		&sec.CreatedAt, &sec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan secret: %w", err)
	}
	return &sec, nil
}

func (s *Store) ListSecrets() ([]models.Secret, error) {
	rows, err := s.db.Query("SELECT " + secretColumns + " FROM secrets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []models.Secret
	for rows.Next() {
		var sec models.Secret
		if err := rows.Scan(&sec.ID, &sec.Username, &sec.Password, &sec.Service,
			&sec.ProfileID, &sec.OriginalProfileID, &sec.RemoteID, &sec.AutoSync,
			&sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	return secrets, rows.Err()
}

func (s *Store) GetSecret(id int) (*models.Secret, error) {
	return scanSecret(s.db.QueryRow("SELECT "+secretColumns+" FROM secrets WHERE id = $1", id))
}

func (s *Store) GetSecretByUsername(username string) (*models.Secret, error) {
	return scanSecret(s.db.QueryRow("SELECT "+secretColumns+" FROM secrets WHERE username = $1", username))
}

func (s *Store) GetSecretByRemoteID(remoteID string) (*models.Secret, error) {
	return scanSecret(s.db.QueryRow("SELECT "+secretColumns+" FROM secrets WHERE remote_id = $1", remoteID))
}

func (s *Store) CreateSecret(sec *models.Secret) (int, error) {
	var id int
	err := s.db.QueryRow(`
		INSERT INTO secrets (username, password, service, profile_id, remote_id, auto_sync)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, sec.Username, sec.Password, sec.Service, sec.ProfileID, sec.RemoteID, sec.AutoSync).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create secret: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateSecret(sec *models.Secret) error {
	result, err := s.db.Exec(`
		UPDATE secrets SET
			username = $1, password = $2, service = $3, profile_id = $4,
			auto_sync = $5, updated_at = NOW()
		WHERE id = $6
	`, sec.Username, sec.Password, sec.Service, sec.ProfileID, sec.AutoSync, sec.ID)
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyDeviceSecret overwrites the device-owned fields of a local secret
// from a pulled record.
func (s *Store) ApplyDeviceSecret(sec *models.Secret) error {
	_, err := s.db.Exec(`
		UPDATE secrets SET
			username = $1, password = $2, service = $3, profile_id = $4, updated_at = NOW()
		WHERE id = $5
	`, sec.Username, sec.Password, sec.Service, sec.ProfileID, sec.ID)
	if err != nil {
		return fmt.Errorf("apply device secret: %w", err)
	}
	return nil
}

func (s *Store) SetSecretRemoteID(id int, remoteID string) error {
	result, err := s.db.Exec(`
		UPDATE secrets SET remote_id = $1, updated_at = NOW()
		WHERE id = $2 AND (remote_id IS NULL OR remote_id = $1)
	`, remoteID, id)
	if err != nil {
		return fmt.Errorf("set secret remote id: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("secret %d already bound to a different device object", id)
	}
	return nil
}

func (s *Store) ClearSecretRemoteID(id int) error {
	_, err := s.db.Exec("UPDATE secrets SET remote_id = NULL, updated_at = NOW() WHERE id = $1", id)
	return err
}

// SuspendSecret parks the subscriber on the suspension profile and remembers
// the prior profile. A second suspend is a no-op so the original profile is
// never overwritten by the suspension profile itself.
func (s *Store) SuspendSecret(id, suspendProfileID int) error {
	result, err := s.db.Exec(`
		UPDATE secrets SET
			original_profile_id = profile_id, profile_id = $1, updated_at = NOW()
		WHERE id = $2 AND original_profile_id IS NULL
	`, suspendProfileID, id)
	if err != nil {
		return fmt.Errorf("suspend secret: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("secret %d is already suspended or missing", id)
	}
	return nil
}

// RestoreSecret reverses exactly the two fields SuspendSecret touched.
func (s *Store) RestoreSecret(id int) error {
	result, err := s.db.Exec(`
		UPDATE secrets SET
			profile_id = original_profile_id, original_profile_id = NULL, updated_at = NOW()
		WHERE id = $1 AND original_profile_id IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("restore secret: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("secret %d is not suspended", id)
	}
	return nil
}

func (s *Store) DeleteSecret(id int) error {
	result, err := s.db.Exec("DELETE FROM secrets WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
