package store

import (
	"fmt"
	"time"

	"isp-saas.com/routersync/internal/models"
)

const sessionColumns = `
	id, username, session_id, caller_id, uptime, bytes_in, bytes_out,
	connected_at, disconnected_at
`

func (s *Store) ListSessionsForUsername(username string, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT "+sessionColumns+" FROM session_records WHERE username = $1 ORDER BY connected_at DESC LIMIT $2",
		username, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.SessionID, &rec.CallerID,
			&rec.Uptime, &rec.BytesIn, &rec.BytesOut, &rec.ConnectedAt,
			&rec.DisconnectedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// OpenSessionIDs lists the device session ids of log rows not yet closed.
func (s *Store) OpenSessionIDs() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT session_id FROM session_records WHERE disconnected_at IS NULL")
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	defer rows.Close()

	open := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan open session: %w", err)
		}
		open[id] = true
	}
	return open, rows.Err()
}

func (s *Store) OpenSession(rec *models.SessionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO session_records (username, session_id, caller_id, uptime, bytes_in, bytes_out, connected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.Username, rec.SessionID, rec.CallerID, rec.Uptime, rec.BytesIn, rec.BytesOut, rec.ConnectedAt)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

// UpdateOpenSession refreshes the counters of a still-open row. Closed rows
// are never touched.
func (s *Store) UpdateOpenSession(sessionID, uptime string, bytesIn, bytesOut int64) error {
	_, err := s.db.Exec(`
		UPDATE session_records SET uptime = $1, bytes_in = $2, bytes_out = $3
		WHERE session_id = $4 AND disconnected_at IS NULL
	`, uptime, bytesIn, bytesOut, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// CloseSession stamps the disconnect time on an open row, exactly once.
func (s *Store) CloseSession(sessionID string, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE session_records SET disconnected_at = $1
		WHERE session_id = $2 AND disconnected_at IS NULL
	`, at, sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
