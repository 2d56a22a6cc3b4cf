package database

import (
	"errors"
	"fmt"
	"time"
)

// ErrBackupNotFound is returned when no backup row matches the given id.
var ErrBackupNotFound = errors.New("backup not found")

// BackupRecord describes one archived world backup.
type BackupRecord struct {
	ID              string    `json:"id"`
	InstanceID      string    `json:"instance_id"`
	World           string    `json:"world"`
	Filename        string    `json:"filename"`
	SizeBytes       int64     `json:"size_bytes"`
	DestinationType string    `json:"destination_type"`
	DestinationPath string    `json:"destination_path"`
	CreatedAt       time.Time `json:"created_at"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// Backup status values.
const (
	BackupStatusPending   = "pending"
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

// BackupStore persists backup records.
type BackupStore struct {
	db *DB
}

// NewBackupStore creates a store backed by the given database.
func NewBackupStore(db *DB) *BackupStore {
	return &BackupStore{db: db}
}

// Create inserts a new backup record.
func (s *BackupStore) Create(record BackupRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO backups (id, instance_id, world, filename, size_bytes, destination_type, destination_path, created_at, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.InstanceID, record.World, record.Filename, record.SizeBytes,
		record.DestinationType, record.DestinationPath, record.CreatedAt, record.Status, record.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to insert backup record: %w", err)
	}
	return nil
}

// UpdateStatus marks a backup as completed or failed.
func (s *BackupStore) UpdateStatus(id, status, errorMessage string, sizeBytes int64) error {
	result, err := s.db.Exec(`
		UPDATE backups SET status = ?, error_message = ?, size_bytes = ? WHERE id = ?`,
		status, errorMessage, sizeBytes, id)
	if err != nil {
		return fmt.Errorf("failed to update backup record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrBackupNotFound
	}
	return nil
}

// ListByInstance returns backups for one instance, newest first.
func (s *BackupStore) ListByInstance(instanceID string) ([]BackupRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, instance_id, world, filename, size_bytes, destination_type, destination_path, created_at, status, COALESCE(error_message, '')
		FROM backups WHERE instance_id = ? ORDER BY created_at DESC`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	records := make([]BackupRecord, 0)
	for rows.Next() {
		var r BackupRecord
		if err := rows.Scan(&r.ID, &r.InstanceID, &r.World, &r.Filename, &r.SizeBytes,
			&r.DestinationType, &r.DestinationPath, &r.CreatedAt, &r.Status, &r.ErrorMessage); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CompletedOlderThanRank returns completed backups for one instance past the
// newest keep entries, oldest first. Used for retention enforcement.
func (s *BackupStore) CompletedOlderThanRank(instanceID string, keep int) ([]BackupRecord, error) {
	records, err := s.ListByInstance(instanceID)
	if err != nil {
		return nil, err
	}

	completed := make([]BackupRecord, 0, len(records))
	for _, r := range records {
		if r.Status == BackupStatusCompleted {
			completed = append(completed, r)
		}
	}
	if keep >= len(completed) {
		return nil, nil
	}

	// ListByInstance is newest first; everything past keep is expired.
	expired := completed[keep:]
	for i, j := 0, len(expired)-1; i < j; i, j = i+1, j-1 {
		expired[i], expired[j] = expired[j], expired[i]
	}
	return expired, nil
}

// Delete removes a backup record.
func (s *BackupStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrBackupNotFound
	}
	return nil
}
