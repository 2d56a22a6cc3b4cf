package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vpastila/mineserv/internal/database"
	"github.com/vpastila/mineserv/internal/logging"
	"github.com/vpastila/mineserv/internal/models"
	"github.com/vpastila/mineserv/internal/worlds"
)

// Service creates world backups, ships them to the destination and keeps the
// backup records in sync with what is actually stored.
type Service struct {
	store     *database.BackupStore
	activity  *logging.ActivityLogger
	dest      Destination
	retention int
}

// NewService creates a backup service. A retention of zero or less keeps
// every backup.
func NewService(store *database.BackupStore, activity *logging.ActivityLogger, dest Destination, retention int) *Service {
	return &Service{
		store:     store,
		activity:  activity,
		dest:      dest,
		retention: retention,
	}
}

// Destination exposes the configured destination, for listing and downloads.
func (s *Service) Destination() Destination {
	return s.dest
}

// Create archives one world of an instance and uploads it. The record is
// written up front in the pending state so a crash mid-upload leaves a
// visible failed trail instead of a silent gap.
func (s *Service) Create(instanceDir string, cfg models.InstanceConfig, world string) (database.BackupRecord, error) {
	id := uuid.New().String()
	// The id suffix keeps filenames unique when backups land in the same
	// second.
	filename := fmt.Sprintf("%s-%s-%s-%s.tar.gz",
		cfg.Name, world, time.Now().Format("20060102-150405"), id[:8])
	record := database.BackupRecord{
		ID:              id,
		InstanceID:      cfg.ID.String(),
		World:           world,
		Filename:        filename,
		DestinationType: s.dest.Type(),
		Status:          database.BackupStatusPending,
	}
	if err := s.store.Create(record); err != nil {
		return record, err
	}

	record, err := s.run(record, instanceDir, world)
	s.activity.RecordOp(record.InstanceID, logging.ActivityBackupCreate,
		fmt.Sprintf("backup of world %s to %s", world, s.dest.Type()), err)
	if err != nil {
		return record, err
	}

	s.enforceRetention(record.InstanceID)
	return record, nil
}

func (s *Service) run(record database.BackupRecord, instanceDir, world string) (database.BackupRecord, error) {
	stagingDir, err := os.MkdirTemp("", "mineserv-backup-")
	if err != nil {
		return s.fail(record, err)
	}
	defer os.RemoveAll(stagingDir)

	archivePath := filepath.Join(stagingDir, record.Filename)
	size, err := worlds.Archive(instanceDir, world, archivePath)
	if err != nil {
		return s.fail(record, err)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return s.fail(record, err)
	}
	defer file.Close()

	if err := s.dest.Upload(record.Filename, file, size); err != nil {
		return s.fail(record, err)
	}

	if err := s.store.UpdateStatus(record.ID, database.BackupStatusCompleted, "", size); err != nil {
		return record, err
	}
	record.Status = database.BackupStatusCompleted
	record.SizeBytes = size
	return record, nil
}

func (s *Service) fail(record database.BackupRecord, cause error) (database.BackupRecord, error) {
	if err := s.store.UpdateStatus(record.ID, database.BackupStatusFailed, cause.Error(), 0); err != nil {
		log.Printf("[Backup] Failed to record backup failure: %v", err)
	}
	record.Status = database.BackupStatusFailed
	record.ErrorMessage = cause.Error()
	return record, cause
}

// List returns the backup records of one instance, newest first.
func (s *Service) List(instanceID string) ([]database.BackupRecord, error) {
	return s.store.ListByInstance(instanceID)
}

// Delete removes a backup from the destination and drops its record. A
// missing archive at the destination is not fatal: the record still goes.
func (s *Service) Delete(instanceID, backupID string) error {
	records, err := s.store.ListByInstance(instanceID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID != backupID {
			continue
		}
		if r.Status == database.BackupStatusCompleted {
			if err := s.dest.Delete(r.Filename); err != nil {
				log.Printf("[Backup] Failed to delete archive %s: %v", r.Filename, err)
			}
		}
		return s.store.Delete(backupID)
	}
	return database.ErrBackupNotFound
}

// enforceRetention drops completed backups past the newest retention
// entries, oldest first.
func (s *Service) enforceRetention(instanceID string) {
	if s.retention <= 0 {
		return
	}
	expired, err := s.store.CompletedOlderThanRank(instanceID, s.retention)
	if err != nil {
		log.Printf("[Backup] Retention check failed for %s: %v", instanceID, err)
		return
	}
	for _, r := range expired {
		if err := s.dest.Delete(r.Filename); err != nil {
			log.Printf("[Backup] Failed to expire archive %s: %v", r.Filename, err)
			continue
		}
		if err := s.store.Delete(r.ID); err != nil {
			log.Printf("[Backup] Failed to drop expired record %s: %v", r.ID, err)
		}
	}
}
