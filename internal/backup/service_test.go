package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vpastila/mineserv/internal/database"
	"github.com/vpastila/mineserv/internal/models"
)

func testService(t *testing.T, retention int) (*Service, *LocalDestination, models.InstanceConfig, string) {
	t.Helper()
	root := t.TempDir()

	db, err := database.NewDB(filepath.Join(root, "test.db"), 0)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := models.NewInstanceConfig("survival", models.TypePaper, "1.21.4")
	if err := database.NewInstanceStore(db).Create(cfg); err != nil {
		t.Fatalf("failed to insert instance: %v", err)
	}

	dest := NewLocalDestination(filepath.Join(root, "backups"))
	svc := NewService(database.NewBackupStore(db), nil, dest, retention)

	instanceDir := filepath.Join(root, "servers", cfg.ID.String())
	seedWorld(t, instanceDir, "world")
	return svc, dest, cfg, instanceDir
}

func seedWorld(t *testing.T, instanceDir, name string) {
	t.Helper()
	worldDir := filepath.Join(instanceDir, name)
	if err := os.MkdirAll(worldDir, 0755); err != nil {
		t.Fatalf("failed to create world dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(worldDir, "level.dat"), []byte("level data"), 0644); err != nil {
		t.Fatalf("failed to seed level.dat: %v", err)
	}
}

func TestServiceCreateBackup(t *testing.T) {
	svc, dest, cfg, instanceDir := testService(t, 0)

	record, err := svc.Create(instanceDir, cfg, "world")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record.Status != database.BackupStatusCompleted {
		t.Errorf("expected completed status, got %s", record.Status)
	}
	if record.SizeBytes <= 0 {
		t.Errorf("expected positive archive size, got %d", record.SizeBytes)
	}
	if !dest.Exists(record.Filename) {
		t.Errorf("expected archive %s at destination", record.Filename)
	}

	records, err := svc.List(cfg.ID.String())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestServiceCreateMissingWorld(t *testing.T) {
	svc, _, cfg, instanceDir := testService(t, 0)

	record, err := svc.Create(instanceDir, cfg, "ghost")
	if err == nil {
		t.Fatalf("expected error for missing world")
	}
	if record.Status != database.BackupStatusFailed {
		t.Errorf("expected failed status, got %s", record.Status)
	}

	// The failed attempt stays visible in the records.
	records, err := svc.List(cfg.ID.String())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].Status != database.BackupStatusFailed {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].ErrorMessage == "" {
		t.Errorf("expected error message on failed record")
	}
}

func TestServiceRetention(t *testing.T) {
	svc, dest, cfg, instanceDir := testService(t, 2)

	var filenames []string
	for i := 0; i < 3; i++ {
		record, err := svc.Create(instanceDir, cfg, "world")
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		filenames = append(filenames, record.Filename)
	}

	records, err := svc.List(cfg.ID.String())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 retained records, got %d", len(records))
	}
	if dest.Exists(filenames[0]) {
		t.Errorf("expected oldest archive %s to be expired", filenames[0])
	}
	if !dest.Exists(filenames[2]) {
		t.Errorf("expected newest archive %s to be retained", filenames[2])
	}
}

func TestServiceDelete(t *testing.T) {
	svc, dest, cfg, instanceDir := testService(t, 0)

	record, err := svc.Create(instanceDir, cfg, "world")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Delete(cfg.ID.String(), record.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if dest.Exists(record.Filename) {
		t.Errorf("expected archive removed from destination")
	}
	records, _ := svc.List(cfg.ID.String())
	if len(records) != 0 {
		t.Errorf("expected no records after delete, got %d", len(records))
	}

	if err := svc.Delete(cfg.ID.String(), record.ID); !errors.Is(err, database.ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
}
