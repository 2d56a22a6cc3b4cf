package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/vpastila/mineserv/internal/database"
)

func TestActivityLoggerRecordAndRecent(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "data", "test.db")

	db, err := database.NewDB(dbPath, 0)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}

	logger := NewActivityLogger(db.DB)

	logger.Record(Activity{
		InstanceID:   "instance-1",
		ActivityType: ActivityInstanceStart,
		Description:  "started",
		Success:      true,
	})
	logger.RecordOp("instance-1", ActivityInstanceStop, "stop requested", nil)

	activities, err := logger.Recent("instance-1", 10)
	if err != nil {
		t.Fatalf("failed to query activities: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(activities))
	}

	other, err := logger.Recent("instance-2", 10)
	if err != nil {
		t.Fatalf("failed to query activities: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no activities for other instance, got %d", len(other))
	}

	if err := logger.Cleanup(24 * time.Hour); err != nil {
		t.Fatalf("failed to cleanup activities: %v", err)
	}
}
