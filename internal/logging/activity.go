package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// ActivityLogger records instance lifecycle events in the database so the UI
// can show an audit trail. Failures to record are logged and swallowed; an
// audit write must never fail the operation it describes.
type ActivityLogger struct {
	db *sql.DB
}

// Activity is one recorded event.
type Activity struct {
	Timestamp    time.Time              `json:"timestamp"`
	InstanceID   string                 `json:"instance_id"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityInstanceCreate  = "instance.create"
	ActivityInstanceDelete  = "instance.delete"
	ActivityInstanceStart   = "instance.start"
	ActivityInstanceStop    = "instance.stop"
	ActivityInstanceRestart = "instance.restart"
	ActivityInstanceRecover = "instance.recover"
	ActivityCommandExecute  = "command.execute"
	ActivityBackupCreate    = "backup.create"
	ActivityConfigUpdate    = "config.update"
)

// NewActivityLogger creates an activity logger backed by the given database.
func NewActivityLogger(db *sql.DB) *ActivityLogger {
	return &ActivityLogger{db: db}
}

// Record writes one activity. The timestamp defaults to now.
func (al *ActivityLogger) Record(activity Activity) {
	if al == nil || al.db == nil {
		return
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	metadataJSON, err := json.Marshal(activity.Metadata)
	if err != nil {
		log.Printf("[ActivityLogger] Failed to marshal metadata: %v", err)
		metadataJSON = []byte("{}")
	}

	_, err = al.db.Exec(`
		INSERT INTO activity_log (timestamp, instance_id, activity_type, description, metadata, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		activity.Timestamp,
		activity.InstanceID,
		activity.ActivityType,
		activity.Description,
		string(metadataJSON),
		activity.Success,
		activity.ErrorMessage,
	)
	if err != nil {
		log.Printf("[ActivityLogger] Failed to record activity: %v", err)
	}
}

// RecordOp is shorthand for recording the outcome of one instance operation.
func (al *ActivityLogger) RecordOp(instanceID, activityType, description string, opErr error) {
	activity := Activity{
		InstanceID:   instanceID,
		ActivityType: activityType,
		Description:  description,
		Success:      opErr == nil,
	}
	if opErr != nil {
		activity.ErrorMessage = opErr.Error()
	}
	al.Record(activity)
}

// Recent returns the most recent activities, optionally filtered by instance.
func (al *ActivityLogger) Recent(instanceID string, limit int) ([]Activity, error) {
	if al == nil || al.db == nil {
		return nil, fmt.Errorf("database not available")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT timestamp, instance_id, activity_type, description, metadata, success, error_message
		FROM activity_log`
	args := make([]interface{}, 0, 2)
	if instanceID != "" {
		query += " WHERE instance_id = ?"
		args = append(args, instanceID)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		var activity Activity
		var metadataJSON sql.NullString
		if err := rows.Scan(
			&activity.Timestamp,
			&activity.InstanceID,
			&activity.ActivityType,
			&activity.Description,
			&metadataJSON,
			&activity.Success,
			&activity.ErrorMessage,
		); err != nil {
			log.Printf("[ActivityLogger] Error scanning row: %v", err)
			continue
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &activity.Metadata); err != nil {
				log.Printf("[ActivityLogger] Error unmarshaling metadata: %v", err)
			}
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// Cleanup removes activities older than the given age.
func (al *ActivityLogger) Cleanup(olderThan time.Duration) error {
	if al == nil || al.db == nil {
		return fmt.Errorf("database not available")
	}

	result, err := al.db.Exec(`DELETE FROM activity_log WHERE timestamp < ?`, time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("failed to cleanup old activities: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[ActivityLogger] Cleaned up %d activities older than %v", n, olderThan)
	}
	return nil
}
