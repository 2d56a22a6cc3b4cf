package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_instances",
		Up: `
-- Managed server instances
CREATE TABLE instances (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    server_type TEXT NOT NULL DEFAULT 'paper',
    minecraft_version TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 25565,
    max_players INTEGER NOT NULL DEFAULT 20,
    memory_mb INTEGER NOT NULL DEFAULT 2048,
    auto_start BOOLEAN NOT NULL DEFAULT 0,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_instances_name ON instances(name);
`,
		Down: `
DROP TABLE IF EXISTS instances;
`,
	},
	{
		Version: "002_activity_log",
		Up: `
-- Audit trail of instance operations
CREATE TABLE activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    instance_id TEXT,
    activity_type TEXT NOT NULL,
    description TEXT,
    metadata TEXT,
    success BOOLEAN DEFAULT 1,
    error_message TEXT
);

CREATE INDEX idx_activity_instance_time ON activity_log(instance_id, timestamp DESC);
CREATE INDEX idx_activity_type_time ON activity_log(activity_type, timestamp DESC);
`,
		Down: `
DROP TABLE IF EXISTS activity_log;
`,
	},
	{
		Version: "003_backups",
		Up: `
-- World backup archives
CREATE TABLE backups (
    id TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL,
    world TEXT NOT NULL,
    filename TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    destination_type TEXT NOT NULL DEFAULT 'local',
    destination_path TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    FOREIGN KEY (instance_id) REFERENCES instances(id) ON DELETE CASCADE
);

CREATE INDEX idx_backups_instance ON backups(instance_id, created_at DESC);
CREATE INDEX idx_backups_status ON backups(status);
`,
		Down: `
DROP TABLE IF EXISTS backups;
`,
	},
}
