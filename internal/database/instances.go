package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vpastila/mineserv/internal/models"
)

// ErrInstanceNotFound is returned when no instance row matches the given id.
var ErrInstanceNotFound = errors.New("instance not found")

// InstanceStore persists instance configurations.
type InstanceStore struct {
	db *DB
}

// NewInstanceStore creates a store backed by the given database.
func NewInstanceStore(db *DB) *InstanceStore {
	return &InstanceStore{db: db}
}

// LoadAll returns every persisted instance configuration.
func (s *InstanceStore) LoadAll() ([]models.InstanceConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, name, server_type, minecraft_version, port, max_players, memory_mb, auto_start, properties
		FROM instances ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	configs := make([]models.InstanceConfig, 0)
	for rows.Next() {
		cfg, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Get returns one instance configuration by id.
func (s *InstanceStore) Get(id uuid.UUID) (models.InstanceConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, name, server_type, minecraft_version, port, max_players, memory_mb, auto_start, properties
		FROM instances WHERE id = ?`, id.String())

	cfg, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.InstanceConfig{}, ErrInstanceNotFound
	}
	return cfg, err
}

// Create inserts a new instance configuration.
func (s *InstanceStore) Create(cfg models.InstanceConfig) error {
	properties, err := json.Marshal(cfg.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO instances (id, name, server_type, minecraft_version, port, max_players, memory_mb, auto_start, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID.String(), cfg.Name, string(cfg.ServerType), cfg.MinecraftVersion,
		cfg.Port, cfg.MaxPlayers, cfg.MemoryMB, cfg.AutoStart, string(properties))
	if err != nil {
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

// Update replaces an existing instance configuration.
func (s *InstanceStore) Update(cfg models.InstanceConfig) error {
	properties, err := json.Marshal(cfg.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE instances
		SET name = ?, server_type = ?, minecraft_version = ?, port = ?, max_players = ?,
		    memory_mb = ?, auto_start = ?, properties = ?, updated_at = datetime('now')
		WHERE id = ?`,
		cfg.Name, string(cfg.ServerType), cfg.MinecraftVersion, cfg.Port, cfg.MaxPlayers,
		cfg.MemoryMB, cfg.AutoStart, string(properties), cfg.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

// Delete removes an instance configuration.
func (s *InstanceStore) Delete(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM instances WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (models.InstanceConfig, error) {
	var cfg models.InstanceConfig
	var id, serverType, properties string

	err := row.Scan(&id, &cfg.Name, &serverType, &cfg.MinecraftVersion,
		&cfg.Port, &cfg.MaxPlayers, &cfg.MemoryMB, &cfg.AutoStart, &properties)
	if err != nil {
		return models.InstanceConfig{}, err
	}

	cfg.ID, err = uuid.Parse(id)
	if err != nil {
		return models.InstanceConfig{}, fmt.Errorf("corrupt instance id %q: %w", id, err)
	}
	cfg.ServerType = models.ServerType(serverType)

	if properties != "" {
		if err := json.Unmarshal([]byte(properties), &cfg.Properties); err != nil {
			return models.InstanceConfig{}, fmt.Errorf("corrupt properties for %s: %w", id, err)
		}
	}
	return cfg, nil
}
