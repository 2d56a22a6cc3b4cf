package models

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// ServerType identifies which server distribution an instance runs.
type ServerType string

const (
	TypePaper  ServerType = "paper"
	TypeSpigot ServerType = "spigot"
)

// Valid reports whether the server type is one we know how to provision.
func (t ServerType) Valid() bool {
	return t == TypePaper || t == TypeSpigot
}

// InstanceState is the lifecycle state of a managed instance.
type InstanceState string

const (
	StateStopped  InstanceState = "stopped"
	StateStarting InstanceState = "starting"
	StateRunning  InstanceState = "running"
	StateStopping InstanceState = "stopping"
)

// InstanceConfig is the declared configuration of a managed server instance.
// It is immutable while the instance is running.
type InstanceConfig struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	ServerType       ServerType        `json:"server_type"`
	MinecraftVersion string            `json:"minecraft_version"`
	Port             int               `json:"port"`
	MaxPlayers       int               `json:"max_players"`
	MemoryMB         int               `json:"memory_mb"`
	AutoStart        bool              `json:"auto_start"`
	Properties       map[string]string `json:"properties"`
}

// NewInstanceConfig creates a config with a fresh ID and the stock defaults.
func NewInstanceConfig(name string, serverType ServerType, version string) InstanceConfig {
	return InstanceConfig{
		ID:               uuid.New(),
		Name:             name,
		ServerType:       serverType,
		MinecraftVersion: version,
		Port:             25565,
		MaxPlayers:       20,
		MemoryMB:         2048,
		Properties:       map[string]string{},
	}
}

// Dir returns the instance's working directory under the given base directory.
func (c InstanceConfig) Dir(baseDir string) string {
	return filepath.Join(baseDir, c.ID.String())
}

// Validate checks the declared configuration for obvious mistakes.
func (c InstanceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("instance name is required")
	}
	if !c.ServerType.Valid() {
		return fmt.Errorf("unknown server type %q", c.ServerType)
	}
	if c.MinecraftVersion == "" {
		return fmt.Errorf("minecraft version is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MemoryMB < 256 {
		return fmt.Errorf("memory_mb must be at least 256")
	}
	return nil
}

// InstanceStats is a point-in-time resource sample for a running instance.
type InstanceStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      uint64  `json:"memory_mb"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
}

// PluginInfo describes a plugin, either from a registry search or installed
// on disk.
type PluginInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Installed   bool   `json:"installed"`
}

// WorldInfo describes one world directory inside an instance.
type WorldInfo struct {
	Name         string `json:"name"`
	SizeMB       uint64 `json:"size_mb"`
	LastModified int64  `json:"last_modified"`
}

// FileInfo describes an entry in an instance's working directory.
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	IsDir        bool   `json:"is_dir"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"last_modified"`
}
