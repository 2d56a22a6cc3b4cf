package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Backup   BackupConfig   `yaml:"backup" json:"backup"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string   `yaml:"host" json:"host"`
	Port int      `yaml:"port" json:"port"`
	CORS []string `yaml:"cors_allowed_origins" json:"cors_allowed_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret" json:"jwt_secret"`
	TokenDuration     string `yaml:"token_duration" json:"token_duration"`
	BcryptCost        int    `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	AdminUser         string `yaml:"admin_user" json:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash" json:"admin_password_hash"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	ServersDir string `yaml:"servers_dir" json:"servers_dir"`
	BackupDir  string `yaml:"backup_dir" json:"backup_dir"`
	CacheDir   string `yaml:"cache_dir" json:"cache_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`
	DefaultInterval int  `yaml:"default_interval" json:"default_interval"` // seconds
}

// BackupConfig contains scheduled backup settings
type BackupConfig struct {
	Enabled     bool             `yaml:"enabled" json:"enabled"`
	Schedule    string           `yaml:"schedule" json:"schedule"` // cron expression
	Retention   int              `yaml:"retention" json:"retention"`
	Destination string           `yaml:"destination" json:"destination"` // local, s3 or sftp
	S3          S3BackupConfig   `yaml:"s3" json:"s3"`
	SFTP        SFTPBackupConfig `yaml:"sftp" json:"sftp"`
}

// S3BackupConfig contains S3 destination settings
type S3BackupConfig struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
}

// SFTPBackupConfig contains SFTP destination settings
type SFTPBackupConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
	Path     string `yaml:"path" json:"path"`
	// KnownHosts points at the known_hosts file used to verify the remote
	// host key. Empty disables verification.
	KnownHosts string `yaml:"known_hosts" json:"known_hosts"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Default configuration
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			CORS: []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Path:           "./data/mineserv.db",
			MaxConnections: 25,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
			TokenDuration: "24h",
			BcryptCost:    12,
			AdminUser:     "admin",
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			ServersDir: "./data/servers",
			BackupDir:  "./data/backups",
			CacheDir:   "./data/cache",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			DefaultInterval: 15,
		},
		Backup: BackupConfig{
			Enabled:     false,
			Schedule:    "0 4 * * *",
			Retention:   7,
			Destination: "local",
			SFTP:        SFTPBackupConfig{Port: 22},
		},
	}

	// Load from config file if it exists
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}

	if adminHash := os.Getenv("ADMIN_PASSWORD_HASH"); adminHash != "" {
		cfg.Auth.AdminPasswordHash = adminHash
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}

	if serversDir := os.Getenv("SERVERS_DIR"); serversDir != "" {
		cfg.Storage.ServersDir = serversDir
	}

	if backupDir := os.Getenv("BACKUP_DIR"); backupDir != "" {
		cfg.Storage.BackupDir = backupDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// Normalize storage paths based on config location
	cfg.normalizeStoragePaths(configPath)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	// Check for unexpanded environment variables
	if strings.HasPrefix(c.Auth.JWTSecret, "${") {
		return fmt.Errorf("JWT_SECRET contains unexpanded environment variable")
	}

	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("bcrypt_cost must be between 10 and 14")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	switch c.Backup.Destination {
	case "", "local":
	case "s3":
		if c.Backup.S3.Bucket == "" {
			return fmt.Errorf("backup destination s3 requires a bucket")
		}
	case "sftp":
		if c.Backup.SFTP.Host == "" {
			return fmt.Errorf("backup destination sftp requires a host")
		}
	default:
		return fmt.Errorf("unknown backup destination %q", c.Backup.Destination)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Storage.ServersDir) == "" {
		c.Storage.ServersDir = filepath.Join(c.Storage.DataDir, "servers")
	}
	c.Storage.ServersDir = resolvePath(c.Storage.ServersDir)

	if strings.TrimSpace(c.Storage.BackupDir) == "" {
		c.Storage.BackupDir = filepath.Join(c.Storage.DataDir, "backups")
	}
	c.Storage.BackupDir = resolvePath(c.Storage.BackupDir)

	if strings.TrimSpace(c.Storage.CacheDir) == "" {
		c.Storage.CacheDir = filepath.Join(c.Storage.DataDir, "cache")
	}
	c.Storage.CacheDir = resolvePath(c.Storage.CacheDir)

	if strings.TrimSpace(c.Database.Path) != "" && !filepath.IsAbs(c.Database.Path) {
		c.Database.Path = resolvePath(c.Database.Path)
	}
}
