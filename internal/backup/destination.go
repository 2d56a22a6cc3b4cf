// Package backup archives instance worlds, ships the archives to a
// configured destination and enforces a retention policy.
package backup

import (
	"fmt"
	"io"

	"github.com/vpastila/mineserv/internal/config"
)

// Destination is a storage target for finished world archives.
type Destination interface {
	Upload(filename string, reader io.Reader, sizeBytes int64) error
	Download(filename string, writer io.Writer) error
	Delete(filename string) error
	List() ([]StoredFile, error)
	Type() string
}

// StoredFile describes one archive at a destination.
type StoredFile struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"`
}

// NewDestination builds the destination selected by the backup config. The
// local destination stores archives under backupDir.
func NewDestination(cfg config.BackupConfig, backupDir string) (Destination, error) {
	switch cfg.Destination {
	case "", "local":
		return NewLocalDestination(backupDir), nil
	case "s3":
		return NewS3Destination(cfg.S3)
	case "sftp":
		return NewSFTPDestination(cfg.SFTP)
	default:
		return nil, fmt.Errorf("unsupported backup destination: %s", cfg.Destination)
	}
}
