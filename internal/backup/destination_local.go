package backup

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// LocalDestination stores archives in a directory on the local filesystem.
type LocalDestination struct {
	baseDir string
}

// NewLocalDestination creates a destination rooted at baseDir.
func NewLocalDestination(baseDir string) *LocalDestination {
	return &LocalDestination{baseDir: baseDir}
}

// Upload copies an archive into the destination directory.
func (d *LocalDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	if err := os.MkdirAll(d.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	destPath := filepath.Join(d.baseDir, filename)
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if written != sizeBytes {
		os.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d", sizeBytes, written)
	}

	log.Printf("[Backup] Stored %s (%d bytes)", destPath, written)
	return nil
}

// Download streams an archive from the destination directory.
func (d *LocalDestination) Download(filename string, writer io.Writer) error {
	file, err := os.Open(filepath.Join(d.baseDir, filename))
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	return nil
}

// Delete removes an archive from the destination directory.
func (d *LocalDestination) Delete(filename string) error {
	if err := os.Remove(filepath.Join(d.baseDir, filename)); err != nil {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	return nil
}

// List returns the archives currently present at the destination.
func (d *LocalDestination) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(d.baseDir)
	if os.IsNotExist(err) {
		return []StoredFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	files := make([]StoredFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}
	return files, nil
}

// Type returns the destination type identifier.
func (d *LocalDestination) Type() string {
	return "local"
}

// Exists reports whether an archive is present at the destination.
func (d *LocalDestination) Exists(filename string) bool {
	_, err := os.Stat(filepath.Join(d.baseDir, filename))
	return err == nil
}
