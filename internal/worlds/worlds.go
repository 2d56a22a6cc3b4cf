// Package worlds manages the world directories inside an instance: listing,
// archiving to tar.gz, restoring from uploaded zips and deletion.
package worlds

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/vpastila/mineserv/internal/models"
)

// ErrWorldNotFound is returned when the named world directory does not exist.
var ErrWorldNotFound = errors.New("world not found")

// validName rejects anything that could escape the instance directory.
func validName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid world name %q", name)
	}
	return nil
}

// List returns the world directories of an instance. A directory counts as a
// world when it contains a level.dat.
func List(instanceDir string) ([]models.WorldInfo, error) {
	entries, err := os.ReadDir(instanceDir)
	if os.IsNotExist(err) {
		return []models.WorldInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instance dir: %w", err)
	}

	worlds := make([]models.WorldInfo, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		worldDir := filepath.Join(instanceDir, entry.Name())
		if _, err := os.Stat(filepath.Join(worldDir, "level.dat")); err != nil {
			continue
		}

		size, modified := dirStats(worldDir)
		worlds = append(worlds, models.WorldInfo{
			Name:         entry.Name(),
			SizeMB:       size / 1024 / 1024,
			LastModified: modified,
		})
	}
	return worlds, nil
}

// Archive writes a gzip-compressed tarball of one world to destPath and
// returns the archive size. The world directory is the top-level entry in the
// archive, so extraction recreates it in place.
func Archive(instanceDir, world, destPath string) (int64, error) {
	if err := validName(world); err != nil {
		return 0, err
	}
	worldDir := filepath.Join(instanceDir, world)
	if info, err := os.Stat(worldDir); err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrWorldNotFound, world)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create backup dir: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	tw := tar.NewWriter(gzw)

	err = filepath.WalkDir(worldDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(instanceDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to archive world %s: %w", world, err)
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gzw.Close(); err != nil {
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RestoreZip extracts an uploaded zip archive into the named world directory,
// replacing its previous contents. Entries escaping the world directory are
// rejected.
func RestoreZip(instanceDir, world string, archive io.ReaderAt, size int64) error {
	if err := validName(world); err != nil {
		return err
	}

	reader, err := zip.NewReader(archive, size)
	if err != nil {
		return fmt.Errorf("invalid zip archive: %w", err)
	}

	worldDir := filepath.Join(instanceDir, world)
	if err := os.RemoveAll(worldDir); err != nil {
		return fmt.Errorf("failed to clear world dir: %w", err)
	}
	if err := os.MkdirAll(worldDir, 0755); err != nil {
		return fmt.Errorf("failed to create world dir: %w", err)
	}

	for _, file := range reader.File {
		name := filepath.FromSlash(file.Name)
		dest := filepath.Join(worldDir, name)
		if !strings.HasPrefix(dest, worldDir+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry %q escapes world directory", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := extractZipFile(file, dest); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a world directory.
func Delete(instanceDir, world string) error {
	if err := validName(world); err != nil {
		return err
	}
	worldDir := filepath.Join(instanceDir, world)
	if _, err := os.Stat(worldDir); err != nil {
		return fmt.Errorf("%w: %s", ErrWorldNotFound, world)
	}
	return os.RemoveAll(worldDir)
}

func extractZipFile(file *zip.File, dest string) error {
	in, err := file.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func dirStats(dir string) (size uint64, modified int64) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			size += uint64(info.Size())
		}
		if mod := info.ModTime().Unix(); mod > modified {
			modified = mod
		}
		return nil
	})
	return size, modified
}
