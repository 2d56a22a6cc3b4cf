package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/backup"
	"github.com/vpastila/mineserv/internal/database"
	"github.com/vpastila/mineserv/internal/server"
	"github.com/vpastila/mineserv/internal/worlds"
)

// maxWorldUploadSize caps world archive uploads.
const maxWorldUploadSize = 2 * 1024 * 1024 * 1024

// WorldHandler serves world listing, backup, restore and deletion.
type WorldHandler struct {
	registry *server.Registry
	backups  *backup.Service
}

// NewWorldHandler creates the world handler.
func NewWorldHandler(registry *server.Registry, backups *backup.Service) *WorldHandler {
	return &WorldHandler{registry: registry, backups: backups}
}

// List returns the worlds of an instance.
func (h *WorldHandler) List(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}

	found, err := worlds.List(h.registry.InstanceDir(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, found)
}

// Backup archives one world and ships it to the backup destination. The
// world directory is copied while the server may be writing it; for a
// consistent snapshot stop the instance or disable auto-save first.
func (h *WorldHandler) Backup(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	status, err := h.registry.Get(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	record, err := h.backups.Create(h.registry.InstanceDir(id), status.Config, c.Param("world"))
	if err != nil {
		if errors.Is(err, worlds.ErrWorldNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "World not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// Restore replaces a world with the contents of an uploaded zip archive.
// The instance must be stopped.
func (h *WorldHandler) Restore(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}
	if h.registry.IsRunning(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "Instance must be stopped before restoring a world"})
		return
	}

	file, header, err := c.Request.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing archive upload"})
		return
	}
	defer file.Close()

	if header.Size > maxWorldUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Archive exceeds the %d byte limit", maxWorldUploadSize),
		})
		return
	}

	world := c.Param("world")
	if err := worlds.RestoreZip(h.registry.InstanceDir(id), world, file, header.Size); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "World restored", "world": world})
}

// Delete removes a world directory. The instance must be stopped.
func (h *WorldHandler) Delete(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}
	if h.registry.IsRunning(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "Instance must be stopped before deleting a world"})
		return
	}

	if err := worlds.Delete(h.registry.InstanceDir(id), c.Param("world")); err != nil {
		if errors.Is(err, worlds.ErrWorldNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "World not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "World deleted"})
}

// ListBackups returns the backup records of an instance, newest first.
func (h *WorldHandler) ListBackups(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}

	records, err := h.backups.List(id.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// DownloadBackup streams one backup archive from the destination.
func (h *WorldHandler) DownloadBackup(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	records, err := h.backups.List(id.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	backupID := c.Param("backup")
	for _, record := range records {
		if record.ID != backupID {
			continue
		}
		if record.Status != database.BackupStatusCompleted {
			c.JSON(http.StatusConflict, gin.H{"error": "Backup did not complete"})
			return
		}

		filename := filepath.Base(record.Filename)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Header("Content-Type", "application/gzip")
		if err := h.backups.Destination().Download(filename, c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
}

// DeleteBackup removes a backup archive and its record.
func (h *WorldHandler) DeleteBackup(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	if err := h.backups.Delete(id.String(), c.Param("backup")); err != nil {
		if errors.Is(err, database.ErrBackupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}
