package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/models"
	"github.com/vpastila/mineserv/internal/server"
)

// maxEditableFileSize caps reads and writes through the file routes. Bigger
// files (world data, jars) go through the world and backup routes instead.
const maxEditableFileSize = 5 * 1024 * 1024

// FileHandler exposes the files inside an instance's working directory.
type FileHandler struct {
	registry *server.Registry
}

// NewFileHandler creates the file handler.
func NewFileHandler(registry *server.Registry) *FileHandler {
	return &FileHandler{registry: registry}
}

// resolve joins a client-supplied relative path with the instance directory
// and rejects anything escaping it.
func (h *FileHandler) resolve(c *gin.Context) (string, string, bool) {
	id, ok := instanceID(c)
	if !ok {
		return "", "", false
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return "", "", false
	}

	instanceDir := h.registry.InstanceDir(id)
	rel := filepath.Clean("/" + c.Query("path"))[1:]
	full := filepath.Join(instanceDir, rel)
	if full != instanceDir && !strings.HasPrefix(full, instanceDir+string(os.PathSeparator)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path escapes instance directory"})
		return "", "", false
	}
	return instanceDir, full, true
}

// List returns the directory entries at the given path.
func (h *FileHandler) List(c *gin.Context) {
	instanceDir, full, ok := h.resolve(c)
	if !ok {
		return
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Path not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	files := make([]models.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(instanceDir, filepath.Join(full, entry.Name()))
		files = append(files, models.FileInfo{
			Name:         entry.Name(),
			Path:         filepath.ToSlash(rel),
			IsDir:        entry.IsDir(),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
	}
	c.JSON(http.StatusOK, files)
}

// Read returns the contents of one file.
func (h *FileHandler) Read(c *gin.Context) {
	_, full, ok := h.resolve(c)
	if !ok {
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Path is a directory"})
		return
	}
	if info.Size() > maxEditableFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("File exceeds the %d byte limit", maxEditableFileSize),
		})
		return
	}

	data, err := os.ReadFile(full)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

type writeFileRequest struct {
	Content string `json:"content"`
}

// Write replaces the contents of one file, creating it if necessary.
func (h *FileHandler) Write(c *gin.Context) {
	_, full, ok := h.resolve(c)
	if !ok {
		return
	}

	var req writeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Content) > maxEditableFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Content exceeds the %d byte limit", maxEditableFileSize),
		})
		return
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := os.WriteFile(full, []byte(req.Content), 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File saved"})
}

// Delete removes one file or empty directory.
func (h *FileHandler) Delete(c *gin.Context) {
	instanceDir, full, ok := h.resolve(c)
	if !ok {
		return
	}
	if full == instanceDir {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Refusing to delete the instance directory"})
		return
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
