package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/properties"
	"github.com/vpastila/mineserv/internal/server"
)

// PropertiesHandler reads and edits an instance's server.properties.
type PropertiesHandler struct {
	registry *server.Registry
}

// NewPropertiesHandler creates the properties handler.
func NewPropertiesHandler(registry *server.Registry) *PropertiesHandler {
	return &PropertiesHandler{registry: registry}
}

// Get returns the current server.properties as a key-value map.
func (h *PropertiesHandler) Get(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}

	props, err := properties.Read(filepath.Join(h.registry.InstanceDir(id), properties.FileName))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, props)
}

type updatePropertiesRequest struct {
	Properties map[string]string `json:"properties" binding:"required"`
}

// Update merges the given keys into server.properties. The running server
// only picks changes up after a restart.
func (h *PropertiesHandler) Update(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}

	var req updatePropertiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := filepath.Join(h.registry.InstanceDir(id), properties.FileName)
	props, err := properties.Read(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for key, value := range req.Properties {
		props[key] = value
	}
	if err := properties.Write(path, props); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, props)
}
