package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/plugins"
	"github.com/vpastila/mineserv/internal/server"
)

// PluginHandler serves plugin search, install, listing and removal.
type PluginHandler struct {
	registry *server.Registry
	plugins  *plugins.Manager
}

// NewPluginHandler creates the plugin handler.
func NewPluginHandler(registry *server.Registry, manager *plugins.Manager) *PluginHandler {
	return &PluginHandler{registry: registry, plugins: manager}
}

// Search queries the plugin registry for plugins compatible with the
// instance's Minecraft version.
func (h *PluginHandler) Search(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	status, err := h.registry.Get(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search query"})
		return
	}

	hits, err := h.plugins.Search(c.Request.Context(), query, status.Config.MinecraftVersion)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hits)
}

type installPluginRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// Install downloads the newest compatible release of a plugin into the
// instance. A restart is needed before the server picks it up.
func (h *PluginHandler) Install(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	status, err := h.registry.Get(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	var req installPluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.plugins.Install(c.Request.Context(), h.registry.InstanceDir(id), req.Slug, status.Config.MinecraftVersion)
	if err != nil {
		if errors.Is(err, plugins.ErrPluginNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No compatible plugin release found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, info)
}

// List returns the plugins installed in the instance.
func (h *PluginHandler) List(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}

	installed, err := h.plugins.List(h.registry.InstanceDir(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, installed)
}

// Remove deletes an installed plugin jar.
func (h *PluginHandler) Remove(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		respondLifecycleError(c, err)
		return
	}

	if err := h.plugins.Remove(h.registry.InstanceDir(id), c.Param("plugin")); err != nil {
		if errors.Is(err, plugins.ErrPluginNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plugin not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plugin removed"})
}
