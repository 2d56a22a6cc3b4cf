package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/downloader"
)

// VersionHandler lists the Minecraft versions available for provisioning.
type VersionHandler struct {
	dl *downloader.Manager
}

// NewVersionHandler creates the version handler.
func NewVersionHandler(dl *downloader.Manager) *VersionHandler {
	return &VersionHandler{dl: dl}
}

// List returns the versions the Paper project publishes.
func (h *VersionHandler) List(c *gin.Context) {
	versions, err := h.dl.ListVersions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}
