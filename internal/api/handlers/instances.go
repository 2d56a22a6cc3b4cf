package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vpastila/mineserv/internal/database"
	"github.com/vpastila/mineserv/internal/downloader"
	"github.com/vpastila/mineserv/internal/logging"
	"github.com/vpastila/mineserv/internal/models"
	"github.com/vpastila/mineserv/internal/properties"
	"github.com/vpastila/mineserv/internal/server"
)

// InstanceHandler serves the instance lifecycle routes.
type InstanceHandler struct {
	registry *server.Registry
	store    *database.InstanceStore
	activity *logging.ActivityLogger
	dl       *downloader.Manager
	wg       sync.WaitGroup
}

// NewInstanceHandler creates the instance handler.
func NewInstanceHandler(registry *server.Registry, store *database.InstanceStore, activity *logging.ActivityLogger, dl *downloader.Manager) *InstanceHandler {
	return &InstanceHandler{
		registry: registry,
		store:    store,
		activity: activity,
		dl:       dl,
	}
}

// WaitForCompletion blocks until background provisioning finishes. Called
// during shutdown.
func (h *InstanceHandler) WaitForCompletion() {
	h.wg.Wait()
}

// instanceID parses the :id route parameter. A malformed id gets a 400 and
// a false return.
func instanceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid instance id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondLifecycleError maps registry errors onto HTTP statuses.
func respondLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, server.ErrInstanceNotFound), errors.Is(err, database.ErrInstanceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
	case errors.Is(err, server.ErrAlreadyRunning),
		errors.Is(err, server.ErrNotRunning),
		errors.Is(err, server.ErrInstanceRunning),
		errors.Is(err, server.ErrNoInputChannel),
		errors.Is(err, server.ErrExecutableMissing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// List returns every registered instance with its current state.
func (h *InstanceHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// Get returns one instance with its current state.
func (h *InstanceHandler) Get(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	status, err := h.registry.Get(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type createInstanceRequest struct {
	Name             string            `json:"name" binding:"required"`
	ServerType       string            `json:"server_type"`
	MinecraftVersion string            `json:"minecraft_version" binding:"required"`
	Port             int               `json:"port"`
	MaxPlayers       int               `json:"max_players"`
	MemoryMB         int               `json:"memory_mb"`
	AutoStart        bool              `json:"auto_start"`
	Properties       map[string]string `json:"properties"`
}

// Create registers a new instance and provisions its working directory. The
// server jar download runs in the background; the instance can be started
// once it lands.
func (h *InstanceHandler) Create(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serverType := models.ServerType(req.ServerType)
	if req.ServerType == "" {
		serverType = models.TypePaper
	}

	cfg := models.NewInstanceConfig(req.Name, serverType, req.MinecraftVersion)
	if req.Port != 0 {
		cfg.Port = req.Port
	}
	if req.MaxPlayers != 0 {
		cfg.MaxPlayers = req.MaxPlayers
	}
	if req.MemoryMB != 0 {
		cfg.MemoryMB = req.MemoryMB
	}
	cfg.AutoStart = req.AutoStart
	if req.Properties != nil {
		cfg.Properties = req.Properties
	}

	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Create(cfg); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.Add(cfg); err != nil {
		h.store.Delete(cfg.ID)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	instanceDir := h.registry.InstanceDir(cfg.ID)
	if err := h.provisionDir(instanceDir, cfg); err != nil {
		h.registry.Remove(cfg.ID)
		h.store.Delete(cfg.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := h.dl.EnsureServerJar(context.Background(), cfg, instanceDir)
		h.activity.RecordOp(cfg.ID.String(), logging.ActivityInstanceCreate,
			fmt.Sprintf("provisioned %s %s", cfg.ServerType, cfg.MinecraftVersion), err)
		if err != nil {
			log.Printf("[API] Failed to download server jar for %s: %v", cfg.Name, err)
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"instance": cfg, "state": models.StateStopped})
}

func (h *InstanceHandler) provisionDir(instanceDir string, cfg models.InstanceConfig) error {
	if err := os.MkdirAll(instanceDir, 0755); err != nil {
		return fmt.Errorf("failed to create instance dir: %w", err)
	}
	if err := downloader.AcceptEULA(instanceDir); err != nil {
		return err
	}
	return properties.Apply(filepath.Join(instanceDir, properties.FileName), cfg)
}

type updateInstanceRequest struct {
	Name       *string           `json:"name"`
	Port       *int              `json:"port"`
	MaxPlayers *int              `json:"max_players"`
	MemoryMB   *int              `json:"memory_mb"`
	AutoStart  *bool             `json:"auto_start"`
	Properties map[string]string `json:"properties"`
}

// Update changes the declared configuration of a stopped instance. Server
// type and version are fixed at creation.
func (h *InstanceHandler) Update(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	var req updateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.registry.Get(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	cfg := status.Config
	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.Port != nil {
		cfg.Port = *req.Port
	}
	if req.MaxPlayers != nil {
		cfg.MaxPlayers = *req.MaxPlayers
	}
	if req.MemoryMB != nil {
		cfg.MemoryMB = *req.MemoryMB
	}
	if req.AutoStart != nil {
		cfg.AutoStart = *req.AutoStart
	}
	if req.Properties != nil {
		cfg.Properties = req.Properties
	}

	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.UpdateConfig(cfg); err != nil {
		respondLifecycleError(c, err)
		return
	}
	if err := h.store.Update(cfg); err != nil {
		respondLifecycleError(c, err)
		return
	}
	if err := properties.Apply(filepath.Join(h.registry.InstanceDir(id), properties.FileName), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.activity.RecordOp(id.String(), logging.ActivityConfigUpdate, "configuration updated", nil)
	c.JSON(http.StatusOK, gin.H{"instance": cfg})
}

// Delete removes a stopped instance, its record and its working directory.
func (h *InstanceHandler) Delete(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	instanceDir := h.registry.InstanceDir(id)
	if err := h.registry.Remove(id); err != nil {
		respondLifecycleError(c, err)
		return
	}
	if err := h.store.Delete(id); err != nil && !errors.Is(err, database.ErrInstanceNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := os.RemoveAll(instanceDir); err != nil {
		log.Printf("[API] Failed to remove instance dir %s: %v", instanceDir, err)
	}

	h.activity.RecordOp(id.String(), logging.ActivityInstanceDelete, "instance deleted", nil)
	c.JSON(http.StatusOK, gin.H{"message": "Instance deleted"})
}

// Start launches the instance's server process.
func (h *InstanceHandler) Start(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	pid, err := h.registry.Start(id)
	h.activity.RecordOp(id.String(), logging.ActivityInstanceStart, "start requested", err)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pid": pid, "state": models.StateRunning})
}

// Stop asks the server to shut down gracefully.
func (h *InstanceHandler) Stop(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	err := h.registry.Stop(id)
	h.activity.RecordOp(id.String(), logging.ActivityInstanceStop, "stop requested", err)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": models.StateStopping})
}

// Kill terminates the server process immediately.
func (h *InstanceHandler) Kill(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	err := h.registry.ForceStop(id)
	h.activity.RecordOp(id.String(), logging.ActivityInstanceStop, "force stop requested", err)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": models.StateStopped})
}

// Restart stops the instance, waiting out the grace period, and starts it
// again.
func (h *InstanceHandler) Restart(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	pid, err := h.registry.Restart(id)
	h.activity.RecordOp(id.String(), logging.ActivityInstanceRestart, "restart requested", err)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pid": pid, "state": models.StateRunning})
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// Command writes one console command to the server's stdin.
func (h *InstanceHandler) Command(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.registry.SendCommand(id, req.Command)
	h.activity.RecordOp(id.String(), logging.ActivityCommandExecute, req.Command, err)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Command sent"})
}

// Stats returns a resource sample for one running instance.
func (h *InstanceHandler) Stats(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}
	stats, err := h.registry.Stats(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AggregateStats sums resource usage across all running instances.
func (h *InstanceHandler) AggregateStats(c *gin.Context) {
	var total models.InstanceStats
	running := 0
	for _, status := range h.registry.List() {
		stats, err := h.registry.Stats(status.Config.ID)
		if err != nil {
			continue
		}
		running++
		total.CPUPercent += stats.CPUPercent
		total.MemoryMB += stats.MemoryMB
		if stats.UptimeSeconds > total.UptimeSeconds {
			total.UptimeSeconds = stats.UptimeSeconds
		}
	}
	c.JSON(http.StatusOK, gin.H{"running": running, "totals": total})
}

// Activity returns the most recent recorded operations, optionally filtered
// to one instance.
func (h *InstanceHandler) Activity(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	instanceID := c.Param("id")
	if instanceID == "" {
		instanceID = c.Query("instance_id")
	}

	activities, err := h.activity.Recent(instanceID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, activities)
}
