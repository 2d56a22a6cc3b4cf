package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpastila/mineserv/internal/api/handlers"
	"github.com/vpastila/mineserv/internal/api/middleware"
	"github.com/vpastila/mineserv/internal/auth"
	"github.com/vpastila/mineserv/internal/backup"
	"github.com/vpastila/mineserv/internal/config"
	"github.com/vpastila/mineserv/internal/database"
	"github.com/vpastila/mineserv/internal/downloader"
	"github.com/vpastila/mineserv/internal/logging"
	"github.com/vpastila/mineserv/internal/metrics"
	"github.com/vpastila/mineserv/internal/plugins"
	"github.com/vpastila/mineserv/internal/server"
)

// SetupRouter configures and returns the HTTP router together with a
// shutdown func that waits for background provisioning work.
func SetupRouter(
	cfg *config.Config,
	registry *server.Registry,
	store *database.InstanceStore,
	activity *logging.ActivityLogger,
	dl *downloader.Manager,
	pluginMgr *plugins.Manager,
	backups *backup.Service,
	collector *metrics.Collector,
	authn *auth.Authenticator,
) (*gin.Engine, func()) {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Server.CORS))

	authHandler := handlers.NewAuthHandler(authn)
	instanceHandler := handlers.NewInstanceHandler(registry, store, activity, dl)
	consoleHandler := handlers.NewConsoleHandler(registry, cfg.Server.CORS)
	fileHandler := handlers.NewFileHandler(registry)
	worldHandler := handlers.NewWorldHandler(registry, backups)
	pluginHandler := handlers.NewPluginHandler(registry, pluginMgr)
	propertiesHandler := handlers.NewPropertiesHandler(registry)
	versionHandler := handlers.NewVersionHandler(dl)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Enabled && collector != nil {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", authHandler.Login)
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(authn.Tokens()))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/versions", versionHandler.List)
		protected.GET("/stats", instanceHandler.AggregateStats)
		protected.GET("/activity", instanceHandler.Activity)

		protected.GET("/instances", instanceHandler.List)
		protected.POST("/instances", instanceHandler.Create)
		protected.GET("/instances/:id", instanceHandler.Get)
		protected.PUT("/instances/:id", instanceHandler.Update)
		protected.DELETE("/instances/:id", instanceHandler.Delete)

		protected.POST("/instances/:id/start", instanceHandler.Start)
		protected.POST("/instances/:id/stop", instanceHandler.Stop)
		protected.POST("/instances/:id/kill", instanceHandler.Kill)
		protected.POST("/instances/:id/restart", instanceHandler.Restart)
		protected.POST("/instances/:id/command", instanceHandler.Command)
		protected.GET("/instances/:id/stats", instanceHandler.Stats)
		protected.GET("/instances/:id/activity", instanceHandler.Activity)

		protected.GET("/instances/:id/console", consoleHandler.HandleWebSocket)

		protected.GET("/instances/:id/files", fileHandler.List)
		protected.GET("/instances/:id/files/content", fileHandler.Read)
		protected.PUT("/instances/:id/files/content", fileHandler.Write)
		protected.DELETE("/instances/:id/files/content", fileHandler.Delete)

		protected.GET("/instances/:id/properties", propertiesHandler.Get)
		protected.PUT("/instances/:id/properties", propertiesHandler.Update)

		protected.GET("/instances/:id/worlds", worldHandler.List)
		protected.POST("/instances/:id/worlds/:world/backup", worldHandler.Backup)
		protected.POST("/instances/:id/worlds/:world/restore", worldHandler.Restore)
		protected.DELETE("/instances/:id/worlds/:world", worldHandler.Delete)

		protected.GET("/instances/:id/backups", worldHandler.ListBackups)
		protected.GET("/instances/:id/backups/:backup/download", worldHandler.DownloadBackup)
		protected.DELETE("/instances/:id/backups/:backup", worldHandler.DeleteBackup)

		protected.GET("/instances/:id/plugins", pluginHandler.List)
		protected.GET("/instances/:id/plugins/search", pluginHandler.Search)
		protected.POST("/instances/:id/plugins", pluginHandler.Install)
		protected.DELETE("/instances/:id/plugins/:plugin", pluginHandler.Remove)
	}

	shutdown := func() {
		instanceHandler.WaitForCompletion()
	}

	return router, shutdown
}
