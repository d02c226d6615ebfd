// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/container"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/monitoring"
	"github.com/dnastack/ddap-admin/internal/presentation/http/handlers"
	"github.com/dnastack/ddap-admin/internal/presentation/http/middleware"
	"github.com/dnastack/ddap-admin/pkg/config"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.RequestID())
	r.Use(middleware.CORSMiddleware(config.CORSAllowedOrigins))
	r.Use(middleware.Metrics(container.RealmMonitor))

	if config.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(monitoring.Handler(container.Metrics)))
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "realms": container.RealmManager.Realms()})
	})

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(container.AuthService, container.Logger)
	damHandlers := handlers.NewDamHandlers(container.Registry, container.Logger)
	configHandlers := handlers.NewConfigHandlers(container.Registry, container.Logger)
	streamHandlers := handlers.NewStreamHandlers(
		container.Registry,
		container.StatusBroadcaster,
		container.Notifications,
		container.RealmMonitor,
		time.Duration(config.SSEHeartbeatIntervalSeconds)*time.Second,
		config.CORSAllowedOrigins,
		container.Logger,
	)
	logHandlers := handlers.NewLogHandlers(container.Logger, container.LogBroadcaster)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.GET("/status", authHandlers.GetStatus)
			auth.POST("/login", authHandlers.PostLogin)
			auth.POST("/logout", authHandlers.PostLogout)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(container.AuthService))

		logs := protected.Group("/logs")
		{
			logs.GET("/stream", logHandlers.StreamLogs)
			logs.GET("/levels", logHandlers.GetLogLevels)
			logs.POST("/levels", logHandlers.SetLogLevel)
		}

		realmAPI := protected.Group("/:realm")
		realmAPI.Use(middleware.RealmMiddleware(container.RealmManager, container.Logger))
		{
			realmAPI.GET("/notifications/stream", streamHandlers.StreamNotifications)
			realmAPI.GET("/cache/status/ws", streamHandlers.CacheStatus)

			realmAPI.GET("/dams", damHandlers.ListDams)
			dams := realmAPI.Group("/dams/:damId")
			{
				dams.GET("/status", damHandlers.GetStatus)
				dams.POST("/invalidate", damHandlers.Invalidate)
				dams.GET("/options", damHandlers.GetOptions)
				dams.PUT("/options", damHandlers.PutOptions)

				dams.GET("/config/:collection", configHandlers.ListEntities)
				dams.GET("/config/:collection/:name", configHandlers.GetEntity)
				dams.PUT("/config/:collection/:name", configHandlers.PutEntity)
				dams.DELETE("/config/:collection/:name", configHandlers.DeleteEntity)

				dams.GET("/watch/:collection", streamHandlers.WatchCollection)
			}
		}
	}

	return r
}
