// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dnastack/ddap-admin/internal/application/realm"
	"github.com/dnastack/ddap-admin/internal/application/services"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/email"
	"github.com/dnastack/ddap-admin/internal/infrastructure/messaging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/monitoring"
	"github.com/dnastack/ddap-admin/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	AuthService  *services.AuthService
	RealmManager *realm.Manager

	// Messaging
	Notifications     *messaging.NotificationBroadcaster
	StatusBroadcaster *messaging.StatusBroadcaster

	// Infrastructure Dependencies
	Registry  *dam.Registry
	Transport dam.Transport

	// Observability
	Logger         *logging.ChanneledLogger
	LogBroadcaster *logging.LogBroadcaster
	Metrics        *prometheus.Registry
	CacheMonitor   *monitoring.CacheMonitor
	RealmMonitor   *monitoring.RealmMonitor
}

// NewContainer creates and wires all singleton services
func NewContainer(registry *dam.Registry, transport dam.Transport, logger *logging.ChanneledLogger) *Container {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	metrics := monitoring.NewRegistry()
	cacheMonitor := monitoring.NewCacheMonitor(metrics)
	realmMonitor := monitoring.NewRealmMonitor(metrics)

	notifications := messaging.NewNotificationBroadcaster(logger)
	var notifier services.ErrorNotifier = services.NewBroadcastNotifier(notifications, logger)
	if len(config.AlertEmailTo) > 0 {
		mailer, err := email.NewService(email.Config{
			APIKey: config.ResendAPIKey,
			From:   config.AlertEmailFrom,
			To:     config.AlertEmailTo,
		})
		if err != nil {
			logger.Startup().Warn("Email alerts disabled", "error", err)
		} else {
			notifier = services.NewMailingNotifier(notifier, mailer, config.AlertEmailInterval, config.ConsoleURL, logger)
		}
	}

	realmManager := realm.NewManager(realm.Dependencies{
		Registry:  registry,
		Transport: transport,
		Notifier:  notifier,
		Observer:  cacheMonitor,
		Recorder:  realmMonitor,
		Logger:    logger,
		MaxRealms: config.MaxRealms,
	})

	return &Container{
		AuthService:  services.NewAuthService(config.AdminPasswordHash, config.JWTSecret, config.JWTTTL, logger),
		RealmManager: realmManager,

		Notifications:     notifications,
		StatusBroadcaster: messaging.NewStatusBroadcaster(realmManager, config.StatusBroadcastInterval, logger),

		Registry:  registry,
		Transport: transport,

		Logger:         logger,
		LogBroadcaster: logging.GetBroadcaster(),
		Metrics:        metrics,
		CacheMonitor:   cacheMonitor,
		RealmMonitor:   realmMonitor,
	}
}

// Close releases every realm cache.
func (c *Container) Close() {
	c.RealmManager.Close()
}
