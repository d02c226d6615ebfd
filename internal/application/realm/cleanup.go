package realm

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/dnastack/ddap-admin/pkg/config"
)

// CleanupConfig holds the idle-realm eviction settings.
type CleanupConfig struct {
	Interval         time.Duration
	IdleTimeout      time.Duration
	VerboseReporting bool
	Output           io.Writer
}

// NewCleanupConfig reads the eviction settings from the config package.
func NewCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:         config.RealmCleanupInterval,
		IdleTimeout:      config.RealmIdleTimeout,
		VerboseReporting: config.RealmCleanupVerbose,
		Output:           os.Stdout,
	}
}

// CleanupWorker periodically closes realms nobody has used or watched for
// longer than the idle timeout.
type CleanupWorker struct {
	manager *Manager
	config  CleanupConfig
}

func NewCleanupWorker(manager *Manager, cfg CleanupConfig) *CleanupWorker {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	return &CleanupWorker{manager: manager, config: cfg}
}

// Start runs until ctx is done.
func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.manager.deps.Logger.Realm().Info("Realm cleanup worker started", "interval", w.config.Interval, "idleTimeout", w.config.IdleTimeout, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.manager.deps.Logger.Shutdown().Info("Realm cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs one cleanup pass and returns the evicted realms.
func (w *CleanupWorker) RunOnce() []string {
	start := time.Now()
	reporter := NewReporter(w.manager, w.config.Output)

	if w.config.VerboseReporting {
		reporter.LogStage("PERIODIC REALM CLEANUP")
		for _, name := range w.manager.Realms() {
			reporter.WriteRealmReport(name)
		}
	}

	evicted := w.manager.EvictIdle(w.config.IdleTimeout)

	duration := time.Since(start)
	if len(evicted) > 0 {
		reporter.LogSuccess("Realm cleanup finished: %d idle realms closed in %v", len(evicted), duration)
		w.manager.deps.Logger.Realm().Info("Realm cleanup finished", "evicted", evicted, "duration", duration)
	} else if w.config.VerboseReporting {
		reporter.LogInfo("Realm cleanup completed - no idle realms (%v)", duration)
	}
	return evicted
}
