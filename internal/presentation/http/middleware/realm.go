// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/realm"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

const realmKey = "realm"

// RealmMiddleware resolves the :realm path parameter to its cache context,
// creating the context on first use. The realm stays pinned until the
// request completes.
func RealmMiddleware(manager *realm.Manager, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		name := c.Param("realm")

		realmCtx, release, err := manager.Acquire(name)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, realm.ErrInvalidRealm):
				status = http.StatusBadRequest
			case errors.Is(err, realm.ErrTooManyRealms), errors.Is(err, stores.ErrStoreClosed):
				status = http.StatusServiceUnavailable
			}
			logger.Realm().Warn("Realm resolution failed", "realm", name, "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		logger.Realm().Debug("Realm context resolved", "realm", realmCtx.Realm, "duration", time.Since(start))
		defer release()
		c.Set(realmKey, realmCtx)
		c.Next()
	}
}

// GetRealmContext retrieves the realm context set by RealmMiddleware.
func GetRealmContext(c *gin.Context) (*realm.Context, bool) {
	v, exists := c.Get(realmKey)
	if !exists {
		return nil, false
	}
	ctx, ok := v.(*realm.Context)
	return ctx, ok
}
