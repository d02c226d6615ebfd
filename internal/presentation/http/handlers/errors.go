// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/realm"
	"github.com/dnastack/ddap-admin/internal/application/services"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/presentation/http/middleware"
)

// errorStatus maps a service error to the status the console sees.
func errorStatus(err error) int {
	var loadErr *services.LoadError
	var writeErr *services.WriteError
	switch {
	case errors.Is(err, dam.ErrUnknownDam):
		return http.StatusNotFound
	case errors.Is(err, realm.ErrInvalidRealm):
		return http.StatusBadRequest
	case errors.Is(err, stores.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &loadErr), errors.As(err, &writeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. DAM failures carry the
// operator-facing message plus whatever the DAM said about it.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}

	var loadErr *services.LoadError
	var writeErr *services.WriteError
	switch {
	case errors.As(err, &loadErr) && !errors.Is(err, dam.ErrUnknownDam):
		body["error"] = loadErr.Message
		body["damId"] = loadErr.DamID
	case errors.As(err, &writeErr):
		body["error"] = writeErr.Message
		body["name"] = writeErr.Name
	}
	if detail := services.BackendMessage(err); detail != "" {
		body["detail"] = detail
	}
	if status := services.BackendStatus(err); status != 0 {
		body["backendStatus"] = status
	}
	if id := middleware.GetRequestID(c); id != "" {
		body["requestId"] = id
	}

	c.JSON(errorStatus(err), body)
}

// realmContext fetches the realm context or fails the request.
func realmContext(c *gin.Context) (*realm.Context, bool) {
	realmCtx, exists := middleware.GetRealmContext(c)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "realm context not found"})
		return nil, false
	}
	return realmCtx, true
}

// damInstance checks the :damId parameter against the registry.
func damInstance(c *gin.Context, registry *dam.Registry) (dam.Instance, bool) {
	inst, err := registry.Get(c.Param("damId"))
	if err != nil {
		respondError(c, err)
		return dam.Instance{}, false
	}
	return inst, true
}

// clearWriteDeadline lifts the server write timeout for long-lived streams.
// Writers that cannot change deadlines keep the server default.
func clearWriteDeadline(c *gin.Context) {
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
}
