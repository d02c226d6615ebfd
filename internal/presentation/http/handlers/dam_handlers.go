package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// DamHandlers serves the registered DAMs, their cache entries and options.
type DamHandlers struct {
	registry *dam.Registry
	logger   *logging.ChanneledLogger
}

// NewDamHandlers creates DAM handlers with injected dependencies
func NewDamHandlers(registry *dam.Registry, logger *logging.ChanneledLogger) *DamHandlers {
	return &DamHandlers{
		registry: registry,
		logger:   logger,
	}
}

// ListDams handles GET /api/v1/:realm/dams
func (h *DamHandlers) ListDams(c *gin.Context) {
	start := time.Now()
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}

	dams := realmCtx.Dams.Dams(c.Request.Context())

	h.logger.DAM().Info("List DAMs request completed", "realm", realmCtx.Realm, "count", len(dams), "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"dams":  dams,
		"count": len(dams),
	})
}

// GetStatus handles GET /api/v1/:realm/dams/:damId/status
func (h *DamHandlers) GetStatus(c *gin.Context) {
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}
	inst, ok := damInstance(c, h.registry)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, realmCtx.Store.Status(inst.ID))
}

// Invalidate handles POST /api/v1/:realm/dams/:damId/invalidate. With
// ?wait=true it answers once the fresh document has settled.
func (h *DamHandlers) Invalidate(c *gin.Context) {
	start := time.Now()
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}
	inst, ok := damInstance(c, h.registry)
	if !ok {
		return
	}

	realmCtx.Store.Invalidate(inst.ID)
	if c.Query("wait") == "true" {
		if err := realmCtx.Store.Await(c.Request.Context(), inst.ID); err != nil {
			respondError(c, err)
			return
		}
	}

	h.logger.Cache().Info("Cache invalidated", "realm", realmCtx.Realm, "damId", inst.ID, "duration", time.Since(start))
	c.JSON(http.StatusAccepted, realmCtx.Store.Status(inst.ID))
}

// GetOptions handles GET /api/v1/:realm/dams/:damId/options
func (h *DamHandlers) GetOptions(c *gin.Context) {
	start := time.Now()
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}
	inst, ok := damInstance(c, h.registry)
	if !ok {
		return
	}

	options, err := realmCtx.Options.Get(c.Request.Context(), inst.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.DAM().Debug("Get options request completed", "realm", realmCtx.Realm, "damId", inst.ID, "count", options.Len(), "duration", time.Since(start))
	c.JSON(http.StatusOK, options)
}

// PutOptions handles PUT /api/v1/:realm/dams/:damId/options. The body is
// the complete options object.
func (h *DamHandlers) PutOptions(c *gin.Context) {
	start := time.Now()
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}
	inst, ok := damInstance(c, h.registry)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	var options entities.Collection
	if err := json.Unmarshal(body, &options); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "options must be a JSON object", "details": err.Error()})
		return
	}

	if err := realmCtx.Options.Update(c.Request.Context(), inst.ID, options); err != nil {
		respondError(c, err)
		return
	}
	realmCtx.Store.Invalidate(inst.ID)

	h.logger.DAM().Info("Options updated", "realm", realmCtx.Realm, "damId", inst.ID, "duration", time.Since(start))
	c.JSON(http.StatusOK, options)
}
