package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/realm"
	"github.com/dnastack/ddap-admin/internal/application/views"
	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

const defaultDescriptionProperty = "dto.ui.description"

// ConfigHandlers serves the entity collections of a DAM configuration from
// the realm's cache and writes changes through to the DAM.
type ConfigHandlers struct {
	registry *dam.Registry
	logger   *logging.ChanneledLogger
}

// NewConfigHandlers creates config handlers with injected dependencies
func NewConfigHandlers(registry *dam.Registry, logger *logging.ChanneledLogger) *ConfigHandlers {
	return &ConfigHandlers{
		registry: registry,
		logger:   logger,
	}
}

// entityStore resolves realm, DAM and collection of the request.
func (h *ConfigHandlers) entityStore(c *gin.Context) (*realm.Context, dam.Instance, *stores.DamConfigEntityStore[json.RawMessage], bool) {
	realmCtx, ok := realmContext(c)
	if !ok {
		return nil, dam.Instance{}, nil, false
	}
	inst, ok := damInstance(c, h.registry)
	if !ok {
		return nil, dam.Instance{}, nil, false
	}
	es, ok := realmCtx.Collection(c.Param("collection"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection", "collections": realmCtx.CollectionNames()})
		return nil, dam.Instance{}, nil, false
	}
	return realmCtx, inst, es, true
}

// ListEntities handles GET /api/v1/:realm/dams/:damId/config/:collection
func (h *ConfigHandlers) ListEntities(c *gin.Context) {
	start := time.Now()
	realmCtx, inst, es, ok := h.entityStore(c)
	if !ok {
		return
	}

	if err := es.Await(c.Request.Context(), inst.ID); err != nil {
		respondError(c, err)
		return
	}
	rows := views.Rows(es.List(inst.ID), views.ListOptions{
		DescriptionProperty: c.DefaultQuery("description", defaultDescriptionProperty),
	})

	h.logger.Cache().Debug("List entities request completed", "realm", realmCtx.Realm, "damId", inst.ID, "collection", es.Collection(), "count", len(rows), "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"items": rows,
		"count": len(rows),
	})
}

// GetEntity handles GET /api/v1/:realm/dams/:damId/config/:collection/:name
func (h *ConfigHandlers) GetEntity(c *gin.Context) {
	start := time.Now()
	realmCtx, inst, es, ok := h.entityStore(c)
	if !ok {
		return
	}
	name := c.Param("name")

	if err := es.Await(c.Request.Context(), inst.ID); err != nil {
		respondError(c, err)
		return
	}
	entity, found := es.Get(inst.ID, name)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found", "name": name})
		return
	}

	h.logger.Cache().Debug("Get entity request completed", "realm", realmCtx.Realm, "damId", inst.ID, "collection", es.Collection(), "name", name, "duration", time.Since(start))
	c.JSON(http.StatusOK, entity)
}

// PutEntity handles PUT /api/v1/:realm/dams/:damId/config/:collection/:name.
// The body is a ConfigModification; ?dry_run=true asks the DAM to validate
// only.
func (h *ConfigHandlers) PutEntity(c *gin.Context) {
	start := time.Now()
	realmCtx, inst, es, ok := h.entityStore(c)
	if !ok {
		return
	}
	name := c.Param("name")

	var change entities.ConfigModification
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if len(change.Item) == 0 || string(change.Item) == "null" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item is required"})
		return
	}
	if c.Query("dry_run") == "true" {
		if change.Modification == nil {
			change.Modification = map[string]any{}
		}
		change.Modification["dry_run"] = true
	}

	if err := es.Save(c.Request.Context(), inst.ID, name, change); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Cache().Info("Entity saved", "realm", realmCtx.Realm, "damId", inst.ID, "collection", es.Collection(), "name", name, "dryRun", change.DryRun(), "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"name":   name,
		"dryRun": change.DryRun(),
	})
}

// DeleteEntity handles DELETE /api/v1/:realm/dams/:damId/config/:collection/:name
func (h *ConfigHandlers) DeleteEntity(c *gin.Context) {
	start := time.Now()
	realmCtx, inst, es, ok := h.entityStore(c)
	if !ok {
		return
	}
	name := c.Param("name")

	if err := es.Remove(c.Request.Context(), inst.ID, name); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Cache().Info("Entity removed", "realm", realmCtx.Realm, "damId", inst.ID, "collection", es.Collection(), "name", name, "duration", time.Since(start))
	c.Status(http.StatusNoContent)
}
