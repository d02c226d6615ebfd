// Package fakedam serves a minimal Data Access Manager backed by damdb, so
// the console can run end to end without a real DAM.
package fakedam

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/domain/entities/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/persistence/damdb"
)

// Options configures the emulator.
type Options struct {
	Label        string
	ClientID     string
	ClientSecret string
	// SeedRealms are filled with demo content the first time they are read.
	SeedRealms bool
}

// Handlers implements the DAM config endpoints.
type Handlers struct {
	repo    *damdb.Repository
	opts    Options
	creator *damdb.TableCreator
	logger  *logging.ChanneledLogger
}

// NewHandlers creates the emulator handlers.
func NewHandlers(repo *damdb.Repository, opts Options, logger *logging.ChanneledLogger) *Handlers {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if opts.Label == "" {
		opts.Label = "Fake DAM"
	}
	return &Handlers{repo: repo, opts: opts, creator: damdb.NewTableCreator(), logger: logger}
}

// SetupRoutes builds the emulator router.
func SetupRoutes(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/dam", h.Info)

	api := r.Group("/dam/v1alpha/:realm")
	api.Use(h.requireClient)
	{
		api.GET("/config", h.GetConfig)
		api.PUT("/config/options", h.PutOptions)
		api.PUT("/config/:collection/:name", h.PutEntity)
		api.DELETE("/config/:collection/:name", h.DeleteEntity)
	}
	return r
}

// Info handles GET /dam
func (h *Handlers) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":     "dam",
		"versions": []string{"v1alpha"},
		"ui":       gin.H{"label": h.opts.Label},
	})
}

// GetConfig handles GET /dam/v1alpha/:realm/config
func (h *Handlers) GetConfig(c *gin.Context) {
	realm := c.Param("realm")
	ctx := c.Request.Context()

	if h.opts.SeedRealms {
		if err := h.creator.SeedRealm(ctx, h.repo, realm); err != nil {
			h.fail(c, http.StatusInternalServerError, err)
			return
		}
	}

	doc, err := h.repo.Document(ctx, realm)
	if errors.Is(err, damdb.ErrNotFound) {
		abort(c, http.StatusNotFound, "realm \""+realm+"\" not found")
		return
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PutEntity handles PUT /dam/v1alpha/:realm/config/:collection/:name
func (h *Handlers) PutEntity(c *gin.Context) {
	start := time.Now()
	realm, collection, name := c.Param("realm"), c.Param("collection"), c.Param("name")

	var change entities.ConfigModification
	if err := c.ShouldBindJSON(&change); err != nil {
		abort(c, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if err := dam.Validate(collection, change.Item); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if change.DryRun() {
		c.JSON(http.StatusOK, gin.H{"dryRun": true})
		return
	}

	revision, err := h.repo.UpsertEntity(c.Request.Context(), realm, collection, name, change.Item)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	h.logger.DAM().Info("Fake DAM stored entity", "realm", realm, "collection", collection, "name", name, "revision", revision, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"revision": revision})
}

// DeleteEntity handles DELETE /dam/v1alpha/:realm/config/:collection/:name
func (h *Handlers) DeleteEntity(c *gin.Context) {
	realm, collection, name := c.Param("realm"), c.Param("collection"), c.Param("name")

	revision, err := h.repo.DeleteEntity(c.Request.Context(), realm, collection, name)
	if errors.Is(err, damdb.ErrNotFound) {
		abort(c, http.StatusNotFound, collection+" \""+name+"\" not found")
		return
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	h.logger.DAM().Info("Fake DAM deleted entity", "realm", realm, "collection", collection, "name", name, "revision", revision)
	c.JSON(http.StatusOK, gin.H{"revision": revision})
}

// PutOptions handles PUT /dam/v1alpha/:realm/config/options
func (h *Handlers) PutOptions(c *gin.Context) {
	realm := c.Param("realm")

	var change entities.ConfigModification
	if err := c.ShouldBindJSON(&change); err != nil {
		abort(c, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	var options map[string]json.RawMessage
	if err := json.Unmarshal(change.Item, &options); err != nil || options == nil {
		abort(c, http.StatusBadRequest, "options must be a JSON object")
		return
	}
	if change.DryRun() {
		c.JSON(http.StatusOK, gin.H{"dryRun": true})
		return
	}

	revision, err := h.repo.PutOptions(c.Request.Context(), realm, change.Item)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	h.logger.DAM().Info("Fake DAM stored options", "realm", realm, "revision", revision)
	c.JSON(http.StatusOK, gin.H{"revision": revision})
}

// requireClient checks the client credentials every config call carries.
func (h *Handlers) requireClient(c *gin.Context) {
	if h.opts.ClientID == "" {
		c.Next()
		return
	}
	if c.Query("client_id") != h.opts.ClientID || c.Query("client_secret") != h.opts.ClientSecret {
		h.logger.Auth().Warn("Fake DAM rejected client", "clientId", c.Query("client_id"), "path", c.FullPath())
		abort(c, http.StatusUnauthorized, "unrecognized client credentials")
		return
	}
	c.Next()
}

func (h *Handlers) fail(c *gin.Context, status int, err error) {
	h.logger.DAM().Error("Fake DAM request failed", "path", c.FullPath(), "error", err)
	abort(c, status, err.Error())
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": status, "message": message}})
}
