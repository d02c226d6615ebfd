package handlers

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dnastack/ddap-admin/internal/application/views"
	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/messaging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// StreamRecorder counts open live connections by kind.
type StreamRecorder interface {
	StreamOpened(kind string)
	StreamClosed(kind string)
}

// StreamHandlers serves the live channels of the console: projection
// websockets, the cache dashboard and notification SSE.
type StreamHandlers struct {
	registry      *dam.Registry
	status        *messaging.StatusBroadcaster
	notifications messaging.Broadcaster
	recorder      StreamRecorder
	heartbeat     time.Duration
	upgrader      websocket.Upgrader
	logger        *logging.ChanneledLogger
}

// NewStreamHandlers creates stream handlers. Websocket upgrades are accepted
// from allowedOrigins and from clients that send no Origin.
func NewStreamHandlers(
	registry *dam.Registry,
	status *messaging.StatusBroadcaster,
	notifications messaging.Broadcaster,
	recorder StreamRecorder,
	heartbeat time.Duration,
	allowedOrigins []string,
	logger *logging.ChanneledLogger,
) *StreamHandlers {
	return &StreamHandlers{
		registry:      registry,
		status:        status,
		notifications: notifications,
		recorder:      recorder,
		heartbeat:     heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// WatchCollection handles GET /api/v1/:realm/dams/:damId/watch/:collection.
// It pushes the list projection on every cache commit, or the detail
// projection of ?name= when given.
func (h *StreamHandlers) WatchCollection(c *gin.Context) {
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}
	inst, ok := damInstance(c, h.registry)
	if !ok {
		return
	}
	es, ok := realmCtx.Collection(c.Param("collection"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection", "collections": realmCtx.CollectionNames()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.SSE().Warn("Websocket upgrade failed", "realm", realmCtx.Realm, "error", err)
		return
	}

	kind := "watch_list"
	name := c.Query("name")
	if name != "" {
		kind = "watch_detail"
	}
	h.recorder.StreamOpened(kind)
	defer h.recorder.StreamClosed(kind)

	ctx := c.Request.Context()
	h.logger.SSE().Info("Projection watch opened", "realm", realmCtx.Realm, "damId", inst.ID, "collection", es.Collection(), "name", name)
	if name != "" {
		messaging.StreamSubscription(ctx, conn, views.Detail(ctx, es, inst.ID, name), "detail", realmCtx.Realm, inst.ID, h.logger)
	} else {
		opts := views.ListOptions{DescriptionProperty: c.DefaultQuery("description", defaultDescriptionProperty)}
		messaging.StreamSubscription(ctx, conn, views.List(ctx, es, inst.ID, opts), "list", realmCtx.Realm, inst.ID, h.logger)
	}
	h.logger.SSE().Info("Projection watch closed", "realm", realmCtx.Realm, "damId", inst.ID, "collection", es.Collection(), "name", name)
}

// CacheStatus handles GET /api/v1/:realm/cache/status/ws
func (h *StreamHandlers) CacheStatus(c *gin.Context) {
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.SSE().Warn("Websocket upgrade failed", "realm", realmCtx.Realm, "error", err)
		return
	}

	h.recorder.StreamOpened("cache_status")
	defer h.recorder.StreamClosed("cache_status")
	h.status.Serve(c.Request.Context(), conn, realmCtx.Realm)
}

// StreamNotifications handles GET /api/v1/:realm/notifications/stream
func (h *StreamHandlers) StreamNotifications(c *gin.Context) {
	realmCtx, ok := realmContext(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clearWriteDeadline(c)
	id, ch := h.notifications.AddClient(realmCtx.Realm)
	defer h.notifications.RemoveClient(realmCtx.Realm, id)
	h.recorder.StreamOpened("notifications")
	defer h.recorder.StreamClosed("notifications")

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-ch:
			if !ok {
				return false
			}
			fmt.Fprint(w, frame)
			return true
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
