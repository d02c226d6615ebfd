package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// LogHandlers streams the process log and adjusts channel levels at runtime.
type LogHandlers struct {
	logger      *logging.ChanneledLogger
	broadcaster *logging.LogBroadcaster
}

// NewLogHandlers creates log handlers
func NewLogHandlers(logger *logging.ChanneledLogger, broadcaster *logging.LogBroadcaster) *LogHandlers {
	return &LogHandlers{
		logger:      logger,
		broadcaster: broadcaster,
	}
}

// StreamLogs handles the SSE connection for live log streaming.
func (h *LogHandlers) StreamLogs(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Log broadcaster not available"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	logLevel, err := logging.ParseLevel(c.DefaultQuery("level", "INFO"))
	if err != nil {
		logLevel = slog.LevelInfo
	}
	filters := logging.AppliedFilters{
		Channel: logging.Channel(c.DefaultQuery("channel", "all")),
		Level:   logLevel,
	}

	clearWriteDeadline(c)
	client := h.broadcaster.NewClient(filters)
	h.broadcaster.RegisterClient(client)
	defer h.broadcaster.UnregisterClient(client)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client.Channel:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// GetLogLevels handles GET /api/v1/logs/levels - returns current log levels for all channels.
func (h *LogHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel handles POST /api/v1/logs/levels - sets the log level for a specific channel.
func (h *LogHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to set log level", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": fmt.Sprintf("Log level for channel '%s' set to '%s'", req.Channel, req.Level)})
}
