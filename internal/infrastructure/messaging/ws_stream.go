package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stream"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Envelope is the JSON frame written to websocket clients.
type Envelope struct {
	Type      string    `json:"type"`
	Realm     string    `json:"realm,omitempty"`
	DamID     string    `json:"damId,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamSubscription writes every value of sub to conn, wrapped in an
// Envelope of msgType, until the peer goes away, sub ends or ctx is done.
// It owns conn and sub and closes both.
func StreamSubscription[T any](ctx context.Context, conn *websocket.Conn, sub *stream.Subscription[T], msgType, realm, damID string, logger *logging.ChanneledLogger) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		sub.Close()
		conn.Close()
	}()

	go readUntilClosed(conn, cancel, logger)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case v, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			payload, err := json.Marshal(Envelope{Type: msgType, Realm: realm, DamID: damID, Data: v, Timestamp: time.Now().UTC()})
			if err != nil {
				logger.SSE().Error("Failed to encode websocket frame", "realm", realm, "damId", damID, "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.SSE().Debug("Websocket write failed", "realm", realm, "damId", damID, "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are processed,
// and calls done once the connection fails.
func readUntilClosed(conn *websocket.Conn, done func(), logger *logging.ChanneledLogger) {
	defer done()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.SSE().Debug("Websocket closed unexpectedly", "error", err)
			}
			return
		}
	}
}
