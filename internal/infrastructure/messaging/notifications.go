package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// Level is the severity of a notification.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is an operator-facing message.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	DamID     string    `json:"damId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNotification stamps a notification with an id and the current time.
func NewNotification(level Level, message string) Notification {
	return Notification{
		ID:        ulid.Make().String(),
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// SSEFrame renders n as a server-sent event.
func (n Notification) SSEFrame() (string, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("id: %s\nevent: notification\ndata: %s\n\n", n.ID, data), nil
}

// NotificationBroadcaster fans notifications out to the SSE clients of a realm.
type NotificationBroadcaster struct {
	realmClients map[string]map[string]chan string // realm -> clientId -> channel
	mu           sync.Mutex
	logger       *logging.ChanneledLogger
}

// NewNotificationBroadcaster creates an empty broadcaster.
func NewNotificationBroadcaster(logger *logging.ChanneledLogger) *NotificationBroadcaster {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &NotificationBroadcaster{
		realmClients: make(map[string]map[string]chan string),
		logger:       logger,
	}
}

// AddClient registers an SSE client of realm.
func (b *NotificationBroadcaster) AddClient(realm string) (string, chan string) {
	id := ulid.Make().String()
	ch := make(chan string, 10)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.realmClients[realm] == nil {
		b.realmClients[realm] = make(map[string]chan string)
	}
	b.realmClients[realm][id] = ch

	b.logger.SSE().Debug("SSE client registered", "realm", realm, "clientId", id)
	return id, ch
}

// RemoveClient unregisters a client and closes its channel.
func (b *NotificationBroadcaster) RemoveClient(realm, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, exists := b.realmClients[realm]
	if !exists {
		return
	}
	if ch, ok := clients[id]; ok {
		close(ch)
		delete(clients, id)
	}
	if len(clients) == 0 {
		delete(b.realmClients, realm)
	}
	b.logger.SSE().Debug("SSE client unregistered", "realm", realm, "clientId", id)
}

// ClientCount returns the number of clients listening on realm.
func (b *NotificationBroadcaster) ClientCount(realm string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.realmClients[realm])
}

// Publish sends n to every client of realm. Full client buffers drop the message.
func (b *NotificationBroadcaster) Publish(realm string, n Notification) {
	frame, err := n.SSEFrame()
	if err != nil {
		b.logger.SSE().Error("Failed to encode notification", "realm", realm, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.realmClients[realm] {
		select {
		case ch <- frame:
		default:
			b.logger.SSE().Warn("SSE channel full, message dropped", "realm", realm, "clientId", id)
		}
	}
}
