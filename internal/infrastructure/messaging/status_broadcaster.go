package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// StatusSource reports the cache status of a realm.
type StatusSource interface {
	CacheStatus(realm string) (any, error)
}

// StatusClient is one connected cache dashboard.
type StatusClient struct {
	Conn  *websocket.Conn
	Realm string
	Send  chan []byte
}

// StatusBroadcaster pushes periodic cache status snapshots to the dashboards
// of each realm.
type StatusBroadcaster struct {
	realmClients map[string]map[*StatusClient]bool
	register     chan *StatusClient
	unregister   chan *StatusClient
	done         chan struct{}
	source       StatusSource
	interval     time.Duration
	logger       *logging.ChanneledLogger
	mu           sync.RWMutex
}

// NewStatusBroadcaster creates a broadcaster that polls source every interval.
func NewStatusBroadcaster(source StatusSource, interval time.Duration, logger *logging.ChanneledLogger) *StatusBroadcaster {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusBroadcaster{
		realmClients: make(map[string]map[*StatusClient]bool),
		register:     make(chan *StatusClient),
		unregister:   make(chan *StatusClient),
		done:         make(chan struct{}),
		source:       source,
		interval:     interval,
		logger:       logger,
	}
}

// Run is the broadcaster's main loop. It returns when ctx is done and must
// be called once.
func (b *StatusBroadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for realm, clients := range b.realmClients {
				for client := range clients {
					close(client.Send)
				}
				delete(b.realmClients, realm)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			if _, ok := b.realmClients[client.Realm]; !ok {
				b.realmClients[client.Realm] = make(map[*StatusClient]bool)
			}
			b.realmClients[client.Realm][client] = true
			b.mu.Unlock()
			b.logger.SSE().Debug("Cache status client registered", "realm", client.Realm)
			b.sendTo(client)

		case client := <-b.unregister:
			b.mu.Lock()
			if clients, ok := b.realmClients[client.Realm]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(b.realmClients, client.Realm)
					}
				}
			}
			b.mu.Unlock()
			b.logger.SSE().Debug("Cache status client unregistered", "realm", client.Realm)

		case <-ticker.C:
			b.broadcastStatus()
		}
	}
}

// Serve attaches conn as a dashboard of realm and pumps it until it closes.
// ctx only bounds registration; once registered the client stays until the
// connection fails or Run returns.
func (b *StatusBroadcaster) Serve(ctx context.Context, conn *websocket.Conn, realm string) {
	client := &StatusClient{Conn: conn, Realm: realm, Send: make(chan []byte, 16)}
	select {
	case b.register <- client:
	case <-ctx.Done():
		conn.Close()
		return
	case <-b.done:
		conn.Close()
		return
	}

	go readUntilClosed(conn, func() {
		select {
		case b.unregister <- client:
		case <-b.done:
		}
	}, b.logger)
	b.writePump(client)
}

// ClientCount returns the number of dashboards of realm.
func (b *StatusBroadcaster) ClientCount(realm string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.realmClients[realm])
}

func (b *StatusBroadcaster) writePump(client *StatusClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *StatusBroadcaster) message(realm string) ([]byte, bool) {
	status, err := b.source.CacheStatus(realm)
	if err != nil {
		b.logger.SSE().Warn("Cache status unavailable", "realm", realm, "error", err)
		return nil, false
	}
	payload, err := json.Marshal(Envelope{Type: "cache_status", Realm: realm, Data: status, Timestamp: time.Now().UTC()})
	if err != nil {
		b.logger.SSE().Error("Failed to encode cache status", "realm", realm, "error", err)
		return nil, false
	}
	return payload, true
}

// sendTo is called from Run only, so client.Send is still open.
func (b *StatusBroadcaster) sendTo(client *StatusClient) {
	payload, ok := b.message(client.Realm)
	if !ok {
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}

func (b *StatusBroadcaster) broadcastStatus() {
	b.mu.RLock()
	realms := make([]string, 0, len(b.realmClients))
	for realm := range b.realmClients {
		realms = append(realms, realm)
	}
	b.mu.RUnlock()

	for _, realm := range realms {
		payload, ok := b.message(realm)
		if !ok {
			continue
		}
		b.mu.RLock()
		for client := range b.realmClients[realm] {
			select {
			case client.Send <- payload:
			default:
			}
		}
		b.mu.RUnlock()
	}
}
