package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

// LogEntry is a single record as delivered to log stream clients.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Realm     string `json:"realm,omitempty"`
	DamID     string `json:"damId,omitempty"`
}

// Client is one connected log stream listener.
type Client struct {
	id      string
	Channel chan []byte
	filters AppliedFilters
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// AppliedFilters selects which entries a client receives. An empty Channel
// or "all" matches every channel.
type AppliedFilters struct {
	Channel Channel
	Level   slog.Level
}

func (f AppliedFilters) matches(entry LogEntry) bool {
	if f.Channel != "" && f.Channel != "all" && f.Channel != Channel(entry.Channel) {
		return false
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(entry.Level)); err != nil {
		return true
	}
	return level >= f.Level
}

// LogBroadcaster fans log records out to stream clients.
type LogBroadcaster struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

var (
	broadcaster *LogBroadcaster
	once        sync.Once
)

// GetBroadcaster returns the process-wide broadcaster, starting it on first use.
func GetBroadcaster() *LogBroadcaster {
	once.Do(func() {
		broadcaster = NewLogBroadcaster()
	})
	return broadcaster
}

// NewLogBroadcaster starts a standalone broadcaster.
func NewLogBroadcaster() *LogBroadcaster {
	b := &LogBroadcaster{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 1000),
		logger:     slog.Default().With("component", "LogBroadcaster"),
		stop:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *LogBroadcaster) run() {
	for {
		select {
		case <-b.stop:
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client.Channel)
			}
			b.mu.Unlock()
			return
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Channel)
			}
			b.mu.Unlock()
		case message := <-b.broadcast:
			b.distribute(message)
		}
	}
}

func (b *LogBroadcaster) distribute(message []byte) {
	var entry LogEntry
	if err := json.Unmarshal(message, &entry); err != nil {
		b.logger.Error("Failed to unmarshal log entry for distribution", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		if !client.filters.matches(entry) {
			continue
		}
		select {
		case client.Channel <- message:
		default:
			// slow client, drop
		}
	}
}

// SubmitLog queues an entry for distribution without blocking the caller.
func (b *LogBroadcaster) SubmitLog(entry LogEntry) {
	message, err := json.Marshal(entry)
	if err != nil {
		b.logger.Error("Failed to marshal log entry for broadcast", "error", err)
		return
	}

	select {
	case b.broadcast <- message:
	default:
		fmt.Println("Log broadcaster channel full. Log message dropped.")
	}
}

// NewClient creates a client; it receives nothing until registered.
func (b *LogBroadcaster) NewClient(filters AppliedFilters) *Client {
	return &Client{
		id:      ulid.Make().String(),
		Channel: make(chan []byte, 100),
		filters: filters,
	}
}

// RegisterClient starts delivery to client.
func (b *LogBroadcaster) RegisterClient(client *Client) {
	select {
	case b.register <- client:
	case <-b.stop:
		close(client.Channel)
	}
}

// UnregisterClient stops delivery and closes the client's channel.
func (b *LogBroadcaster) UnregisterClient(client *Client) {
	select {
	case b.unregister <- client:
	case <-b.stop:
	}
}

// Shutdown stops the broadcaster and closes every client channel.
func (b *LogBroadcaster) Shutdown() {
	b.stopOnce.Do(func() { close(b.stop) })
}
