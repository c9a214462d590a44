// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"micmgmt-service/internal/model"
)

// Client kinds
const (
	ClientTelemetry = "telemetry"
	ClientEvents    = "events"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	Type        string          `json:"type"`
	DeviceIndex *int            `json:"device_index,omitempty"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mu            sync.Mutex
	subscriptions map[model.EventType]bool
}

// Wants reports whether event should be pushed to the client. Telemetry
// clients only receive samples; event clients receive everything unless they
// narrowed their subscription.
func (c *Client) Wants(event *model.DeviceEvent) bool {
	if c.DeviceIndex != nil && *c.DeviceIndex != event.DeviceIndex {
		return false
	}
	if c.Type == ClientTelemetry {
		return event.EventType == model.EventTelemetrySample
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[event.EventType]
}

// Subscribe narrows the client to the given event types.
func (c *Client) Subscribe(types ...model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[model.EventType]bool)
	}
	for _, t := range types {
		c.subscriptions[t] = true
	}
}

// Unsubscribe drops event types. Dropping the last one makes the client
// receive every event again.
func (c *Client) Unsubscribe(types ...model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		delete(c.subscriptions, t)
	}
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SubscriptionRequest is the data of a subscribe or unsubscribe message
type SubscriptionRequest struct {
	EventTypes []model.EventType `json:"event_types"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

// NewConnectionManager creates a new connection manager. Run must be started
// before clients register.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until stop is closed, then drops every client.
func (cm *ConnectionManager) Run(stop <-chan struct{}) {
	defer close(cm.done)
	for {
		select {
		case client := <-cm.register:
			cm.mutex.Lock()
			cm.clients[client.ID] = client
			cm.mutex.Unlock()

		case client := <-cm.unregister:
			cm.remove(client)

		case <-stop:
			cm.mutex.Lock()
			for id, client := range cm.clients {
				delete(cm.clients, id)
				close(client.Send)
			}
			cm.mutex.Unlock()
			return
		}
	}
}

func (cm *ConnectionManager) remove(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Register registers a new client. It reports false once the manager stopped.
func (cm *ConnectionManager) Register(client *Client) bool {
	select {
	case cm.register <- client:
		return true
	case <-cm.done:
		return false
	}
}

// Unregister unregisters a client
func (cm *ConnectionManager) Unregister(client *Client) {
	select {
	case cm.unregister <- client:
	case <-cm.done:
	}
}

// Broadcast queues payload for every client that wants event. Full send
// buffers drop the message. It returns the number of drops.
func (cm *ConnectionManager) Broadcast(event *model.DeviceEvent, payload []byte) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	dropped := 0
	for _, client := range cm.clients {
		if !client.Wants(event) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			dropped++
		}
	}
	return dropped
}

// SendTo queues payload for one registered client. Sends are done under the
// read lock so a concurrent unregister cannot close the channel mid-send.
func (cm *ConnectionManager) SendTo(client *Client, payload []byte) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	if _, ok := cm.clients[client.ID]; !ok {
		return false
	}
	select {
	case client.Send <- payload:
		return true
	default:
		return false
	}
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByType:           make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		stats.ByType[client.Type]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByType           map[string]int `json:"by_type"`
	Clients          []*Client      `json:"clients"`
}
