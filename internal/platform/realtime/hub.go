// Package realtime broadcasts server events to browser websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrHubStopped is returned by Publish after the hub has shut down.
var ErrHubStopped = errors.New("realtime hub stopped")

// Message is the JSON frame sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub owns the set of connected clients. Only the Run goroutine touches the set.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	clients    map[*client]struct{}
	count      atomic.Int64
	log        *zap.Logger
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		log:        log,
	}
}

// Run serves register, unregister and broadcast until ctx is done,
// then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.count.Store(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.log.Debug("websocket client connected", zap.String("remote_addr", c.remote), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int64(len(h.clients)))
				h.log.Debug("websocket client disconnected", zap.String("remote_addr", c.remote))
			}

		case frame := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					// 送信が詰まったクライアントは切断する
					delete(h.clients, c)
					close(c.send)
					h.log.Warn("dropping slow websocket client", zap.String("remote_addr", c.remote))
				}
			}
			h.count.Store(int64(len(h.clients)))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Publish sends event with payload to every connected client.
func (h *Hub) Publish(ctx context.Context, event string, payload any) error {
	frame, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event %q: %w", event, err)
	}
	return h.BroadcastRaw(ctx, frame)
}

// BroadcastRaw sends an already encoded frame to every connected client.
func (h *Hub) BroadcastRaw(ctx context.Context, frame []byte) error {
	select {
	case h.broadcast <- frame:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
