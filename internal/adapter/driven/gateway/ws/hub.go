package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

var ErrConnNotFound = errors.New("connection not found")

// Hub tracks live connections and chat-room membership.
// Implements port.RealTimeGateway.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnID]Client
	rooms   map[string]map[domain.ConnID]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ConnID]Client),
		rooms:   make(map[string]map[domain.ConnID]struct{}),
	}
}

func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		c.Close()
		return
	}
	h.clients[c.ID()] = c
	log.Info().Str("conn_id", c.ID().String()).Msg("Client registered")
}

// Unregister drops the connection and its room memberships. The presence
// registry is deliberately left untouched; a stale entry is overwritten when
// the user reconnects.
func (h *Hub) Unregister(conn domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		c.Close()
		log.Info().Str("conn_id", conn.String()).Msg("Client unregistered")
	}
	for room, members := range h.rooms {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) Send(ctx context.Context, conn domain.ConnID, env protocol.Envelope) error {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()

	if !ok {
		return ErrConnNotFound
	}
	return c.Send(env)
}

func (h *Hub) JoinRoom(room string, conn domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) LeaveRoom(room string, conn domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) BroadcastRoom(ctx context.Context, room string, env protocol.Envelope, except domain.ConnID) error {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.rooms[room]))
	for conn := range h.rooms[room] {
		if conn == except {
			continue
		}
		if c, ok := h.clients[conn]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(env); err != nil {
			log.Error().Err(err).Str("conn_id", c.ID().String()).Msg("Error broadcasting to room member")
		}
	}
	return nil
}

// Shutdown closes every connection and refuses further registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for conn, c := range h.clients {
		c.Close()
		delete(h.clients, conn)
	}
	h.rooms = make(map[string]map[domain.ConnID]struct{})
}
