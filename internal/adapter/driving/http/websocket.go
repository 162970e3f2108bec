package http

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// TODO: restrict origins outside dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSClient struct {
	id   domain.ConnID
	conn *websocket.Conn

	// gorilla allows one concurrent writer only
	writeMu sync.Mutex
}

func (c *WSClient) ID() domain.ConnID {
	return c.id
}

func (c *WSClient) Send(env protocol.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServeWS upgrades the connection and pumps envelopes into the presence,
// typing, and relay services until the peer goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   domain.NewConnID(),
		conn: conn,
	}

	l := log.With().Str("conn_id", client.id.String()).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(client.id)
	}()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		if err := h.handleEnvelope(r, client, env); err != nil {
			l.Error().Err(err).Str("event", env.Event).Msg("Failed to handle event")
		}
	}
}

func (h *Handler) handleEnvelope(r *http.Request, client *WSClient, env protocol.Envelope) error {
	ctx := r.Context()

	switch env.Event {
	case protocol.EventRegisterUser:
		var p protocol.RegisterUser
		if err := env.Decode(&p); err != nil {
			return err
		}
		return h.Presence.Register(domain.UserID(p.UserID), client.id)

	case protocol.EventJoinChat:
		var p protocol.JoinChat
		if err := env.Decode(&p); err != nil {
			return err
		}
		h.Hub.JoinRoom(chatRoom(p.ChatID), client.id)
		return nil

	case protocol.EventLeaveChat:
		var p protocol.JoinChat
		if err := env.Decode(&p); err != nil {
			return err
		}
		h.Hub.LeaveRoom(chatRoom(p.ChatID), client.id)
		return nil

	case protocol.EventTyping:
		var p protocol.Typing
		if err := env.Decode(&p); err != nil {
			return err
		}
		h.Typing.Start(domain.ChatID(p.ChatID), domain.UserID(p.UserID))
		out, err := protocol.NewEnvelope(protocol.EventUserTyping, p)
		if err != nil {
			return err
		}
		return h.Hub.BroadcastRoom(ctx, chatRoom(p.ChatID), out, client.id)

	case protocol.EventStopTyping:
		var p protocol.Typing
		if err := env.Decode(&p); err != nil {
			return err
		}
		h.Typing.Stop(domain.ChatID(p.ChatID), domain.UserID(p.UserID))
		out, err := protocol.NewEnvelope(protocol.EventUserStoppedTyping, protocol.Typing{
			ChatID: p.ChatID,
			UserID: p.UserID,
		})
		if err != nil {
			return err
		}
		return h.Hub.BroadcastRoom(ctx, chatRoom(p.ChatID), out, client.id)

	default:
		return h.Relay.Forward(ctx, env)
	}
}

func chatRoom(chatID string) string {
	return "chat:" + chatID
}
