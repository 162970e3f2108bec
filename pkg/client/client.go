// Package client is the websocket signaling client. It dials the relay
// server, registers the local user, and fans inbound envelopes out to
// subscribers. It satisfies call.Signaler.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

const subscriberBuffer = 64

// Client is one registered signaling connection.
type Client struct {
	userID domain.UserID
	conn   *websocket.Conn
	log    zerolog.Logger

	// gorilla allows one concurrent writer only
	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan protocol.Envelope
	nextID int

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay's /ws endpoint and registers userID so the
// presence registry can route calls here. Registration is last-write-wins
// server-side; dialing again from elsewhere silently takes over the identity.
func Dial(ctx context.Context, url string, userID domain.UserID, log zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &Client{
		userID: userID,
		conn:   conn,
		log:    log.With().Str("user_id", userID.String()).Logger(),
		subs:   make(map[int]chan protocol.Envelope),
		done:   make(chan struct{}),
	}

	if err := c.sendEvent(protocol.EventRegisterUser, protocol.RegisterUser{UserID: userID.String()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register user: %w", err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) UserID() domain.UserID { return c.userID }

// Send writes one envelope to the server. Implements call.Signaler.
func (c *Client) Send(env protocol.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Subscribe returns a stream of inbound envelopes. Implements call.Signaler.
// Slow subscribers have envelopes dropped rather than stalling the read loop.
func (c *Client) Subscribe() (<-chan protocol.Envelope, func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan protocol.Envelope, subscriberBuffer)
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

// JoinChat subscribes this connection to a chat room's typing notifications.
func (c *Client) JoinChat(chatID domain.ChatID) error {
	return c.sendEvent(protocol.EventJoinChat, protocol.JoinChat{ChatID: chatID.String()})
}

func (c *Client) LeaveChat(chatID domain.ChatID) error {
	return c.sendEvent(protocol.EventLeaveChat, protocol.JoinChat{ChatID: chatID.String()})
}

// Typing announces that the local user started typing in chatID.
func (c *Client) Typing(chatID domain.ChatID, userName string) error {
	return c.sendEvent(protocol.EventTyping, protocol.Typing{
		ChatID:   chatID.String(),
		UserID:   c.userID.String(),
		UserName: userName,
	})
}

func (c *Client) StopTyping(chatID domain.ChatID) error {
	return c.sendEvent(protocol.EventStopTyping, protocol.Typing{
		ChatID: chatID.String(),
		UserID: c.userID.String(),
	})
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) sendEvent(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.Send(env)
}

func (c *Client) readLoop() {
	defer func() {
		c.Close()
		c.subMu.Lock()
		for id, sub := range c.subs {
			delete(c.subs, id)
			close(sub)
		}
		c.subMu.Unlock()
	}()

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					c.log.Error().Err(err).Msg("Unexpected close error")
				}
			}
			return
		}

		c.subMu.Lock()
		for _, sub := range c.subs {
			select {
			case sub <- env:
			default:
				c.log.Warn().Str("event", env.Event).Msg("Subscriber full, dropping envelope")
			}
		}
		c.subMu.Unlock()
	}
}
