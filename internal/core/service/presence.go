package service

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/waverly-chat/waverly/internal/core/domain"
)

// Presence maps a claimed user identity to its most recent connection.
// Last write wins; entries are never expired, a reconnecting user simply
// overwrites its own mapping. Registration is not authenticated: any
// connection may register as any user id.
type Presence struct {
	mu    sync.RWMutex
	conns map[domain.UserID]domain.ConnID
}

func NewPresence() *Presence {
	return &Presence{
		conns: make(map[domain.UserID]domain.ConnID),
	}
}

// Register binds userID to conn, replacing any prior binding. Idempotent.
func (p *Presence) Register(userID domain.UserID, conn domain.ConnID) error {
	if userID == "" {
		return domain.ErrEmptyUserID
	}

	p.mu.Lock()
	p.conns[userID] = conn
	p.mu.Unlock()

	log.Debug().Str("user_id", userID.String()).Str("conn_id", conn.String()).Msg("User registered")
	return nil
}

// Resolve returns the connection currently bound to userID.
func (p *Presence) Resolve(userID domain.UserID) (domain.ConnID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[userID]
	return conn, ok
}
