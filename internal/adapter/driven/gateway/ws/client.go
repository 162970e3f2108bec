package ws

import (
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

type Client interface {
	ID() domain.ConnID
	Send(env protocol.Envelope) error
	Close() error
}
