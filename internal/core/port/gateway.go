package port

import (
	"context"

	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

// RealTimeGateway delivers envelopes to live connections.
type RealTimeGateway interface {
	Send(ctx context.Context, conn domain.ConnID, env protocol.Envelope) error
	JoinRoom(room string, conn domain.ConnID)
	LeaveRoom(room string, conn domain.ConnID)
	// BroadcastRoom sends env to every member of room except one connection,
	// typically the sender.
	BroadcastRoom(ctx context.Context, room string, env protocol.Envelope, except domain.ConnID) error
}
