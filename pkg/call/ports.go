// Package call owns the client side of a call attempt: the session state
// machine, the negotiation buffer, and outcome recording. It is coupled to
// the rest of the system only through the small interfaces below; the
// concrete websocket signaler lives in pkg/client and the pion-backed media
// transport in internal/adapter/driven/media/pion.
package call

import (
	"context"

	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

// Signaler is the bidirectional event channel to the relay server.
type Signaler interface {
	Send(env protocol.Envelope) error
	// Subscribe returns a stream of inbound envelopes and a cancel func.
	Subscribe() (<-chan protocol.Envelope, func())
}

// MediaCallbacks are invoked by the media transport as negotiation progresses.
// OnRemoteStream fires once, when remote media is first observed.
type MediaCallbacks struct {
	OnRemoteStream   func()
	OnLocalCandidate func(protocol.ICECandidate)
}

// MediaSession is one allocated local capture plus peer transport. It is
// exclusively owned by a single Session and must be closed on every path out.
type MediaSession interface {
	CreateOffer(ctx context.Context) (protocol.SessionDescription, error)
	CreateAnswer(ctx context.Context) (protocol.SessionDescription, error)
	SetRemoteDescription(sdp protocol.SessionDescription) error
	AddRemoteCandidate(c protocol.ICECandidate) error
	Close() error
}

// MediaTransport allocates media sessions. Allocation failure (device or
// permission denial) is reported as an error wrapping ErrMediaAccess.
type MediaTransport interface {
	Allocate(ctx context.Context, kind domain.CallKind, cb MediaCallbacks) (MediaSession, error)
}

// CallStore is the external message-store collaborator that persists call
// history. Writes are fire-and-forget from the session's point of view.
type CallStore interface {
	FindOrCreateConversation(ctx context.Context, a, b domain.UserID) (domain.ConversationID, error)
	AppendCallRecord(ctx context.Context, id domain.ConversationID, rec domain.CallRecord) error
}
