package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/internal/core/port"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

// Relay forwards call signaling events between registered connections.
// It is a dumb pipe: each event resolves a target user through Presence and
// is forwarded as-is apart from the routing fields. The relay never checks
// that a callId belongs to a live call on either side, and an event whose
// target is not registered is dropped without notifying the sender.
type Relay struct {
	presence *Presence
	gateway  port.RealTimeGateway
}

func NewRelay(presence *Presence, gateway port.RealTimeGateway) *Relay {
	return &Relay{
		presence: presence,
		gateway:  gateway,
	}
}

// Forward routes one call event. A decode failure is returned to the caller;
// a missing target is not an error.
func (r *Relay) Forward(ctx context.Context, env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventCallInitiate:
		var p protocol.CallInitiate
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if !domain.CallKind(p.CallType).Valid() {
			return domain.ErrInvalidCallKind
		}
		return r.send(ctx, domain.UserID(p.ReceiverID), protocol.EventCallIncoming, protocol.CallIncoming{
			CallID:     p.CallID,
			CallerID:   p.CallerID,
			CallerName: p.CallerName,
			CallType:   p.CallType,
		})

	case protocol.EventCallAnswer:
		var p protocol.CallAnswer
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return r.send(ctx, domain.UserID(p.CallerID), protocol.EventCallAnswered, protocol.CallAnswered{CallID: p.CallID})

	case protocol.EventCallReject:
		var p protocol.CallReject
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return r.send(ctx, domain.UserID(p.CallerID), protocol.EventCallRejected, protocol.CallRejected{CallID: p.CallID})

	case protocol.EventCallEnd:
		var p protocol.CallEnd
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return r.send(ctx, domain.UserID(p.OtherUserID), protocol.EventCallEnded, protocol.CallEnded{CallID: p.CallID})

	case protocol.EventCallOffer:
		var p protocol.CallOffer
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		target := domain.UserID(p.ReceiverID)
		p.ReceiverID = ""
		return r.send(ctx, target, protocol.EventCallOffer, p)

	case protocol.EventCallAnswerSDP:
		var p protocol.CallAnswerSDP
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		target := domain.UserID(p.CallerID)
		p.CallerID = ""
		return r.send(ctx, target, protocol.EventCallAnswerSDP, p)

	case protocol.EventCallICECandidate:
		var p protocol.CallICECandidate
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		target := domain.UserID(p.OtherUserID)
		p.UserID = ""
		p.OtherUserID = ""
		return r.send(ctx, target, protocol.EventCallICECandidate, p)

	default:
		log.Debug().Str("event", env.Event).Msg("Relay: ignoring unknown event")
		return nil
	}
}

func (r *Relay) send(ctx context.Context, target domain.UserID, event string, payload any) error {
	conn, ok := r.presence.Resolve(target)
	if !ok {
		// Silent drop: the sender perceives this as an unanswered call.
		log.Debug().Str("event", event).Str("target", target.String()).Msg("Relay: target not registered, dropping")
		return nil
	}

	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	if err := r.gateway.Send(ctx, conn, env); err != nil {
		// Delivery failure to a stale connection is treated the same as an
		// unregistered target.
		log.Debug().Err(err).Str("event", event).Str("target", target.String()).Msg("Relay: delivery failed, dropping")
	}
	return nil
}
