package call

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/waverly-chat/waverly/internal/core/domain"
)

// Reason is why a session reached a terminal phase.
type Reason int

const (
	ReasonLocalReject Reason = iota
	ReasonRemoteReject
	ReasonRingTimeout
	ReasonLocalEnd
	ReasonRemoteEnd
	// ReasonFailure covers media allocation and negotiation failures.
	ReasonFailure
)

func (r Reason) String() string {
	switch r {
	case ReasonLocalReject:
		return "local-reject"
	case ReasonRemoteReject:
		return "remote-reject"
	case ReasonRingTimeout:
		return "ring-timeout"
	case ReasonLocalEnd:
		return "local-end"
	case ReasonRemoteEnd:
		return "remote-end"
	case ReasonFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Classify maps a termination to a call outcome. connected is the wall-clock
// time since remote media was first observed; zero means media never flowed.
func Classify(reason Reason, connected time.Duration) domain.Outcome {
	switch reason {
	case ReasonRingTimeout:
		return domain.OutcomeMissed
	case ReasonLocalReject, ReasonRemoteReject:
		if connected > 0 {
			return domain.OutcomeCompleted
		}
		return domain.OutcomeRejected
	default:
		if connected > 0 {
			return domain.OutcomeCompleted
		}
		return domain.OutcomeCancelled
	}
}

// Recorder classifies terminated calls and hands the record to the message
// store. Store failures are logged, never propagated: history is best-effort.
type Recorder struct {
	store CallStore
	log   zerolog.Logger
}

func NewRecorder(store CallStore, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Record(ctx context.Context, local, remote domain.UserID, direction domain.Direction, kind domain.CallKind, connected time.Duration, reason Reason) {
	rec := domain.CallRecord{
		Kind:            kind,
		DurationSeconds: int(connected.Seconds()),
		Outcome:         Classify(reason, connected),
		Direction:       direction,
	}

	conv, err := r.store.FindOrCreateConversation(ctx, local, remote)
	if err != nil {
		r.log.Error().Err(err).Str("remote", remote.String()).Msg("Failed to resolve conversation for call record")
		return
	}
	rec.ConversationID = conv

	if err := r.store.AppendCallRecord(ctx, conv, rec); err != nil {
		r.log.Error().Err(err).Str("conversation_id", conv.String()).Msg("Failed to append call record")
		return
	}

	r.log.Info().
		Str("outcome", string(rec.Outcome)).
		Str("reason", reason.String()).
		Int("duration_s", rec.DurationSeconds).
		Msg("Call record written")
}
