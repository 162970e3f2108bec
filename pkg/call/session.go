package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

// Phase is the lifecycle position of a session.
type Phase int

const (
	// PhaseRinging: outgoing call emitted, waiting for the callee.
	PhaseRinging Phase = iota
	// PhaseIncoming: incoming notification received, awaiting Accept/Reject,
	// ring timer running.
	PhaseIncoming
	// PhaseConnecting: answered, offer/answer and candidate exchange under way.
	PhaseConnecting
	// PhaseActive: remote media observed.
	PhaseActive
	// PhaseEnded: terminal.
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseRinging:
		return "ringing"
	case PhaseIncoming:
		return "incoming"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	evAccept eventKind = iota
	evReject
	evEnd
	evRemoteSignal
	evRingTimeout
	evRemoteStream
	evLocalCandidate
)

// event is one tagged input to the session actor: a local action, a remote
// signal, a media callback, or the ring timer.
type event struct {
	kind  eventKind
	env   protocol.Envelope
	cand  protocol.ICECandidate
	ctx   context.Context
	reply chan error
}

// Session is one call attempt. All transitions run on a single goroutine fed
// by the events channel, so no two transitions ever execute concurrently and
// session state needs no locking beyond the phase snapshot for observers.
type Session struct {
	callID    domain.CallID
	direction domain.Direction
	kind      domain.CallKind
	local     domain.Party
	remote    domain.Party

	sig        Signaler
	transport  MediaTransport
	recorder   *Recorder
	onTerminal func(*Session)
	log        zerolog.Logger

	events chan event
	done   chan struct{}

	// actor-owned; never touched outside the run goroutine once it starts
	media          MediaSession
	buf            negotiationBuffer
	remoteStreamAt time.Time
	ringTimer      *time.Timer

	phaseMu sync.Mutex
	phase   Phase
}

func newSession(callID domain.CallID, direction domain.Direction, kind domain.CallKind, local, remote domain.Party, sig Signaler, transport MediaTransport, recorder *Recorder, onTerminal func(*Session), log zerolog.Logger) *Session {
	return &Session{
		callID:     callID,
		direction:  direction,
		kind:       kind,
		local:      local,
		remote:     remote,
		sig:        sig,
		transport:  transport,
		recorder:   recorder,
		onTerminal: onTerminal,
		log:        log.With().Str("call_id", callID.String()).Str("direction", string(direction)).Logger(),
		events:     make(chan event, 64),
		done:       make(chan struct{}),
	}
}

func (s *Session) CallID() domain.CallID       { return s.callID }
func (s *Session) Direction() domain.Direction { return s.direction }
func (s *Session) Kind() domain.CallKind       { return s.kind }
func (s *Session) Remote() domain.Party        { return s.remote }

// Done is closed when the session reaches its terminal phase.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Phase() Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
}

// Accept answers an incoming call: cancels the ring timer, allocates local
// media for the notified kind, emits the answer, then drains any buffered
// offer and candidates in arrival order. Fails with ErrMediaAccess if capture
// cannot be allocated; the session is then torn down and the caller side is
// released with a reject.
func (s *Session) Accept(ctx context.Context) error {
	reply := make(chan error, 1)
	if !s.post(event{kind: evAccept, ctx: ctx, reply: reply}) {
		return ErrCallEnded
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		// teardown raced the reply
		select {
		case err := <-reply:
			return err
		default:
			return ErrCallEnded
		}
	}
}

// Reject declines an incoming call.
func (s *Session) Reject() {
	s.post(event{kind: evReject})
}

// End hangs up. Valid in any non-terminal phase, for either direction.
func (s *Session) End() {
	s.post(event{kind: evEnd})
}

// post delivers an event to the actor unless the session already ended.
func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// deliverSignal routes a relayed envelope for this call into the actor.
func (s *Session) deliverSignal(env protocol.Envelope) {
	s.post(event{kind: evRemoteSignal, env: env})
}

// mediaCallbacks bridges transport callbacks into actor events so that
// candidate emission and stream observation are serialized with every other
// transition.
func (s *Session) mediaCallbacks() MediaCallbacks {
	return MediaCallbacks{
		OnRemoteStream: func() {
			s.post(event{kind: evRemoteStream})
		},
		OnLocalCandidate: func(c protocol.ICECandidate) {
			s.post(event{kind: evLocalCandidate, cand: c})
		},
	}
}

// startRingTimer arms the callee-side no-answer countdown. The caller has no
// symmetric timer: an unanswered outgoing call rings until ended locally.
func (s *Session) startRingTimer(d time.Duration) {
	s.ringTimer = time.AfterFunc(d, func() {
		s.post(event{kind: evRingTimeout})
	})
}

func (s *Session) run() {
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
			if s.Phase() == PhaseEnded {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev.kind {
	case evAccept:
		ev.reply <- s.accept(ev.ctx)

	case evReject:
		if s.Phase() != PhaseIncoming {
			return
		}
		s.emit(protocol.EventCallReject, protocol.CallReject{
			CallID:   s.callID.String(),
			CallerID: s.remote.ID.String(),
		})
		s.finish(ReasonLocalReject)

	case evEnd:
		s.emit(protocol.EventCallEnd, protocol.CallEnd{
			CallID:      s.callID.String(),
			UserID:      s.local.ID.String(),
			OtherUserID: s.remote.ID.String(),
		})
		s.finish(ReasonLocalEnd)

	case evRingTimeout:
		// Stale fire after Accept/Reject is possible in principle; the phase
		// guard makes it a no-op.
		if s.Phase() != PhaseIncoming {
			return
		}
		s.log.Info().Msg("Incoming call timed out")
		s.emit(protocol.EventCallReject, protocol.CallReject{
			CallID:   s.callID.String(),
			CallerID: s.remote.ID.String(),
		})
		s.finish(ReasonRingTimeout)

	case evRemoteStream:
		if s.remoteStreamAt.IsZero() {
			s.remoteStreamAt = time.Now()
			s.setPhase(PhaseActive)
			s.log.Info().Msg("Remote stream observed")
		}

	case evLocalCandidate:
		s.emit(protocol.EventCallICECandidate, protocol.CallICECandidate{
			CallID:      s.callID.String(),
			UserID:      s.local.ID.String(),
			OtherUserID: s.remote.ID.String(),
			Candidate:   ev.cand,
		})

	case evRemoteSignal:
		s.handleRemote(ev.env)
	}
}

func (s *Session) accept(ctx context.Context) error {
	if s.Phase() != PhaseIncoming {
		return ErrNotRinging
	}
	s.stopRingTimer()

	media, err := s.transport.Allocate(ctx, s.kind, s.mediaCallbacks())
	if err != nil {
		// Release the caller side rather than leave it ringing forever.
		s.emit(protocol.EventCallReject, protocol.CallReject{
			CallID:   s.callID.String(),
			CallerID: s.remote.ID.String(),
		})
		s.finish(ReasonFailure)
		return fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}
	s.media = media

	s.emit(protocol.EventCallAnswer, protocol.CallAnswer{
		CallID:   s.callID.String(),
		CallerID: s.remote.ID.String(),
	})

	// Drain early-arriving negotiation messages: offer first, then every
	// buffered candidate in original arrival order.
	if offer, ok := s.buf.takeOffer(); ok {
		if err := s.applyOffer(ctx, offer); err != nil {
			s.log.Error().Err(err).Msg("Negotiation failed on buffered offer")
			s.finish(ReasonFailure)
			return nil
		}
	}
	for _, c := range s.buf.drainCandidates() {
		if err := s.media.AddRemoteCandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("Failed to apply buffered candidate")
		}
	}

	s.setPhase(PhaseConnecting)
	return nil
}

func (s *Session) handleRemote(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventCallAnswered:
		if s.direction == domain.DirectionOutgoing && s.Phase() == PhaseRinging {
			s.setPhase(PhaseConnecting)
			s.log.Info().Msg("Call answered by remote")
		}

	case protocol.EventCallRejected:
		s.log.Info().Msg("Call rejected by remote")
		s.finish(ReasonRemoteReject)

	case protocol.EventCallEnded:
		s.log.Info().Msg("Call ended by remote")
		s.finish(ReasonRemoteEnd)

	case protocol.EventCallOffer:
		var p protocol.CallOffer
		if err := env.Decode(&p); err != nil {
			s.log.Error().Err(err).Msg("Malformed offer")
			return
		}
		if s.media == nil {
			// No local session yet; hold until Accept.
			s.buf.putOffer(p.Offer)
			return
		}
		if err := s.applyOffer(context.Background(), p.Offer); err != nil {
			s.log.Error().Err(err).Msg("Negotiation failed on offer")
			s.finish(ReasonFailure)
		}

	case protocol.EventCallAnswerSDP:
		var p protocol.CallAnswerSDP
		if err := env.Decode(&p); err != nil {
			s.log.Error().Err(err).Msg("Malformed answer")
			return
		}
		if s.media == nil {
			s.log.Warn().Msg("Answer SDP before local media session, dropping")
			return
		}
		if err := s.media.SetRemoteDescription(p.Answer); err != nil {
			s.log.Error().Err(err).Msg("Negotiation failed on answer")
			s.finish(ReasonFailure)
		}

	case protocol.EventCallICECandidate:
		var p protocol.CallICECandidate
		if err := env.Decode(&p); err != nil {
			s.log.Error().Err(err).Msg("Malformed candidate")
			return
		}
		if s.media == nil {
			s.buf.addCandidate(p.Candidate)
			return
		}
		if err := s.media.AddRemoteCandidate(p.Candidate); err != nil {
			s.log.Warn().Err(err).Msg("Failed to apply candidate")
		}

	default:
		s.log.Debug().Str("event", env.Event).Msg("Ignoring signal")
	}
}

// applyOffer consumes a remote offer: set it, produce the answer SDP, emit it.
func (s *Session) applyOffer(ctx context.Context, offer protocol.SessionDescription) error {
	if err := s.media.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := s.media.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	s.emit(protocol.EventCallAnswerSDP, protocol.CallAnswerSDP{
		CallID:   s.callID.String(),
		CallerID: s.remote.ID.String(),
		Answer:   answer,
	})
	return nil
}

func (s *Session) emit(eventName string, payload any) {
	env, err := protocol.NewEnvelope(eventName, payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventName).Msg("Failed to encode signal")
		return
	}
	if err := s.sig.Send(env); err != nil {
		s.log.Error().Err(err).Str("event", eventName).Msg("Failed to send signal")
	}
}

func (s *Session) stopRingTimer() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// finish performs the one terminal transition: stop the timer, release media,
// write the history record, notify the manager, close done. Idempotent.
func (s *Session) finish(reason Reason) {
	if s.Phase() == PhaseEnded {
		return
	}

	var connected time.Duration
	if !s.remoteStreamAt.IsZero() {
		connected = time.Since(s.remoteStreamAt)
	}

	s.setPhase(PhaseEnded)
	s.stopRingTimer()

	if s.media != nil {
		if err := s.media.Close(); err != nil {
			s.log.Error().Err(err).Msg("Error closing media session")
		}
		s.media = nil
	}

	s.recorder.Record(context.Background(), s.local.ID, s.remote.ID, s.direction, s.kind, connected, reason)

	if s.onTerminal != nil {
		s.onTerminal(s)
	}
	close(s.done)
	s.log.Info().Str("reason", reason.String()).Msg("Call session finished")
}
