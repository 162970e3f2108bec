package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

// RingTimeout is the callee-side no-answer countdown. Fixed, not configurable
// per call.
const RingTimeout = 30 * time.Second

// IncomingCall is handed to OnIncoming handlers when a call notification
// arrives. Accept and Reject act on the underlying session.
type IncomingCall struct {
	CallID  domain.CallID
	Caller  domain.Party
	Kind    domain.CallKind
	Session *Session
}

// Manager owns at most one active Session per process and routes relayed
// signaling envelopes to it. A second incoming notification while a session
// is active is refused with an immediate reject.
type Manager struct {
	self      domain.Party
	sig       Signaler
	transport MediaTransport
	recorder  *Recorder
	log       zerolog.Logger

	ringTimeout time.Duration

	mu     sync.Mutex
	active *Session

	incomingMu sync.RWMutex
	onIncoming []func(*IncomingCall)

	done chan struct{}
}

// NewManager attaches to sig and starts routing signaling events immediately.
func NewManager(self domain.Party, sig Signaler, transport MediaTransport, store CallStore, log zerolog.Logger) *Manager {
	m := &Manager{
		self:        self,
		sig:         sig,
		transport:   transport,
		recorder:    NewRecorder(store, log),
		log:         log.With().Str("user_id", self.ID.String()).Logger(),
		ringTimeout: RingTimeout,
		done:        make(chan struct{}),
	}
	go m.dispatchLoop()
	return m
}

// OnIncoming registers a handler fired for each incoming call notification.
func (m *Manager) OnIncoming(fn func(*IncomingCall)) {
	m.incomingMu.Lock()
	m.onIncoming = append(m.onIncoming, fn)
	m.incomingMu.Unlock()
}

// Active returns the current session, if any.
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != nil
}

// Initiate starts an outgoing call: allocates local media, then emits the
// initiate event immediately followed by the negotiation offer. The two sends
// are independent one-way messages; no acknowledgment is awaited. If media
// allocation fails nothing reaches the relay and ErrMediaAccess is returned.
func (m *Manager) Initiate(ctx context.Context, remote domain.Party, kind domain.CallKind) (*Session, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidCallKind
	}

	callID := domain.NewCallID(m.self.ID, remote.ID)
	s := newSession(callID, domain.DirectionOutgoing, kind, m.self, remote, m.sig, m.transport, m.recorder, m.clearActive, m.log)

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.active = s
	m.mu.Unlock()

	// The run loop is not started yet, so the allocation and the dual emit
	// below are still single-threaded with respect to session state.
	media, err := m.transport.Allocate(ctx, kind, s.mediaCallbacks())
	if err != nil {
		s.finish(ReasonFailure)
		return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}
	s.media = media

	s.emit(protocol.EventCallInitiate, protocol.CallInitiate{
		CallID:     callID.String(),
		CallerID:   m.self.ID.String(),
		ReceiverID: remote.ID.String(),
		CallerName: m.self.Name,
		CallType:   string(kind),
	})

	offer, err := media.CreateOffer(ctx)
	if err != nil {
		s.finish(ReasonFailure)
		return nil, fmt.Errorf("create offer: %w", err)
	}
	s.emit(protocol.EventCallOffer, protocol.CallOffer{
		CallID:     callID.String(),
		ReceiverID: remote.ID.String(),
		Offer:      offer,
	})

	s.setPhase(PhaseRinging)
	go s.run()

	m.log.Info().Str("call_id", callID.String()).Str("receiver", remote.ID.String()).Str("kind", string(kind)).Msg("Call initiated")
	return s, nil
}

// Close stops routing and hangs up any active session.
func (m *Manager) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}

	if s, ok := m.Active(); ok {
		s.End()
		<-s.Done()
	}
}

func (m *Manager) clearActive(s *Session) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

func (m *Manager) dispatchLoop() {
	ch, cancel := m.sig.Subscribe()
	defer cancel()

	for {
		select {
		case <-m.done:
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			m.dispatch(env)
		}
	}
}

func (m *Manager) dispatch(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventCallIncoming:
		m.handleIncoming(env)

	case protocol.EventCallAnswered, protocol.EventCallRejected, protocol.EventCallEnded,
		protocol.EventCallOffer, protocol.EventCallAnswerSDP, protocol.EventCallICECandidate:
		var ref struct {
			CallID string `json:"callId"`
		}
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			m.log.Error().Err(err).Str("event", env.Event).Msg("Malformed call event")
			return
		}

		s, ok := m.Active()
		if !ok || s.CallID().String() != ref.CallID {
			m.log.Debug().Str("event", env.Event).Str("call_id", ref.CallID).Msg("Signal for unknown call, dropping")
			return
		}
		s.deliverSignal(env)
	}
}

func (m *Manager) handleIncoming(env protocol.Envelope) {
	var p protocol.CallIncoming
	if err := env.Decode(&p); err != nil {
		m.log.Error().Err(err).Msg("Malformed incoming call")
		return
	}

	caller := domain.Party{ID: domain.UserID(p.CallerID), Name: p.CallerName}
	kind := domain.CallKind(p.CallType)
	if !kind.Valid() {
		m.log.Error().Str("call_type", p.CallType).Msg("Incoming call with invalid kind")
		return
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		// Busy: refuse at the point of delivery so the caller is not left
		// ringing against an occupied client.
		m.log.Info().Str("call_id", p.CallID).Str("caller", p.CallerID).Msg("Rejecting incoming call, another call is active")
		m.reject(p.CallID, p.CallerID)
		return
	}

	s := newSession(domain.CallID(p.CallID), domain.DirectionIncoming, kind, m.self, caller, m.sig, m.transport, m.recorder, m.clearActive, m.log)
	s.setPhase(PhaseIncoming)
	m.active = s
	m.mu.Unlock()

	s.startRingTimer(m.ringTimeout)
	go s.run()

	ic := &IncomingCall{
		CallID:  s.CallID(),
		Caller:  caller,
		Kind:    kind,
		Session: s,
	}

	m.incomingMu.RLock()
	handlers := make([]func(*IncomingCall), len(m.onIncoming))
	copy(handlers, m.onIncoming)
	m.incomingMu.RUnlock()

	for _, fn := range handlers {
		fn(ic)
	}
}

func (m *Manager) reject(callID, callerID string) {
	env, err := protocol.NewEnvelope(protocol.EventCallReject, protocol.CallReject{
		CallID:   callID,
		CallerID: callerID,
	})
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to encode reject")
		return
	}
	if err := m.sig.Send(env); err != nil {
		m.log.Error().Err(err).Msg("Failed to send reject")
	}
}
