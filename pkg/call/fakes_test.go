package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

func encodeEnv(t *testing.T, event string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	return env
}

// waitFor polls cond until it holds or the deadline passes. The session actor
// runs on its own goroutine, so observable effects are awaited, not assumed.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	in   chan protocol.Envelope
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{in: make(chan protocol.Envelope, 64)}
}

func (f *fakeSignaler) Send(env protocol.Envelope) error {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) Subscribe() (<-chan protocol.Envelope, func()) {
	return f.in, func() {}
}

// deliver pushes an envelope into the subscription stream, as the relay would.
func (f *fakeSignaler) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	f.in <- encodeEnv(t, event, payload)
}

func (f *fakeSignaler) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, env := range f.sent {
		out[i] = env.Event
	}
	return out
}

func (f *fakeSignaler) countEvent(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.sent {
		if env.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeSignaler) lastByEvent(event string) (protocol.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Event == event {
			return f.sent[i], true
		}
	}
	return protocol.Envelope{}, false
}

type fakeTransport struct {
	mu       sync.Mutex
	allocErr error
	sessions []*fakeMediaSession
}

func (f *fakeTransport) Allocate(_ context.Context, kind domain.CallKind, cb MediaCallbacks) (MediaSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocErr != nil {
		return nil, f.allocErr
	}
	s := &fakeMediaSession{kind: kind, cb: cb}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeTransport) failAllocations(err error) {
	f.mu.Lock()
	f.allocErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) session(t *testing.T, i int) *fakeMediaSession {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sessions) {
		t.Fatalf("media session %d not allocated, have %d", i, len(f.sessions))
	}
	return f.sessions[i]
}

type fakeMediaSession struct {
	mu          sync.Mutex
	kind        domain.CallKind
	cb          MediaCallbacks
	remoteDescs []protocol.SessionDescription
	candidates  []protocol.ICECandidate
	closed      bool
}

func (s *fakeMediaSession) CreateOffer(context.Context) (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "offer", SDP: "local-offer"}, nil
}

func (s *fakeMediaSession) CreateAnswer(context.Context) (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "answer", SDP: "local-answer"}, nil
}

func (s *fakeMediaSession) SetRemoteDescription(sdp protocol.SessionDescription) error {
	s.mu.Lock()
	s.remoteDescs = append(s.remoteDescs, sdp)
	s.mu.Unlock()
	return nil
}

func (s *fakeMediaSession) AddRemoteCandidate(c protocol.ICECandidate) error {
	s.mu.Lock()
	s.candidates = append(s.candidates, c)
	s.mu.Unlock()
	return nil
}

func (s *fakeMediaSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeMediaSession) remoteDescList() []protocol.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.SessionDescription(nil), s.remoteDescs...)
}

func (s *fakeMediaSession) candidateList() []protocol.ICECandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ICECandidate(nil), s.candidates...)
}

func (s *fakeMediaSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeStore struct {
	mu        sync.Mutex
	conv      domain.ConversationID
	findErr   error
	appendErr error
	records   []domain.CallRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{conv: domain.NewConversationID()}
}

func (s *fakeStore) FindOrCreateConversation(context.Context, domain.UserID, domain.UserID) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.ConversationID{}, s.findErr
	}
	return s.conv, nil
}

func (s *fakeStore) AppendCallRecord(_ context.Context, _ domain.ConversationID, rec domain.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) recordList() []domain.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CallRecord(nil), s.records...)
}
