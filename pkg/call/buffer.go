package call

import "github.com/waverly-chat/waverly/pkg/protocol"

// negotiationBuffer holds negotiation messages that arrive between the
// incoming-call notification and Accept, while no local media session exists
// to consume them. Candidates are kept in arrival order. Growth is unbounded
// if Accept never happens; the 30s ring timeout caps the window in practice.
type negotiationBuffer struct {
	offer      *protocol.SessionDescription
	candidates []protocol.ICECandidate
}

func (b *negotiationBuffer) putOffer(sdp protocol.SessionDescription) {
	b.offer = &sdp
}

func (b *negotiationBuffer) addCandidate(c protocol.ICECandidate) {
	b.candidates = append(b.candidates, c)
}

func (b *negotiationBuffer) takeOffer() (protocol.SessionDescription, bool) {
	if b.offer == nil {
		return protocol.SessionDescription{}, false
	}
	sdp := *b.offer
	b.offer = nil
	return sdp, true
}

// drainCandidates returns the buffered candidates in arrival order and
// resets the buffer.
func (b *negotiationBuffer) drainCandidates() []protocol.ICECandidate {
	out := b.candidates
	b.candidates = nil
	return out
}
