// Package pion implements the call.MediaTransport capability on a real
// webrtc.PeerConnection.
package pion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/waverly-chat/waverly/internal/core/domain"
	"github.com/waverly-chat/waverly/pkg/call"
	"github.com/waverly-chat/waverly/pkg/protocol"
)

// pliInterval is how often a keyframe is requested on inbound video.
const pliInterval = 3 * time.Second

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
	{URLs: []string{"stun:stun2.l.google.com:19302"}},
}

type Transport struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewTransport() (*Transport, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	return &Transport{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{ICEServers: defaultICEServers},
	}, nil
}

// Allocate creates a peer connection with transceivers matching kind. All
// failures are reported as media-access errors: the call attempt cannot
// proceed without the local session.
func (t *Transport) Allocate(ctx context.Context, kind domain.CallKind, cb call.MediaCallbacks) (call.MediaSession, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", call.ErrMediaAccess, err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: %v", call.ErrMediaAccess, err)
	}
	if kind == domain.CallVideo {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("%w: %v", call.ErrMediaAccess, err)
		}
	}

	s := &Session{
		pc:   pc,
		done: make(chan struct{}),
	}

	var streamOnce sync.Once
	pc.OnTrack(func(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().Str("kind", remoteTrack.Kind().String()).Msg("Received remote track")

		if cb.OnRemoteStream != nil {
			streamOnce.Do(cb.OnRemoteStream)
		}

		if remoteTrack.Kind() == webrtc.RTPCodecTypeVideo {
			go s.pliLoop(uint32(remoteTrack.SSRC()))
		}
		go drainTrack(remoteTrack)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cb.OnLocalCandidate == nil {
			return
		}
		cb.OnLocalCandidate(candidateFromPion(c.ToJSON()))
	})

	return s, nil
}

// Session wraps one PeerConnection as a call.MediaSession.
type Session struct {
	pc *webrtc.PeerConnection

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Session) CreateOffer(ctx context.Context) (protocol.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return sdpFromPion(offer), nil
}

func (s *Session) CreateAnswer(ctx context.Context) (protocol.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return sdpFromPion(answer), nil
}

func (s *Session) SetRemoteDescription(sdp protocol.SessionDescription) error {
	desc, err := sdpToPion(sdp)
	if err != nil {
		return err
	}
	return s.pc.SetRemoteDescription(desc)
}

func (s *Session) AddRemoteCandidate(c protocol.ICECandidate) error {
	return s.pc.AddICECandidate(candidateToPion(c))
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pc.Close()
	})
	return err
}

// pliLoop requests a keyframe immediately and then on an interval so remote
// video recovers quickly after loss.
func (s *Session) pliLoop(ssrc uint32) {
	sendPLI := func() {
		// Benign error on closed connection.
		_ = s.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: ssrc},
		})
	}
	sendPLI()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			sendPLI()
		}
	}
}

// drainTrack keeps reading inbound RTP so the receiver pipeline stays live.
// Rendering is the embedding application's concern.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func sdpFromPion(desc webrtc.SessionDescription) protocol.SessionDescription {
	return protocol.SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func sdpToPion(sdp protocol.SessionDescription) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch sdp.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", sdp.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: sdp.SDP}, nil
}

func candidateFromPion(init webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func candidateToPion(c protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
