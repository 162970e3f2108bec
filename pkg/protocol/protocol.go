// Package protocol defines the JSON wire contract spoken over the signaling
// websocket. Both the server and pkg/client import it; event names and field
// names are fixed and must not change.
package protocol

import "encoding/json"

// Client -> server events.
const (
	EventRegisterUser = "register-user"
	EventJoinChat     = "join-chat"
	EventLeaveChat    = "leave-chat"
	EventTyping       = "typing"
	EventStopTyping   = "stopTyping"
)

// Call events. The relay maps each inbound event to the outbound one sent to
// the resolved target connection.
const (
	EventCallInitiate     = "call:initiate"
	EventCallIncoming     = "call:incoming"
	EventCallAnswer       = "call:answer"
	EventCallAnswered     = "call:answered"
	EventCallReject       = "call:reject"
	EventCallRejected     = "call:rejected"
	EventCallEnd          = "call:end"
	EventCallEnded        = "call:ended"
	EventCallOffer        = "call:offer"
	EventCallAnswerSDP    = "call:answer-sdp"
	EventCallICECandidate = "call:ice-candidate"
)

// Server -> client typing notifications.
const (
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
)

// Envelope is the single frame type on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals v into an envelope for event.
func NewEnvelope(event string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type RegisterUser struct {
	UserID string `json:"userId"`
}

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type Typing struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// SessionDescription carries an SDP offer or answer opaquely.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type CallInitiate struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	ReceiverID string `json:"receiverId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"`
}

type CallIncoming struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"`
}

type CallAnswer struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
}

type CallAnswered struct {
	CallID string `json:"callId"`
}

type CallReject struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
}

type CallRejected struct {
	CallID string `json:"callId"`
}

type CallEnd struct {
	CallID      string `json:"callId"`
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

type CallEnded struct {
	CallID string `json:"callId"`
}

// CallOffer is sent caller->relay with ReceiverID set; the relay forwards it
// with only CallID and Offer.
type CallOffer struct {
	CallID     string             `json:"callId"`
	ReceiverID string             `json:"receiverId,omitempty"`
	Offer      SessionDescription `json:"offer"`
}

type CallAnswerSDP struct {
	CallID   string             `json:"callId"`
	CallerID string             `json:"callerId,omitempty"`
	Answer   SessionDescription `json:"answer"`
}

type CallICECandidate struct {
	CallID      string       `json:"callId"`
	UserID      string       `json:"userId,omitempty"`
	OtherUserID string       `json:"otherUserId,omitempty"`
	Candidate   ICECandidate `json:"candidate"`
}
