package domain

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Outcome classifies how a call attempt ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeMissed    Outcome = "missed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// Party is one end of a call as shown to the other end.
type Party struct {
	ID     UserID
	Name   string
	Avatar string // optional
}

// CallRecord is the immutable history entry produced once, at termination.
type CallRecord struct {
	ConversationID  ConversationID
	Kind            CallKind
	DurationSeconds int
	Outcome         Outcome
	Direction       Direction
}
