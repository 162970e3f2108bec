package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserID is the identity a client claims when it registers. It is opaque to
// the signaling core; no authentication of the claimed value is performed.
type UserID string

func (id UserID) String() string {
	return string(id)
}

// ConnID identifies one live websocket connection. Generated server-side.
type ConnID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

// ChatID identifies a chat room, used for typing notifications.
type ChatID string

func (id ChatID) String() string {
	return string(id)
}

type ConversationID uuid.UUID

func NewConversationID() ConversationID {
	return ConversationID(uuid.New())
}

func (id ConversationID) String() string {
	return uuid.UUID(id).String()
}

// CallID correlates all signaling events of one call attempt. The initiator
// generates it; uniqueness is best-effort only, there is no server-side check.
type CallID string

func NewCallID(caller, callee UserID) CallID {
	return CallID(fmt.Sprintf("%s-%s-%d", caller, callee, time.Now().UnixMilli()))
}

func (id CallID) String() string {
	return string(id)
}
