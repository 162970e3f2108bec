package call

import "errors"

var (
	// ErrMediaAccess means local capture could not be allocated (device or
	// permission denial). The call attempt is aborted.
	ErrMediaAccess = errors.New("media access denied")

	// ErrBusy means another call session is already active in this process.
	ErrBusy = errors.New("another call is active")

	// ErrNotRinging means Accept was called on a session that is not awaiting
	// an answer.
	ErrNotRinging = errors.New("call is not awaiting accept")

	// ErrCallEnded means the session already reached a terminal phase.
	ErrCallEnded = errors.New("call already ended")
)
