package models

type EventKind int

const (
	EventMessage EventKind = iota
	EventMemberJoined
	// EventUndecryptable reports a log entry that failed authentication or
	// decoding. Index is set and Err holds the cause.
	EventUndecryptable
	// EventError reports a failed poll cycle. The poller keeps running.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventMemberJoined:
		return "member_joined"
	case EventUndecryptable:
		return "undecryptable"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by the room poller.
type Event struct {
	Kind    EventKind
	Room    string
	Message Message
	Member  string
	Index   int
	Err     error
}
