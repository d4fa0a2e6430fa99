package models

// JoinState is the membership state of a user in a room as seen in the store.
type JoinState int

const (
	// Unregistered: not in the member list.
	Unregistered JoinState = iota
	// Requested: listed, personal key not yet published.
	Requested
	// ApprovalPending: listed with a personal key, no room key granted yet.
	ApprovalPending
	// Approved: an encrypted room private key is waiting in the user's slot.
	Approved
)

func (s JoinState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Requested:
		return "requested"
	case ApprovalPending:
		return "approval pending"
	case Approved:
		return "approved"
	default:
		return "unknown"
	}
}

// GrantResult is how a wait for approval ended.
type GrantResult int

const (
	Granted GrantResult = iota
	TimedOut
	Cancelled
)

func (r GrantResult) String() string {
	switch r {
	case Granted:
		return "granted"
	case TimedOut:
		return "timed out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RoomInfo is a snapshot of a room's public metadata.
type RoomInfo struct {
	Name         string   `json:"name"`
	Members      []string `json:"members"`
	MessageCount int      `json:"message_count"`
	PublicKey    string   `json:"public_key"`
}
