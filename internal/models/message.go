// Package models defines the data models shared by the protocol layer, the
// history cache and the UI.
package models

// AdminAuthor is the author recorded on system messages the client appends
// to a room log.
const AdminAuthor = "admin"

// Message is a decrypted room log entry.
type Message struct {
	Room   string `json:"room"`
	Index  int    `json:"index"`
	Author string `json:"author"`
	Text   string `json:"text"`
	// Timestamp is when this client first decrypted the entry (unix micro).
	// The store keeps no time.
	Timestamp int64 `json:"timestamp"`
}

func (m Message) IsAdmin() bool {
	return m.Author == AdminAuthor
}
