package chat

import "time"

// Identity is the verified owner of a connection.
// It is obtained once at handshake time and never changes afterwards.
type Identity struct {
	ID       string
	Username string
}

// Room is the reference shape returned by the room lookup.
// The relay never caches rooms; it only checks existence per command.
type Room struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
}

// Envelope is the canonical message record exchanged between the store,
// the broker and the clients. It is persisted and published verbatim.
type Envelope struct {
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
