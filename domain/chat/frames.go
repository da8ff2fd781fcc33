package chat

// Server-to-client frame kinds. Every frame carries a "type" discriminator.
const (
	FrameWelcome   = "WELCOME"
	FrameError     = "ERROR"
	FrameUserJoin  = "USER_JOIN"
	FrameUserLeave = "USER_LEAVE"
	FrameMessage   = "MESSAGE"
)

// Wire error codes sent in ERROR frames.
const (
	ErrCodeInvalidToken       = "invalid token"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeContentTooLong     = "content_too_long"
	ErrCodePersistenceFailure = "persistence_failure"
	ErrCodePublishFailure     = "publish_failure"
)

type WelcomeFrame struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PresenceFrame struct {
	Type   string `json:"type"`
	User   string `json:"user"`
	RoomID string `json:"roomId"`
}

// MessageFrame is the fanout shape delivered to subscribers.
// Field names mirror the Envelope so clients see one canonical record.
type MessageFrame struct {
	Type string `json:"type"`
	Envelope
}

func NewWelcomeFrame(username string) WelcomeFrame {
	return WelcomeFrame{Type: FrameWelcome, User: username}
}

func NewErrorFrame(code string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Error: code}
}

func NewUserJoinFrame(username, roomID string) PresenceFrame {
	return PresenceFrame{Type: FrameUserJoin, User: username, RoomID: roomID}
}

func NewUserLeaveFrame(username, roomID string) PresenceFrame {
	return PresenceFrame{Type: FrameUserLeave, User: username, RoomID: roomID}
}

func NewMessageFrame(env Envelope) MessageFrame {
	return MessageFrame{Type: FrameMessage, Envelope: env}
}
