package chat

import (
	"encoding/json"
	"fmt"
	"strconv"

	liberrors "chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Command is the tagged union of every inbound frame the relay understands.
// Frames are parsed once into a Command and dispatched without touching the
// transport again, so the dispatch logic can be tested without a live socket.
type Command interface {
	isCommand()
}

type SubscribeCommand struct {
	RoomID string `validate:"required"`
}

type UnsubscribeCommand struct {
	RoomID string `validate:"required"`
}

type PostMessageCommand struct {
	RoomID  string `validate:"required"`
	Content string `validate:"required"`
}

func (SubscribeCommand) isCommand()   {}
func (UnsubscribeCommand) isCommand() {}
func (PostMessageCommand) isCommand() {}

// Inbound frame kinds.
const (
	frameSubscribe   = "SUBSCRIBE"
	frameUnsubscribe = "UNSUBSCRIBE"
	frameMessage     = "MESSAGE"
)

type inboundFrame struct {
	Type    string `json:"type"`
	RoomID  any    `json:"roomId"`
	Content string `json:"content"`
}

// ParseCommand decodes a raw inbound frame into a Command.
// Clients historically send roomId either as a JSON string or a number,
// so both are accepted and normalized to a string id.
func ParseCommand(raw []byte) (Command, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", liberrors.ErrMalformedFrame, err)
	}

	roomID := coerceRoomID(frame.RoomID)

	var cmd Command
	switch frame.Type {
	case frameSubscribe:
		cmd = SubscribeCommand{RoomID: roomID}
	case frameUnsubscribe:
		cmd = UnsubscribeCommand{RoomID: roomID}
	case frameMessage:
		cmd = PostMessageCommand{RoomID: roomID, Content: frame.Content}
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", liberrors.ErrMalformedFrame, frame.Type)
	}

	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", liberrors.ErrMalformedFrame, err)
	}
	return cmd, nil
}

func coerceRoomID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
