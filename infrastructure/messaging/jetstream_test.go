package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"chat-relay/domain/chat"

	"github.com/stretchr/testify/require"
)

func Test_SubjectForRoom_Stays_Inside_The_Wildcard(t *testing.T) {
	req := require.New(t)
	req.Equal("room.1", SubjectForRoom("1"))
	req.Equal("room.general", SubjectForRoom("general"))
}

// The wire shape matters to the other instances consuming the stream; keep
// the envelope's JSON field names stable.
func Test_Envelope_Wire_Shape(t *testing.T) {
	req := require.New(t)
	env := chat.Envelope{
		RoomID:    "1",
		UserID:    "u1",
		Username:  "alice",
		Content:   "hi",
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(env)
	req.NoError(err)

	var fields map[string]any
	req.NoError(json.Unmarshal(data, &fields))
	for _, key := range []string{"roomId", "userId", "username", "content", "createdAt"} {
		req.Contains(fields, key)
	}
}
