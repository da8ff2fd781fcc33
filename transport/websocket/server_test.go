package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	liberrors "chat-relay/errors"
	"chat-relay/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testSecret = "relay_e2e_secret"

// callLog records the order of store and broker calls across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type recordingStore struct {
	log *callLog
}

func (s *recordingStore) Save(ctx context.Context, env chat.Envelope) error {
	s.log.add("save")
	return nil
}

// loopbackBroker short-circuits the broker round trip: a publish is handed
// straight back to the subscription handler, the way a single-instance
// deployment sees its own traffic come back from the exchange.
type loopbackBroker struct {
	mu      sync.Mutex
	log     *callLog
	handler contract.DeliveryHandler
}

func (b *loopbackBroker) Publish(ctx context.Context, env chat.Envelope) error {
	b.log.add("publish")
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()
	if handler != nil {
		return handler(env)
	}
	return nil
}

func (b *loopbackBroker) Subscribe(ctx context.Context, handler contract.DeliveryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil
}

type staticRooms struct {
	ids map[string]struct{}
}

func (r staticRooms) FindRoomByID(ctx context.Context, id string) (chat.Room, error) {
	if _, ok := r.ids[id]; !ok {
		return chat.Room{}, fmt.Errorf("%w: %s", liberrors.ErrRoomNotFound, id)
	}
	return chat.Room{ID: id, Name: "room " + id}, nil
}

type relayFixture struct {
	server   *httptest.Server
	registry *realtime.Registry
	log      *callLog
}

func startRelay(t *testing.T, roomIDs ...string) relayFixture {
	t.Helper()
	logger := slog.Default()
	log := &callLog{}

	ids := make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		ids[id] = struct{}{}
	}

	registry := realtime.NewRegistry(logger)
	broker := &loopbackBroker{log: log}
	processor := realtime.NewProcessor(registry, staticRooms{ids: ids}, &recordingStore{log: log}, broker, nil, 2000, logger)
	require.NoError(t, broker.Subscribe(context.Background(), processor.HandleDelivery))

	handler := NewHandler(auth.NewVerifier(testSecret), processor, logger)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return relayFixture{server: server, registry: registry, log: log}
}

func dial(t *testing.T, f relayFixture, token string) *websocket.Conn {
	t.Helper()
	endpoint := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func mintToken(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, username, time.Hour)
	require.NoError(t, err)
	return token
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func waitRoomSize(t *testing.T, f relayFixture, roomID string, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.registry.RoomSize(roomID) == size {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached size %d", roomID, size)
}

// Scenario A: two users in the same room both receive a published message
// exactly once, through the broker round trip, with persistence first.
func Test_Message_Reaches_Every_Subscriber_Through_The_Broker(t *testing.T) {
	req := require.New(t)
	f := startRelay(t, "1")

	alice := dial(t, f, mintToken(t, "u1", "alice"))
	bob := dial(t, f, mintToken(t, "u2", "bob"))

	req.Equal(chat.FrameWelcome, readFrame(t, alice)["type"])
	req.Equal(chat.FrameWelcome, readFrame(t, bob)["type"])

	sendFrame(t, alice, map[string]any{"type": "SUBSCRIBE", "roomId": "1"})
	join := readFrame(t, alice)
	req.Equal(chat.FrameUserJoin, join["type"])
	req.Equal("alice", join["user"])

	sendFrame(t, bob, map[string]any{"type": "SUBSCRIBE", "roomId": "1"})
	req.Equal(chat.FrameUserJoin, readFrame(t, bob)["type"])
	req.Equal(chat.FrameUserJoin, readFrame(t, alice)["type"])

	sendFrame(t, alice, map[string]any{"type": "MESSAGE", "roomId": "1", "content": "hi"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		req.Equal(chat.FrameMessage, frame["type"])
		req.Equal("1", frame["roomId"])
		req.Equal("alice", frame["username"])
		req.Equal("u1", frame["userId"])
		req.Equal("hi", frame["content"])
		req.NotEmpty(frame["createdAt"])
	}

	req.Equal([]string{"save", "publish"}, f.log.snapshot())
}

// Scenario B: a user with two connections produces one USER_JOIN and, only
// once the second connection closes, one USER_LEAVE.
func Test_Presence_Notices_Are_Deduplicated_Across_Connections(t *testing.T) {
	req := require.New(t)
	f := startRelay(t, "1")

	bob := dial(t, f, mintToken(t, "u2", "bob"))
	req.Equal(chat.FrameWelcome, readFrame(t, bob)["type"])
	sendFrame(t, bob, map[string]any{"type": "SUBSCRIBE", "roomId": "1"})
	req.Equal(chat.FrameUserJoin, readFrame(t, bob)["type"])

	alice1 := dial(t, f, mintToken(t, "u1", "alice"))
	req.Equal(chat.FrameWelcome, readFrame(t, alice1)["type"])
	sendFrame(t, alice1, map[string]any{"type": "SUBSCRIBE", "roomId": "1"})
	join := readFrame(t, bob)
	req.Equal(chat.FrameUserJoin, join["type"])
	req.Equal("alice", join["user"])

	alice2 := dial(t, f, mintToken(t, "u1", "alice"))
	req.Equal(chat.FrameWelcome, readFrame(t, alice2)["type"])
	sendFrame(t, alice2, map[string]any{"type": "SUBSCRIBE", "roomId": "1"})
	waitRoomSize(t, f, "1", 3)

	// No second USER_JOIN for alice: the next frame bob sees must be the
	// message he sends himself.
	sendFrame(t, bob, map[string]any{"type": "MESSAGE", "roomId": "1", "content": "ping"})
	req.Equal(chat.FrameMessage, readFrame(t, bob)["type"])

	req.NoError(alice1.Close())
	waitRoomSize(t, f, "1", 2)

	// Still one alice connection subscribed: no USER_LEAVE yet.
	sendFrame(t, bob, map[string]any{"type": "MESSAGE", "roomId": "1", "content": "ping"})
	req.Equal(chat.FrameMessage, readFrame(t, bob)["type"])

	req.NoError(alice2.Close())
	leave := readFrame(t, bob)
	req.Equal(chat.FrameUserLeave, leave["type"])
	req.Equal("alice", leave["user"])
	req.Equal("1", leave["roomId"])
}

// Scenario C: an invalid credential yields a single ERROR frame and a closed
// transport; no session is created.
func Test_Invalid_Token_Is_Rejected_With_One_Error_Frame(t *testing.T) {
	req := require.New(t)
	f := startRelay(t, "1")

	conn := dial(t, f, "not-a-valid-token")

	frame := readFrame(t, conn)
	req.Equal(chat.FrameError, frame["type"])
	req.Equal("invalid token", frame["error"])

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.Error(err)
	req.Zero(f.registry.RoomSize("1"))
}

func Test_Malformed_Frame_Keeps_The_Connection_Alive(t *testing.T) {
	req := require.New(t)
	f := startRelay(t, "1")

	alice := dial(t, f, mintToken(t, "u1", "alice"))
	req.Equal(chat.FrameWelcome, readFrame(t, alice)["type"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{definitely not json")))

	sendFrame(t, alice, map[string]any{"type": "SUBSCRIBE", "roomId": "1"})
	req.Equal(chat.FrameUserJoin, readFrame(t, alice)["type"])
	req.Equal(1, f.registry.RoomSize("1"))
}

func Test_Subscribe_To_Missing_Room_Sends_Error_Only(t *testing.T) {
	req := require.New(t)
	f := startRelay(t, "1")

	alice := dial(t, f, mintToken(t, "u1", "alice"))
	req.Equal(chat.FrameWelcome, readFrame(t, alice)["type"])

	sendFrame(t, alice, map[string]any{"type": "SUBSCRIBE", "roomId": "missing"})
	frame := readFrame(t, alice)
	req.Equal(chat.FrameError, frame["type"])
	req.Equal("room_not_found", frame["error"])
	req.Zero(f.registry.RoomSize("missing"))
}
