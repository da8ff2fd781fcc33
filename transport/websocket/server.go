// Package websocket exposes the relay over a message-framed bidirectional
// transport. The bearer token travels as a query parameter on the upgrade
// request; a rejected credential gets exactly one ERROR frame before the
// transport closes, an accepted one gets WELCOME before any other traffic.
package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/realtime"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Handler upgrades HTTP requests into chat sessions.
type Handler struct {
	upgrader  websocket.Upgrader
	verifier  contract.TokenVerifier
	processor *realtime.Processor
	log       *slog.Logger
}

func NewHandler(verifier contract.TokenVerifier, processor *realtime.Processor, log *slog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Cross-origin policy is enforced upstream by the gateway.
				return true
			},
		},
		verifier:  verifier,
		processor: processor,
		log:       log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	identity, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		// Fatal: one ERROR frame, then close. No session is created.
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(chat.NewErrorFrame(chat.ErrCodeInvalidToken))
		_ = conn.Close()
		h.log.Warn("connection rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	session := realtime.NewSession(deadlineConn{conn}, identity)
	defer h.processor.Disconnect(session)

	if err := session.Send(chat.NewWelcomeFrame(identity.Username)); err != nil {
		h.log.Warn("welcome frame failed", "user", identity.Username, "error", err)
		return
	}
	h.log.Info("session opened", "user", identity.Username, "remote", r.RemoteAddr)

	conn.SetReadLimit(maxMessageSize)
	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("read failed", "user", identity.Username, "error", err)
			}
			return
		}
		h.processor.Handle(ctx, session, raw)
	}
}

// deadlineConn bounds every outbound write so one dead peer cannot wedge a
// broadcast.
type deadlineConn struct {
	*websocket.Conn
}

func (c deadlineConn) WriteJSON(v any) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(v)
}
