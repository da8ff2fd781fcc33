package realtime

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/chat"
)

// ContentFilter rewrites message content before it is persisted and
// published. The moderation censor implements it; nil disables filtering.
type ContentFilter interface {
	Censor(original string) string
}

// Processor interprets inbound commands against a session and the registry.
// Commands from one connection arrive strictly in order; commands from
// different connections interleave freely, the registry serializes them.
type Processor struct {
	registry         *Registry
	rooms            contract.RoomLookup
	store            contract.MessageStore
	broker           contract.Broker
	filter           ContentFilter
	maxContentLength int
	log              *slog.Logger
}

func NewProcessor(
	registry *Registry,
	rooms contract.RoomLookup,
	store contract.MessageStore,
	broker contract.Broker,
	filter ContentFilter,
	maxContentLength int,
	log *slog.Logger,
) *Processor {
	return &Processor{
		registry:         registry,
		rooms:            rooms,
		store:            store,
		broker:           broker,
		filter:           filter,
		maxContentLength: maxContentLength,
		log:              log,
	}
}

// Handle parses one raw inbound frame and dispatches it. A frame that fails
// to parse is dropped and logged; it is never fatal to the connection.
func (p *Processor) Handle(ctx context.Context, s *Session, raw []byte) {
	cmd, err := chat.ParseCommand(raw)
	if err != nil {
		p.log.Warn("dropping malformed frame", "user", s.Identity().Username, "error", err)
		return
	}
	p.Dispatch(ctx, s, cmd)
}

// Dispatch runs one parsed command. Command failures answer the issuing
// session with an ERROR frame; none of them closes the connection.
func (p *Processor) Dispatch(ctx context.Context, s *Session, cmd chat.Command) {
	switch c := cmd.(type) {
	case chat.SubscribeCommand:
		p.handleSubscribe(ctx, s, c)
	case chat.UnsubscribeCommand:
		p.registry.RemoveSubscription(s, c.RoomID)
	case chat.PostMessageCommand:
		p.handleMessage(ctx, s, c)
	}
}

// Disconnect runs the transport-close cleanup: the session leaves every room
// it was subscribed to, with the usual leave dedup, and is discarded.
func (p *Processor) Disconnect(s *Session) {
	s.Close()
	p.registry.DropSession(s)
	p.log.Debug("session closed", "user", s.Identity().Username)
}

// HandleDelivery is the broker subscription callback. Every instance,
// including the publisher's own, fans the envelope out to its local
// subscribers of the room. A session not subscribed to the room never sees
// the message.
func (p *Processor) HandleDelivery(env chat.Envelope) error {
	p.registry.BroadcastToRoom(env.RoomID, chat.NewMessageFrame(env))
	return nil
}

func (p *Processor) handleSubscribe(ctx context.Context, s *Session, cmd chat.SubscribeCommand) {
	if _, err := p.rooms.FindRoomByID(ctx, cmd.RoomID); err != nil {
		_ = s.Send(chat.NewErrorFrame(chat.ErrCodeRoomNotFound))
		return
	}
	p.registry.RegisterSubscription(s, cmd.RoomID)
}

func (p *Processor) handleMessage(ctx context.Context, s *Session, cmd chat.PostMessageCommand) {
	if p.maxContentLength > 0 && len(cmd.Content) > p.maxContentLength {
		_ = s.Send(chat.NewErrorFrame(chat.ErrCodeContentTooLong))
		return
	}
	if _, err := p.rooms.FindRoomByID(ctx, cmd.RoomID); err != nil {
		_ = s.Send(chat.NewErrorFrame(chat.ErrCodeRoomNotFound))
		return
	}

	content := cmd.Content
	if p.filter != nil {
		content = p.filter.Censor(content)
	}

	identity := s.Identity()
	env := chat.Envelope{
		RoomID:    cmd.RoomID,
		UserID:    identity.ID,
		Username:  identity.Username,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	// Persist first, publish second. The two steps are independent: a crash
	// in between leaves a stored message that readers see on the next
	// history fetch but that was never delivered live.
	if err := p.store.Save(ctx, env); err != nil {
		p.log.Error("message persistence failed", "room", cmd.RoomID, "error", err)
		_ = s.Send(chat.NewErrorFrame(chat.ErrCodePersistenceFailure))
		return
	}

	// No local echo: delivery to this instance's subscribers, the sender
	// included, happens only through the broker round trip.
	if err := p.broker.Publish(ctx, env); err != nil {
		p.log.Error("message publish failed", "room", cmd.RoomID, "error", err)
		_ = s.Send(chat.NewErrorFrame(chat.ErrCodePublishFailure))
	}
}
