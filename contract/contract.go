//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"chat-relay/domain/chat"
)

// TokenVerifier validates a bearer credential presented at handshake time.
type TokenVerifier interface {
	Verify(token string) (chat.Identity, error)
}

// RoomLookup is the point-in-time existence check consumed per command.
// Room state is owned outside the relay; nothing is cached here.
type RoomLookup interface {
	FindRoomByID(ctx context.Context, id string) (chat.Room, error)
}

// MessageStore durably saves a chat envelope before it is published.
type MessageStore interface {
	Save(ctx context.Context, env chat.Envelope) error
}

// DeliveryHandler consumes one envelope delivered by the broker.
// A non-nil error negatively acknowledges that delivery only.
type DeliveryHandler func(env chat.Envelope) error

// Broker is the durable cross-instance fanout. Publishing keys by room;
// every instance's subscription receives every room's messages and filters
// locally against its own registry.
type Broker interface {
	Publish(ctx context.Context, env chat.Envelope) error
	Subscribe(ctx context.Context, handler DeliveryHandler) error
}
