package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain/chat"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MessageRepository persists chat envelopes in BadgerDB. It implements
// contract.MessageStore for the relay and exposes cursor-paged reads for the
// admin tooling.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

var _ contract.MessageStore = MessageRepository{}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// Save persists an envelope.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func (m MessageRepository) Save(ctx context.Context, env chat.Envelope) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		env.RoomID,
		env.CreatedAt.UnixNano(),
		uuid.New(),
	)
	bytes, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages retrieves a room's messages newest first using a reverse
// prefix scan. Thanks to the padded timestamp in the key the order falls out
// of the scan itself. Collection stops at the configured limit; the returned
// cursor resumes the next page.
func (m MessageRepository) GetMessages(roomID string, cursor *string) ([]chat.Envelope, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", roomID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(rawMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	envelopes := make([]chat.Envelope, 0, len(rawMessages))
	for _, b := range rawMessages {
		var env chat.Envelope
		if err = json.Unmarshal(b, &env); err != nil {
			return nil, nil, err
		}
		envelopes = append(envelopes, env)
	}

	if m.limitMessages != nil && len(envelopes) == *m.limitMessages && lastKey != "" {
		return envelopes, &lastKey, nil
	}
	return envelopes, nil, nil
}
