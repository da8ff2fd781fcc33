package storage

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain/chat"
	liberrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

const roomKeyPrefix = "room:"

// RoomRepository resolves room ids against the room records this instance
// knows about. Room lifecycle is owned by the gateway; the relay only needs
// the existence check, plus Put/List for the local admin tooling.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

var _ contract.RoomLookup = RoomRepository{}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

// FindRoomByID returns the room record or ErrRoomNotFound.
func (r RoomRepository) FindRoomByID(ctx context.Context, id string) (chat.Room, error) {
	var room chat.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &room)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Room{}, fmt.Errorf("%w: %s", liberrors.ErrRoomNotFound, id)
	}
	if err != nil {
		return chat.Room{}, err
	}
	return room, nil
}

// Put stores or replaces a room record.
func (r RoomRepository) Put(room chat.Room) error {
	bytes, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomKeyPrefix+room.ID), bytes)
	})
}

// List returns every known room record.
func (r RoomRepository) List() ([]chat.Room, error) {
	var rooms []chat.Room
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(roomKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var room chat.Room
				if err := json.Unmarshal(value, &room); err != nil {
					return err
				}
				rooms = append(rooms, room)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rooms, err
}
