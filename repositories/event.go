package repositories

import (
	"context"
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type EventRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEventRepository(db *badger.DB, log *slog.Logger) EventRepository {
	return EventRepository{db: db, log: log}
}

func eventPrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("evt:%s:", roomID))
}

// eventKey is "evt:{room_id}:{seq_padded}". The 20-digit zero padding keeps the
// lexicographical order of badger keys equal to the sequence order.
func eventKey(roomID domain.RoomID, seq uint64) []byte {
	return []byte(fmt.Sprintf("evt:%s:%020d", roomID, seq))
}

// incarnationKey is "inc:{room_key}:{created_at_padded}:{room_id}" so that a
// prefix scan lists the incarnations of a key oldest first.
func incarnationKey(inc domain.RoomIncarnation) []byte {
	return []byte(fmt.Sprintf("inc:%s:%019d:%s", inc.Key, inc.CreatedAt.UnixNano(), inc.RoomID))
}

// Append stores the record under its (room, seq) key.
// Appending the same record twice overwrites it with identical bytes.
func (r EventRepository) Append(ctx context.Context, record domain.PersistedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bytes, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(record.RoomID, record.Seq), bytes)
	})
}

// Fetch returns the records of the room with seq > sinceSeq in increasing order.
// If the persistable chain has a hole, the tail after the hole is returned
// together with ErrIncompleteHistory.
func (r EventRepository) Fetch(ctx context.Context, roomID domain.RoomID, sinceSeq uint64) ([]domain.PersistedRecord, error) {
	var records []domain.PersistedRecord
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := eventPrefix(roomID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(eventKey(roomID, sinceSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(value []byte) error {
				record, err := decodeRecord(value)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	contiguous, complete := checkChain(records, sinceSeq)
	if !complete {
		r.log.Debug("History has a hole", "room_id", roomID, "since", sinceSeq,
			"fetched", len(records), "returned", len(contiguous))
		return contiguous, fmt.Errorf("%w: room %s since %d", errors.ErrIncompleteHistory, roomID, sinceSeq)
	}
	return contiguous, nil
}

// Prune keeps only the keepLast most recent records of the room.
func (r EventRepository) Prune(ctx context.Context, roomID domain.RoomID, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	var stale [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := eventPrefix(roomID)
		// Reverse iteration starts from the greatest key lower or equal to the seek key
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		kept := 0
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if kept < keepLast {
				kept++
				continue
			}
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	batch := r.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Delete(key); err != nil {
			return err
		}
	}
	if err := batch.Flush(); err != nil {
		return err
	}
	r.log.Debug("Pruned room history", "room_id", roomID, "deleted", len(stale), "kept", keepLast)
	return nil
}

func (r EventRepository) RecordIncarnation(_ context.Context, inc domain.RoomIncarnation) error {
	bytes, err := encodeIncarnation(inc)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(incarnationKey(inc), bytes)
	})
}

// Incarnations lists every room instance ever created for the key, oldest first.
func (r EventRepository) Incarnations(_ context.Context, key domain.RoomKey) ([]domain.RoomIncarnation, error) {
	var incarnations []domain.RoomIncarnation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("inc:%s:", key))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				inc, err := decodeIncarnation(value)
				if err != nil {
					return err
				}
				// The prefix of "a-chat" also matches keys such as "a-chat:b-chat"
				if inc.Key == key {
					incarnations = append(incarnations, inc)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return incarnations, err
}
