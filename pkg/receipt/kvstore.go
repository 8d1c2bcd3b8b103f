package receipt

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// KVStore persists receipts in a local badger database. It is the chat-side
// store: each device keeps its own copy and reconciles remote echoes through
// the same merge.
type KVStore struct {
	db  *badger.DB
	log zerolog.Logger
}

func NewKVStore(db *badger.DB, log zerolog.Logger) *KVStore {
	return &KVStore{db: db, log: log}
}

func kvKey(key Key) []byte {
	return []byte("rcpt:" + key.ConversationID + ":" + key.ClientID)
}

func (s *KVStore) Get(_ context.Context, key Key) (Fields, error) {
	var out Fields
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *KVStore) Apply(_ context.Context, key Key, patch Fields) (Fields, error) {
	var merged Fields
	err := s.db.Update(func(txn *badger.Txn) error {
		var base Fields
		item, err := txn.Get(kvKey(key))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &base)
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first write for this key
		default:
			return err
		}
		merged = Merge(base, patch)
		b, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return txn.Set(kvKey(key), b)
	})
	if err != nil {
		s.log.Error().Err(err).Str("conversation", key.ConversationID).Str("client_id", key.ClientID).Msg("receipt apply failed")
		return nil, err
	}
	return merged, nil
}
