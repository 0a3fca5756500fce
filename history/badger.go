package history

import (
	"context"
	"encoding/json"
	"fmt"

	"chathub/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo/mutable"
)

const (
	badgerPrefix = "msg:"
	sequenceKey  = "seq:msg"
	// sequence numbers leased per round trip; unused ones are skipped on reopen
	sequenceLease = 128
)

// BadgerStore keys messages as "msg:{seq}" with seq from a badger
// Sequence, so a reverse prefix scan walks them newest saved first
// regardless of sent_at.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadgerStore opens (or creates) a store under dir. An empty dir keeps
// everything in memory.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %w", ErrStorage, err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceLease)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: badger sequence: %w", ErrStorage, err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Save(_ context.Context, msg types.ChatMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode message %s: %w", ErrStorage, msg.ID, err)
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("%w: next sequence for %s: %w", ErrStorage, msg.ID, err)
	}
	key := fmt.Sprintf("%s%020d", badgerPrefix, n)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: store message %s: %w", ErrStorage, msg.ID, err)
	}
	return nil
}

func (s *BadgerStore) Recent(_ context.Context, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	var newestFirst []types.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// seek past the largest possible sequence, then walk backwards
		it.Seek(append([]byte(badgerPrefix), 0xff))
		for ; it.ValidForPrefix(prefix) && len(newestFirst) < limit; it.Next() {
			var msg types.ChatMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			})
			if err != nil {
				return err
			}
			newestFirst = append(newestFirst, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan history: %w", ErrStorage, err)
	}
	mutable.Reverse(newestFirst)
	return newestFirst, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("%w: release sequence: %w", ErrStorage, err)
	}
	return s.db.Close()
}
