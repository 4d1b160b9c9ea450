package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Badger is a Queue backed by an embedded dgraph-io/badger/v4 database, so
// queued telemetry survives a gateway restart. Keys are constructed
// priority-major, sequence-minor so an ascending key scan visits entries in
// drain order without a secondary index.
type Badger struct {
	db  *badger.DB
	seq atomic.Uint64
}

// OpenBadger opens (creating if absent) a badger database at dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger at %s: %w", dir, err)
	}
	b := &Badger{db: db}
	// Resume the sequence after the highest one already stored, so keys of
	// new entries never overwrite entries that survived a restart.
	_ = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if k := it.Item().Key(); len(k) == 9 && binary.BigEndian.Uint64(k[1:]) > b.seq.Load() {
				b.seq.Store(binary.BigEndian.Uint64(k[1:]))
			}
		}
		return nil
	})
	return b, nil
}

// badgerEntry is the msgpack-encoded value stored per key; the value does
// not duplicate Priority (it is already encoded in the key).
type badgerEntry struct {
	Kind      Kind
	SessionID string
	DeviceID  string
	Payload   []byte
	CreatedAt int64
}

func (b *Badger) key(priority Priority, seq uint64) []byte {
	k := make([]byte, 1+8)
	// invert priority so higher priority sorts first in badger's
	// lexicographic ascending iteration
	k[0] = byte(255 - int(priority))
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

func (b *Badger) Enqueue(ctx context.Context, entry Entry) error {
	seq := b.seq.Add(1)
	key := b.key(entry.Priority, seq)
	val, err := msgpack.Marshal(badgerEntry{
		Kind:      entry.Kind,
		SessionID: entry.SessionID,
		DeviceID:  entry.DeviceID,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt.Time().Unix(),
	})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (b *Badger) Drain(ctx context.Context, fn func(Entry) error) error {
	var keysToDelete [][]byte

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			item := it.Item()
			key := append([]byte(nil), item.Key()...)

			var decoded badgerEntry
			if err := item.Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &decoded)
			}); err != nil {
				return fmt.Errorf("cache: decode entry at key %x: %w", key, err)
			}

			entry := Entry{
				Priority:  Priority(255 - int(key[0])),
				Kind:      decoded.Kind,
				SessionID: decoded.SessionID,
				DeviceID:  decoded.DeviceID,
				Payload:   decoded.Payload,
			}
			if err := fn(entry); err != nil {
				return nil // stop draining, keep remaining entries (including this one)
			}
			keysToDelete = append(keysToDelete, key)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(keysToDelete) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keysToDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
