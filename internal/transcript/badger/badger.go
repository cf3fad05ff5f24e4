// Package badger archives transcript entries in an embedded Badger
// key-value store.
//
// Entries are stored as JSON under keys ordered by arrival time, so the
// newest entries are read with a reverse prefix scan. A per-chunk key records
// the arrival stamp of each chunk, which makes re-delivery of a chunk
// overwrite its earlier entries.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/MrWong99/daymind/internal/transcript"
)

const (
	entryPrefix = "entry/"
	chunkPrefix = "chunk/"
)

var (
	_ transcript.Store  = (*Store)(nil)
	_ transcript.Reader = (*Store)(nil)
)

// Store is a Badger-backed [transcript.Store]. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript badger: create dir: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("transcript badger: open: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Append stores every entry of rec in one transaction.
func (s *Store) Append(_ context.Context, rec transcript.Record) error {
	entries := transcript.Entries(rec)

	err := s.db.Update(func(txn *badger.Txn) error {
		ck := []byte(chunkPrefix + rec.ChunkID)
		stamp := fmt.Sprintf("%020d", s.now().UnixNano())

		item, err := txn.Get(ck)
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			stamp = string(raw)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.Set(ck, []byte(stamp)); err != nil {
			return err
		}
		for _, e := range entries {
			val, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(entryKey(stamp, e), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transcript badger: append %s: %w", rec.ChunkID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]transcript.Entry, error) {
	var out []transcript.Entry
	if limit <= 0 {
		return out, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the largest key not above the seek key.
		for it.Seek([]byte(entryPrefix + "\xff")); it.Valid() && len(out) < limit; it.Next() {
			var e transcript.Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript badger: recent: %w", err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(stamp string, e transcript.Entry) []byte {
	return fmt.Appendf(nil, "%s%s/%s/%06d", entryPrefix, stamp, e.ChunkID, e.Seq)
}
