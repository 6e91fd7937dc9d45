// Package store is the embedded KV database: one badger instance
// holding every index table under per-table key prefixes, with a
// schema-version gate, per-block undo records for reorg rollback, and
// statistics counters that live inside the same transactions as the
// data they describe.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/rawblock/dogeindexer/internal/logging"
)

// SchemaVersion is the on-disk layout version. Open refuses a database
// written by any other version.
const SchemaVersion uint32 = 6

// ErrSchemaMismatch is returned by Open when the database on disk was
// written by a different schema version.
var ErrSchemaMismatch = errors.New("store: schema version mismatch")

var schemaKey = []byte{prefixMeta, 's', 'c', 'h', 'e', 'm', 'a'}

// Store owns the badger instance. One writer at a time; any number of
// concurrent read snapshots.
type Store struct {
	db  *badger.DB
	log *zap.SugaredLogger
}

// Options configures Open.
type Options struct {
	Directory string
	// InMemory backs the store with RAM instead of disk. Tests use it.
	InMemory bool
}

// Open opens (or creates) the database and verifies its schema version.
func Open(opts Options) (*Store, error) {
	log := logging.For("store")

	badgerOpts := badger.DefaultOptions(opts.Directory)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opts.Directory, err)
	}

	s := &Store{db: db, log: log}
	if err := s.checkSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkSchema() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(schemaKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], SchemaVersion)
			s.log.Infow("initializing database", "schemaVersion", SchemaVersion)
			return txn.Set(append([]byte(nil), schemaKey...), buf[:])
		case err != nil:
			return fmt.Errorf("store: read schema version: %w", err)
		}

		var stored uint32
		err = item.Value(func(val []byte) error {
			if len(val) != 4 {
				return fmt.Errorf("store: corrupt schema version record")
			}
			stored = binary.BigEndian.Uint32(val)
			return nil
		})
		if err != nil {
			return err
		}
		if stored != SchemaVersion {
			return fmt.Errorf("%w: database has %d, this build requires %d", ErrSchemaMismatch, stored, SchemaVersion)
		}
		return nil
	})
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a single write transaction. If fn returns an
// error nothing is committed. The transaction's undo record (if any
// mutations were tracked) is written as part of the same commit.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		tx := &Tx{txn: txn, undo: make(map[string]undoEntry)}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.flushUndo()
	})
}

// View runs fn against a read-only snapshot.
func (s *Store) View(fn func(tx *ReadTx) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&ReadTx{txn: txn})
	})
}
