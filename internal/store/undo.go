package store

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// undoEntry is a single key's pre-image at the start of a block.
type undoEntry struct {
	existed bool
	value   []byte
}

// flushUndo serializes the transaction's recorded pre-images into one
// undo row keyed by the block height. Called on commit by Store.Update.
func (tx *Tx) flushUndo() error {
	if !tx.undoEnabled || len(tx.undo) == 0 {
		return nil
	}

	// Deterministic ordering keeps undo rows byte-stable across runs.
	keys := make([]string, 0, len(tx.undo))
	for k := range tx.undo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		entry := tx.undo[k]
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(k)))
		buf = append(buf, k...)
		if entry.existed {
			buf = append(buf, 1)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(entry.value)))
			buf = append(buf, entry.value...)
		} else {
			buf = append(buf, 0)
		}
	}
	return tx.txn.Set(keyUndo(tx.undoHeight), buf)
}

// undoDepth is how many blocks of undo records are retained: the
// maximum recoverable reorg depth plus slack for the detection lag.
const undoDepth = 12

// PruneUndo drops the undo record made obsolete by height advancing
// beyond the recoverable window.
func (tx *Tx) PruneUndo(height uint32) error {
	if height < undoDepth {
		return nil
	}
	return tx.txn.Delete(keyUndo(height - undoDepth))
}

// RollbackBlock unwinds every mutation block height made, restoring the
// pre-images its undo record captured, then deletes the record itself.
// Runs in its own write transaction.
func (s *Store) RollbackBlock(height uint32) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyUndo(height))
		if err != nil {
			return fmt.Errorf("store: no undo record for height %d: %w", height, err)
		}
		buf, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		for len(buf) > 0 {
			if len(buf) < 2 {
				return fmt.Errorf("store: corrupt undo record at height %d", height)
			}
			keyLen := int(binary.BigEndian.Uint16(buf))
			buf = buf[2:]
			if len(buf) < keyLen+1 {
				return fmt.Errorf("store: corrupt undo record at height %d", height)
			}
			key := append([]byte(nil), buf[:keyLen]...)
			existed := buf[keyLen] == 1
			buf = buf[keyLen+1:]

			if existed {
				if len(buf) < 4 {
					return fmt.Errorf("store: corrupt undo record at height %d", height)
				}
				valLen := int(binary.BigEndian.Uint32(buf))
				buf = buf[4:]
				if len(buf) < valLen {
					return fmt.Errorf("store: corrupt undo record at height %d", height)
				}
				if err := txn.Set(key, append([]byte(nil), buf[:valLen]...)); err != nil {
					return err
				}
				buf = buf[valLen:]
			} else {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}

		if err := txn.Delete(keyUndo(height)); err != nil {
			return err
		}
		return txn.Delete(keyHeight(height))
	})
}

// HasUndo reports whether an undo record exists for height, i.e.
// whether that block can still be rolled back.
func (s *Store) HasUndo(height uint32) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyUndo(height))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}
