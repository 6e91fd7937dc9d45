package store

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/ordinals"
	"github.com/rawblock/dogeindexer/internal/u128"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchemaVersionPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Directory: dir})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(Options{Directory: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s.Close()
}

func TestBlockHashRoundTrip(t *testing.T) {
	s := openTestStore(t)

	var hash chainhash.Hash
	hash[0] = 0x11

	err := s.Update(func(tx *Tx) error {
		return tx.SetBlockHash(5, &hash)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = s.View(func(tx *ReadTx) error {
		got, ok, err := tx.BlockHash(5)
		if err != nil || !ok {
			t.Fatalf("BlockHash(5) = %v, %v", ok, err)
		}
		if *got != hash {
			t.Errorf("hash mismatch")
		}

		height, ok, err := tx.LatestHeight()
		if err != nil || !ok || height != 5 {
			t.Errorf("LatestHeight = %d, %v, %v", height, ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAbortedUpdateLeavesNoTrace(t *testing.T) {
	s := openTestStore(t)
	boom := errors.New("boom")

	err := s.Update(func(tx *Tx) error {
		if err := tx.SetStatistic(StatLostSats, 99); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	s.View(func(tx *ReadTx) error {
		v, err := tx.Statistic(StatLostSats)
		if err != nil || v != 0 {
			t.Errorf("aborted write leaked: %d, %v", v, err)
		}
		return nil
	})
}

func TestUndoRollbackRestoresPreimages(t *testing.T) {
	s := openTestStore(t)

	op := wire.OutPoint{Index: 1}
	op.Hash[0] = 0xaa
	ranges := []ordinals.SatRange{{Start: u128.FromUint64(100), Len: 50}}

	// Block 1: create a row and a counter.
	err := s.Update(func(tx *Tx) error {
		tx.TrackUndo(1)
		if err := tx.SetSatRanges(op, ranges); err != nil {
			return err
		}
		return tx.SetStatistic(StatLostSats, 10)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Block 2: consume the row, change the counter, add a dune entry.
	id := dunes.DuneId{Height: 2, Index: 1}
	err = s.Update(func(tx *Tx) error {
		tx.TrackUndo(2)
		if _, _, err := tx.TakeSatRanges(op); err != nil {
			return err
		}
		if err := tx.SetStatistic(StatLostSats, 60); err != nil {
			return err
		}
		return tx.SetDuneEntry(id, &dunes.DuneEntry{Block: 2, Number: 0})
	})
	if err != nil {
		t.Fatal(err)
	}

	// Rolling block 2 back restores the spent row, the old counter,
	// and removes the entry.
	if err := s.RollbackBlock(2); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	s.View(func(tx *ReadTx) error {
		got, ok, err := tx.SatRanges(op)
		if err != nil || !ok {
			t.Fatalf("rolled-back row missing: %v, %v", ok, err)
		}
		if len(got) != 1 || got[0].Len != 50 {
			t.Errorf("ranges = %+v", got)
		}

		v, _ := tx.Statistic(StatLostSats)
		if v != 10 {
			t.Errorf("counter = %d, want 10", v)
		}

		if _, ok, _ := tx.DuneEntry(id); ok {
			t.Error("entry created in rolled-back block must be gone")
		}
		return nil
	})
}

func TestRollbackWithoutUndoFails(t *testing.T) {
	s := openTestStore(t)
	if err := s.RollbackBlock(9); err == nil {
		t.Fatal("rollback without an undo record must fail")
	}
}

func TestHasUndo(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		tx.TrackUndo(3)
		return tx.SetStatistic(StatCommits, 1)
	})
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := s.HasUndo(3); err != nil || !ok {
		t.Errorf("HasUndo(3) = %v, %v", ok, err)
	}
	if ok, _ := s.HasUndo(4); ok {
		t.Error("HasUndo(4) must be false")
	}
}

func TestPruneUndoDropsOldRecords(t *testing.T) {
	s := openTestStore(t)

	for h := uint32(1); h <= undoDepth+1; h++ {
		height := h
		err := s.Update(func(tx *Tx) error {
			tx.TrackUndo(height)
			if err := tx.SetStatistic(StatCommits, uint64(height)); err != nil {
				return err
			}
			return tx.PruneUndo(height)
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if ok, _ := s.HasUndo(1); ok {
		t.Error("record beyond the retention window must be pruned")
	}
	if ok, _ := s.HasUndo(undoDepth + 1); !ok {
		t.Error("recent record must survive pruning")
	}
}

func TestStatisticsReadAll(t *testing.T) {
	s := openTestStore(t)

	s.Update(func(tx *Tx) error {
		if err := tx.IncrStatistic(StatDunes, 2); err != nil {
			return err
		}
		return tx.IncrStatistic(StatDunes, 3)
	})

	s.View(func(tx *ReadTx) error {
		all, err := tx.Statistics()
		if err != nil {
			t.Fatal(err)
		}
		if all["dunes"] != 5 {
			t.Errorf("dunes counter = %d", all["dunes"])
		}
		if _, present := all["lost_sats"]; !present {
			t.Error("zero-valued counters must still be listed")
		}
		return nil
	})
}

func TestDuneBalancesLifecycle(t *testing.T) {
	s := openTestStore(t)

	op := wire.OutPoint{Index: 0}
	op.Hash[1] = 0xbb
	buf := dunes.EncodeBalances(map[u128.Uint128]u128.Uint128{
		u128.FromUint64(131073): u128.FromUint64(500),
	})

	s.Update(func(tx *Tx) error {
		return tx.SetDuneBalances(op, buf)
	})

	s.Update(func(tx *Tx) error {
		got, ok, err := tx.TakeDuneBalances(op)
		if err != nil || !ok {
			t.Fatalf("take: %v, %v", ok, err)
		}
		if string(got) != string(buf) {
			t.Error("buffer mismatch")
		}
		return nil
	})

	s.View(func(tx *ReadTx) error {
		if _, ok, _ := tx.DuneBalances(op); ok {
			t.Error("taken balances must be deleted")
		}
		return nil
	})
}
