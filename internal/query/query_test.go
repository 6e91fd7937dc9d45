package query

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/store"
	"github.com/rawblock/dogeindexer/internal/u128"
)

func testService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func TestStatusOnEmptyIndex(t *testing.T) {
	svc, _ := testService(t)
	status, err := svc.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Height != 0 || status.BlockHash != "" {
		t.Errorf("empty status = %+v", status)
	}
	if status.Statistics["dunes"] != 0 {
		t.Error("zero counters expected on a fresh index")
	}
}

func TestDuneLookups(t *testing.T) {
	svc, s := testService(t)

	name, _ := dunes.ParseDune("QUERYDUNETEST")
	id := dunes.DuneId{Height: 10, Index: 1}
	entry := &dunes.DuneEntry{
		Block:  10,
		Number: 0,
		Dune:   name,
		Supply: u128.FromUint64(1000),
	}

	err := s.Update(func(tx *store.Tx) error {
		if err := tx.SetDuneId(name, id); err != nil {
			return err
		}
		return tx.SetDuneEntry(id, entry)
	})
	if err != nil {
		t.Fatal(err)
	}

	byId, err := svc.DuneById(id)
	if err != nil {
		t.Fatalf("DuneById: %v", err)
	}
	if byId.Name != "QUERYDUNETEST" || byId.Supply != "1000" {
		t.Errorf("byId = %+v", byId)
	}

	byName, err := svc.DuneByName("QUERYDUNETEST")
	if err != nil || byName.Id != "10:1" {
		t.Errorf("byName = %+v, %v", byName, err)
	}

	if _, err := svc.DuneById(dunes.DuneId{Height: 99}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dune should be ErrNotFound, got %v", err)
	}
	if _, err := svc.DuneByName("notadune"); err == nil {
		t.Error("lowercase name must be rejected")
	}

	list, err := svc.Dunes(0, 10)
	if err != nil || len(list) != 1 {
		t.Errorf("Dunes list = %v, %v", list, err)
	}
}

func TestInscriptionNotFound(t *testing.T) {
	svc, _ := testService(t)
	if _, _, err := svc.Inscription(inscription.Id{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := svc.InscriptionByNumber(5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOutputNotFound(t *testing.T) {
	svc, _ := testService(t)
	if _, err := svc.Output(wire.OutPoint{Index: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSatDerivation(t *testing.T) {
	svc, _ := testService(t)
	info := svc.Sat(chain.SatFromUint64(0))
	if info.Height != 0 || info.Rarity != "mythic" {
		t.Errorf("sat 0 = %+v", info)
	}
}
