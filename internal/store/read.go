package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger/v4"

	"github.com/rawblock/dogeindexer/internal/drc20"
	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/ordinals"
)

// ReadTx is a read-only snapshot. Cursors iterate the snapshot without
// holding any lock.
type ReadTx struct {
	txn *badger.Txn
}

func (tx *ReadTx) get(key []byte) ([]byte, bool, error) {
	item, err := tx.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: get value: %w", err)
	}
	return val, true, nil
}

func (tx *ReadTx) BlockHash(height uint32) (*chainhash.Hash, bool, error) {
	val, ok, err := tx.get(keyHeight(height))
	if err != nil || !ok {
		return nil, false, err
	}
	hash, err := chainhash.NewHash(val)
	if err != nil {
		return nil, false, fmt.Errorf("store: corrupt block hash at height %d: %w", height, err)
	}
	return hash, true, nil
}

func (tx *ReadTx) LatestHeight() (uint32, bool, error) {
	return latestHeight(tx.txn)
}

func (tx *ReadTx) SatRanges(op wire.OutPoint) ([]ordinals.SatRange, bool, error) {
	val, ok, err := tx.get(keyOutpoint(prefixOutpointToSatRanges, op))
	if err != nil || !ok {
		return nil, false, err
	}
	ranges, err := ordinals.DecodeRanges(val)
	if err != nil {
		return nil, false, err
	}
	return ranges, true, nil
}

func (tx *ReadTx) OutputValue(op wire.OutPoint) (uint64, bool, error) {
	val, ok, err := tx.get(keyOutpoint(prefixOutpointToValue, op))
	if err != nil || !ok {
		return 0, false, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("store: corrupt output value")
	}
	return binary.LittleEndian.Uint64(val), true, nil
}

func (tx *ReadTx) DuneBalances(op wire.OutPoint) ([]dunes.BalanceEntry, bool, error) {
	val, ok, err := tx.get(keyOutpoint(prefixOutpointToDuneBalances, op))
	if err != nil || !ok {
		return nil, false, err
	}
	entries, err := dunes.DecodeBalances(val)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func (tx *ReadTx) DuneId(dune dunes.Dune) (dunes.DuneId, bool, error) {
	val, ok, err := tx.get(keyDune(dune))
	if err != nil || !ok {
		return dunes.DuneId{}, false, err
	}
	if len(val) != 12 {
		return dunes.DuneId{}, false, fmt.Errorf("store: corrupt dune id record")
	}
	return dunes.DuneId{
		Height: binary.BigEndian.Uint64(val[:8]),
		Index:  binary.BigEndian.Uint32(val[8:]),
	}, true, nil
}

func (tx *ReadTx) DuneEntry(id dunes.DuneId) (*dunes.DuneEntry, bool, error) {
	val, ok, err := tx.get(keyDuneId(id))
	if err != nil || !ok {
		return nil, false, err
	}
	entry, err := dunes.DecodeEntry(val)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Dunes lists every (id, entry) pair in id order, paginated.
func (tx *ReadTx) Dunes(offset, limit int) ([]dunes.DuneId, []*dunes.DuneEntry, error) {
	prefix := []byte{prefixDuneIdToDuneEntry}

	var ids []dunes.DuneId
	var entries []*dunes.DuneEntry

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	skipped := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
		key := it.Item().Key()
		if len(key) != 13 {
			return nil, nil, fmt.Errorf("store: corrupt dune id key")
		}
		id := dunes.DuneId{
			Height: binary.BigEndian.Uint64(key[1:9]),
			Index:  binary.BigEndian.Uint32(key[9:]),
		}
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, nil, err
		}
		entry, err := dunes.DecodeEntry(val)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		entries = append(entries, entry)
	}
	return ids, entries, nil
}

func (tx *ReadTx) InscriptionSatpoint(id inscription.Id) (ordinals.SatPoint, bool, error) {
	val, ok, err := tx.get(keyInscriptionId(prefixInscriptionIdToSatpoint, id))
	if err != nil || !ok {
		return ordinals.SatPoint{}, false, err
	}
	sp, err := ordinals.DecodeSatPoint(val)
	if err != nil {
		return ordinals.SatPoint{}, false, err
	}
	return sp, true, nil
}

func (tx *ReadTx) InscriptionEntry(id inscription.Id) ([]byte, bool, error) {
	return tx.get(keyInscriptionId(prefixInscriptionIdToEntry, id))
}

func (tx *ReadTx) InscriptionIdByNumber(number uint64) (inscription.Id, bool, error) {
	val, ok, err := tx.get(keyInscriptionNumber(number))
	if err != nil || !ok {
		return inscription.Id{}, false, err
	}
	id, err := inscription.DecodeId(val)
	if err != nil {
		return inscription.Id{}, false, err
	}
	return id, true, nil
}

// InscriptionTxids returns the ordered envelope chain recorded when an
// inscription completed.
func (tx *ReadTx) InscriptionTxids(id inscription.Id) ([]chainhash.Hash, bool, error) {
	val, ok, err := tx.get(keyInscriptionId(prefixInscriptionIdToTxids, id))
	if err != nil || !ok {
		return nil, false, err
	}
	if len(val)%chainhash.HashSize != 0 {
		return nil, false, fmt.Errorf("store: corrupt inscription chain record")
	}
	txids := make([]chainhash.Hash, len(val)/chainhash.HashSize)
	for i := range txids {
		copy(txids[i][:], val[i*chainhash.HashSize:])
	}
	return txids, true, nil
}

// RawTx returns a stored envelope transaction's raw bytes.
func (tx *ReadTx) RawTx(txid chainhash.Hash) ([]byte, bool, error) {
	return tx.get(keyTxid(prefixInscriptionTxidToTx, txid))
}

func (tx *ReadTx) InscriptionsOnOutput(op wire.OutPoint) ([]ordinals.SatPoint, []inscription.Id, error) {
	enc := ordinals.EncodeOutPoint(op)
	prefix := append([]byte{prefixSatpointToInscriptionId}, enc[:]...)

	var satpoints []ordinals.SatPoint
	var ids []inscription.Id

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		sp, err := ordinals.DecodeSatPoint(item.Key()[1:])
		if err != nil {
			return nil, nil, err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, nil, err
		}
		id, err := inscription.DecodeId(val)
		if err != nil {
			return nil, nil, err
		}
		satpoints = append(satpoints, sp)
		ids = append(ids, id)
	}
	return satpoints, ids, nil
}

func (tx *ReadTx) Drc20TokenInfo(tick drc20.Tick) (*drc20.TokenInfo, bool, error) {
	val, ok, err := tx.get(keyString(prefixDrc20Token, tick.KeyHex()))
	if err != nil || !ok {
		return nil, false, err
	}
	var info drc20.TokenInfo
	if err := drc20.DecodeRecord(val, &info); err != nil {
		return nil, false, err
	}
	return &info, true, nil
}

// Drc20Tokens lists every deployed token.
func (tx *ReadTx) Drc20Tokens() ([]*drc20.TokenInfo, error) {
	prefix := []byte{prefixDrc20Token}
	var infos []*drc20.TokenInfo

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var info drc20.TokenInfo
		if err := drc20.DecodeRecord(val, &info); err != nil {
			return nil, err
		}
		infos = append(infos, &info)
	}
	return infos, nil
}

func (tx *ReadTx) Drc20Balance(owner drc20.ScriptKey, tick drc20.Tick) (*drc20.Balance, bool, error) {
	val, ok, err := tx.get(keyString(prefixDrc20Balances, balanceKey(owner, tick)))
	if err != nil || !ok {
		return nil, false, err
	}
	var balance drc20.Balance
	if err := drc20.DecodeRecord(val, &balance); err != nil {
		return nil, false, err
	}
	return &balance, true, nil
}

// Drc20BalancesByOwner lists every tick balance one owner holds.
func (tx *ReadTx) Drc20BalancesByOwner(owner drc20.ScriptKey) ([]*drc20.Balance, error) {
	prefix := keyString(prefixDrc20Balances, string(owner)+"_")
	var balances []*drc20.Balance

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var balance drc20.Balance
		if err := drc20.DecodeRecord(val, &balance); err != nil {
			return nil, err
		}
		balances = append(balances, &balance)
	}
	return balances, nil
}

func (tx *ReadTx) Drc20TransferablesByOwner(owner drc20.ScriptKey) ([]*drc20.TransferableLog, error) {
	prefix := keyString(prefixDrc20TransferableLog, string(owner)+"_")
	var logs []*drc20.TransferableLog

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var log drc20.TransferableLog
		if err := drc20.DecodeRecord(val, &log); err != nil {
			return nil, err
		}
		logs = append(logs, &log)
	}
	return logs, nil
}

func (tx *ReadTx) Statistic(stat Statistic) (uint64, error) {
	val, ok, err := tx.get(keyStatistic(stat))
	if err != nil || !ok {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("store: corrupt statistic %s", stat)
	}
	return binary.BigEndian.Uint64(val), nil
}

// Statistics reads every counter.
func (tx *ReadTx) Statistics() (map[string]uint64, error) {
	out := make(map[string]uint64, len(AllStatistics))
	for _, stat := range AllStatistics {
		v, err := tx.Statistic(stat)
		if err != nil {
			return nil, err
		}
		out[stat.String()] = v
	}
	return out, nil
}
