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
	"github.com/rawblock/dogeindexer/internal/u128"
)

// Tx is a write transaction. Every mutation made after TrackUndo is
// recorded with its pre-image so the block can be unwound on reorg.
type Tx struct {
	txn         *badger.Txn
	undo        map[string]undoEntry
	undoHeight  uint32
	undoEnabled bool
}

// TrackUndo turns on pre-image recording for the rest of this
// transaction, grouping the record under height.
func (tx *Tx) TrackUndo(height uint32) {
	tx.undoEnabled = true
	tx.undoHeight = height
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
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

func (tx *Tx) recordUndo(key []byte) error {
	if !tx.undoEnabled {
		return nil
	}
	k := string(key)
	if _, seen := tx.undo[k]; seen {
		return nil
	}
	val, ok, err := tx.get(key)
	if err != nil {
		return err
	}
	tx.undo[k] = undoEntry{existed: ok, value: val}
	return nil
}

func (tx *Tx) set(key, val []byte) error {
	if err := tx.recordUndo(key); err != nil {
		return err
	}
	if err := tx.txn.Set(append([]byte(nil), key...), append([]byte(nil), val...)); err != nil {
		return fmt.Errorf("store: set: %w", err)
	}
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if err := tx.recordUndo(key); err != nil {
		return err
	}
	if err := tx.txn.Delete(append([]byte(nil), key...)); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

// ── Block hashes ──────────────────────────────────────────────

func (tx *Tx) BlockHash(height uint32) (*chainhash.Hash, error) {
	val, ok, err := tx.get(keyHeight(height))
	if err != nil || !ok {
		return nil, err
	}
	hash, err := chainhash.NewHash(val)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt block hash at height %d: %w", height, err)
	}
	return hash, nil
}

func (tx *Tx) SetBlockHash(height uint32, hash *chainhash.Hash) error {
	return tx.set(keyHeight(height), hash[:])
}

func (tx *Tx) DeleteBlockHash(height uint32) error {
	return tx.delete(keyHeight(height))
}

// LatestHeight returns the highest indexed height, or ok=false on a
// fresh database.
func (tx *Tx) LatestHeight() (uint32, bool, error) {
	return latestHeight(tx.txn)
}

func latestHeight(txn *badger.Txn) (uint32, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = []byte{prefixHeightToBlockHash}
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	// Seek past the last possible key of the prefix.
	it.Seek([]byte{prefixHeightToBlockHash, 0xff, 0xff, 0xff, 0xff})
	if !it.Valid() {
		return 0, false, nil
	}
	key := it.Item().Key()
	if len(key) != 5 {
		return 0, false, fmt.Errorf("store: corrupt height key")
	}
	return binary.BigEndian.Uint32(key[1:]), true, nil
}

// ── Sat ranges and output values ─────────────────────────────

func (tx *Tx) SatRanges(op wire.OutPoint) ([]ordinals.SatRange, bool, error) {
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

func (tx *Tx) SetSatRanges(op wire.OutPoint, ranges []ordinals.SatRange) error {
	return tx.set(keyOutpoint(prefixOutpointToSatRanges, op), ordinals.EncodeRanges(ranges))
}

// TakeSatRanges removes and returns the outpoint's ranges.
func (tx *Tx) TakeSatRanges(op wire.OutPoint) ([]ordinals.SatRange, bool, error) {
	ranges, ok, err := tx.SatRanges(op)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := tx.delete(keyOutpoint(prefixOutpointToSatRanges, op)); err != nil {
		return nil, false, err
	}
	return ranges, true, nil
}

func (tx *Tx) OutputValue(op wire.OutPoint) (uint64, bool, error) {
	val, ok, err := tx.get(keyOutpoint(prefixOutpointToValue, op))
	if err != nil || !ok {
		return 0, false, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("store: corrupt output value")
	}
	return binary.LittleEndian.Uint64(val), true, nil
}

func (tx *Tx) SetOutputValue(op wire.OutPoint, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return tx.set(keyOutpoint(prefixOutpointToValue, op), buf[:])
}

func (tx *Tx) TakeOutputValue(op wire.OutPoint) (uint64, bool, error) {
	value, ok, err := tx.OutputValue(op)
	if err != nil || !ok {
		return 0, false, err
	}
	if err := tx.delete(keyOutpoint(prefixOutpointToValue, op)); err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// ── Dune balances and entries ────────────────────────────────

func (tx *Tx) DuneBalances(op wire.OutPoint) ([]byte, bool, error) {
	return tx.get(keyOutpoint(prefixOutpointToDuneBalances, op))
}

func (tx *Tx) SetDuneBalances(op wire.OutPoint, buf []byte) error {
	return tx.set(keyOutpoint(prefixOutpointToDuneBalances, op), buf)
}

func (tx *Tx) TakeDuneBalances(op wire.OutPoint) ([]byte, bool, error) {
	val, ok, err := tx.DuneBalances(op)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := tx.delete(keyOutpoint(prefixOutpointToDuneBalances, op)); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (tx *Tx) DuneId(dune dunes.Dune) (dunes.DuneId, bool, error) {
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

func (tx *Tx) SetDuneId(dune dunes.Dune, id dunes.DuneId) error {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], id.Height)
	binary.BigEndian.PutUint32(buf[8:], id.Index)
	return tx.set(keyDune(dune), buf[:])
}

func (tx *Tx) DuneEntry(id dunes.DuneId) (*dunes.DuneEntry, bool, error) {
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

func (tx *Tx) SetDuneEntry(id dunes.DuneId, entry *dunes.DuneEntry) error {
	return tx.set(keyDuneId(id), entry.Encode())
}

// ── Inscriptions ─────────────────────────────────────────────

func (tx *Tx) InscriptionSatpoint(id inscription.Id) (ordinals.SatPoint, bool, error) {
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

func (tx *Tx) SetInscriptionSatpoint(id inscription.Id, sp ordinals.SatPoint) error {
	enc := sp.Encode()
	return tx.set(keyInscriptionId(prefixInscriptionIdToSatpoint, id), enc[:])
}

func (tx *Tx) SetSatpointToInscription(sp ordinals.SatPoint, id inscription.Id) error {
	enc := id.Encode()
	return tx.set(keySatPoint(sp), enc[:])
}

func (tx *Tx) DeleteSatpointToInscription(sp ordinals.SatPoint) error {
	return tx.delete(keySatPoint(sp))
}

// InscriptionsOnOutput lists the (satpoint, id) pairs currently sitting
// on op, in offset order.
func (tx *Tx) InscriptionsOnOutput(op wire.OutPoint) ([]ordinals.SatPoint, []inscription.Id, error) {
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

func (tx *Tx) InscriptionEntry(id inscription.Id) ([]byte, bool, error) {
	return tx.get(keyInscriptionId(prefixInscriptionIdToEntry, id))
}

func (tx *Tx) SetInscriptionEntry(id inscription.Id, entry []byte) error {
	return tx.set(keyInscriptionId(prefixInscriptionIdToEntry, id), entry)
}

func (tx *Tx) SetInscriptionNumber(number uint64, id inscription.Id) error {
	enc := id.Encode()
	return tx.set(keyInscriptionNumber(number), enc[:])
}

func (tx *Tx) SetSatToInscription(sat u128.Uint128, id inscription.Id) error {
	enc := id.Encode()
	return tx.set(keySat(sat), enc[:])
}

func (tx *Tx) SetInscriptionDune(id inscription.Id, dune dunes.Dune) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], dune.N.Hi)
	binary.BigEndian.PutUint64(buf[8:], dune.N.Lo)
	return tx.set(keyInscriptionId(prefixInscriptionIdToDune, id), buf[:])
}

// ── Partial envelope chains ──────────────────────────────────

func (tx *Tx) PartialChain(previousTxid chainhash.Hash) ([]chainhash.Hash, bool, error) {
	val, ok, err := tx.get(keyTxid(prefixPartialTxidToTxids, previousTxid))
	if err != nil || !ok {
		return nil, false, err
	}
	if len(val)%chainhash.HashSize != 0 {
		return nil, false, fmt.Errorf("store: corrupt partial chain record")
	}
	chain := make([]chainhash.Hash, len(val)/chainhash.HashSize)
	for i := range chain {
		copy(chain[i][:], val[i*chainhash.HashSize:])
	}
	return chain, true, nil
}

func (tx *Tx) SetPartialChain(previousTxid chainhash.Hash, chain []chainhash.Hash) error {
	buf := make([]byte, 0, len(chain)*chainhash.HashSize)
	for _, txid := range chain {
		buf = append(buf, txid[:]...)
	}
	return tx.set(keyTxid(prefixPartialTxidToTxids, previousTxid), buf)
}

func (tx *Tx) DeletePartialChain(previousTxid chainhash.Hash) error {
	return tx.delete(keyTxid(prefixPartialTxidToTxids, previousTxid))
}

// SetInscriptionTxids records the ordered envelope chain that
// assembled an inscription, so content can be re-parsed on demand.
func (tx *Tx) SetInscriptionTxids(id inscription.Id, txids []chainhash.Hash) error {
	buf := make([]byte, 0, len(txids)*chainhash.HashSize)
	for _, txid := range txids {
		buf = append(buf, txid[:]...)
	}
	return tx.set(keyInscriptionId(prefixInscriptionIdToTxids, id), buf)
}

func (tx *Tx) RawTx(txid chainhash.Hash) ([]byte, bool, error) {
	return tx.get(keyTxid(prefixInscriptionTxidToTx, txid))
}

func (tx *Tx) SetRawTx(txid chainhash.Hash, raw []byte) error {
	return tx.set(keyTxid(prefixInscriptionTxidToTx, txid), raw)
}

// ── DRC-20 ───────────────────────────────────────────────────

func (tx *Tx) Drc20TokenInfo(tick drc20.Tick) (*drc20.TokenInfo, bool, error) {
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

func (tx *Tx) SetDrc20TokenInfo(tick drc20.Tick, info *drc20.TokenInfo) error {
	return tx.set(keyString(prefixDrc20Token, tick.KeyHex()), drc20.EncodeRecord(info))
}

func balanceKey(owner drc20.ScriptKey, tick drc20.Tick) string {
	return string(owner) + "_" + tick.KeyHex()
}

func (tx *Tx) Drc20Balance(owner drc20.ScriptKey, tick drc20.Tick) (*drc20.Balance, bool, error) {
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

func (tx *Tx) SetDrc20Balance(owner drc20.ScriptKey, tick drc20.Tick, balance *drc20.Balance) error {
	return tx.set(keyString(prefixDrc20Balances, balanceKey(owner, tick)), drc20.EncodeRecord(balance))
}

func transferableKey(owner drc20.ScriptKey, tick drc20.Tick, id inscription.Id) string {
	return string(owner) + "_" + tick.KeyHex() + "_" + id.String()
}

func (tx *Tx) SetDrc20Transferable(log *drc20.TransferableLog) error {
	tick, err := drc20.ParseTick(log.Tick)
	if err != nil {
		return err
	}
	return tx.set(
		keyString(prefixDrc20TransferableLog, transferableKey(log.Owner, tick, log.InscriptionId)),
		drc20.EncodeRecord(log),
	)
}

func (tx *Tx) DeleteDrc20Transferable(owner drc20.ScriptKey, tick drc20.Tick, id inscription.Id) error {
	return tx.delete(keyString(prefixDrc20TransferableLog, transferableKey(owner, tick, id)))
}

// Drc20TransferablesByOwner lists every reservation of one owner.
func (tx *Tx) Drc20TransferablesByOwner(owner drc20.ScriptKey) ([]*drc20.TransferableLog, error) {
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

func (tx *Tx) Drc20TransferInfo(id inscription.Id) (*drc20.TransferInfo, bool, error) {
	val, ok, err := tx.get(keyInscriptionId(prefixDrc20InscribeTransfer, id))
	if err != nil || !ok {
		return nil, false, err
	}
	var info drc20.TransferInfo
	if err := drc20.DecodeRecord(val, &info); err != nil {
		return nil, false, err
	}
	return &info, true, nil
}

func (tx *Tx) SetDrc20TransferInfo(id inscription.Id, info *drc20.TransferInfo) error {
	return tx.set(keyInscriptionId(prefixDrc20InscribeTransfer, id), drc20.EncodeRecord(info))
}

func (tx *Tx) DeleteDrc20TransferInfo(id inscription.Id) error {
	return tx.delete(keyInscriptionId(prefixDrc20InscribeTransfer, id))
}

// ── Statistics ───────────────────────────────────────────────

func (tx *Tx) Statistic(stat Statistic) (uint64, error) {
	val, ok, err := tx.get(keyStatistic(stat))
	if err != nil || !ok {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("store: corrupt statistic %s", stat)
	}
	return binary.BigEndian.Uint64(val), nil
}

func (tx *Tx) SetStatistic(stat Statistic, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return tx.set(keyStatistic(stat), buf[:])
}

func (tx *Tx) IncrStatistic(stat Statistic, delta uint64) error {
	current, err := tx.Statistic(stat)
	if err != nil {
		return err
	}
	return tx.SetStatistic(stat, current+delta)
}
