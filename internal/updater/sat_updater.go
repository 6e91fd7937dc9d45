package updater

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/ordinals"
	"github.com/rawblock/dogeindexer/internal/store"
)

// satUpdater assigns sat ranges to outputs for one block. Transactions
// consume their inputs' ranges front-first; what the outputs don't
// claim becomes the fee stream appended to the coinbase's pool, and
// what the coinbase doesn't claim is credited to the null outpoint as
// lost sats.
type satUpdater struct {
	tx     *store.Tx
	height chain.Height

	// inputRanges holds each processed transaction's concatenated input
	// ranges, in block order past the coinbase, for inscription binding.
	inputRanges map[int][]ordinals.SatRange

	// feeStream accumulates unclaimed tails awaiting the coinbase.
	feeStream []ordinals.SatRange
}

func newSatUpdater(tx *store.Tx, height chain.Height) *satUpdater {
	return &satUpdater{
		tx:          tx,
		height:      height,
		inputRanges: make(map[int][]ordinals.SatRange),
	}
}

// indexTransaction processes the txIndex'th transaction of the block.
// Non-coinbase transactions must all be indexed before the coinbase.
func (u *satUpdater) indexTransaction(txIndex int, tx *wire.MsgTx) error {
	txid := tx.TxHash()

	var inputs []ordinals.SatRange
	for _, in := range tx.TxIn {
		ranges, ok, err := u.tx.TakeSatRanges(in.PreviousOutPoint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("updater: input %s of %s has no indexed sat ranges", in.PreviousOutPoint, txid)
		}
		inputs = append(inputs, ranges...)
	}
	u.inputRanges[txIndex] = inputs

	stream := ordinals.NewStream(append([]ordinals.SatRange(nil), inputs...))
	if err := u.assignOutputs(txid, tx, stream); err != nil {
		return err
	}

	// The unclaimed tail rides as fees into the coinbase.
	u.feeStream = append(u.feeStream, stream.Remaining()...)
	return nil
}

// indexCoinbase processes the block's coinbase after every other
// transaction has contributed its fee stream.
func (u *satUpdater) indexCoinbase(tx *wire.MsgTx) error {
	txid := tx.TxHash()

	stream := ordinals.NewStream(nil)
	if u.height == 0 {
		// The genesis output is unspendable; its subsidy is lost
		// outright rather than carried as a claimable range.
		lost := ordinals.SubsidyRange(u.height)
		if err := u.creditLost([]ordinals.SatRange{lost}); err != nil {
			return err
		}
		u.inputRanges[0] = nil
		return u.recordOutputValues(txid, tx)
	}

	stream.Push(ordinals.SubsidyRange(u.height))
	stream.Push(u.feeStream...)
	u.inputRanges[0] = nil

	if err := u.assignOutputs(txid, tx, stream); err != nil {
		return err
	}

	// An under-claiming coinbase loses the remainder to the null
	// outpoint.
	if remaining := stream.Remaining(); len(remaining) > 0 {
		if err := u.creditLost(remaining); err != nil {
			return err
		}
	}
	return nil
}

func (u *satUpdater) assignOutputs(txid chainhash.Hash, tx *wire.MsgTx, stream *ordinals.Stream) error {
	for vout, out := range tx.TxOut {
		taken := stream.Take(uint64(out.Value))

		op := wire.OutPoint{Hash: txid, Index: uint32(vout)}

		// Sats sent to a provably unspendable OP_RETURN output roll
		// back into the block's fee pool instead of parking there.
		if isOpReturn(out.PkScript) {
			u.feeStream = append(u.feeStream, taken...)
		} else if err := u.tx.SetSatRanges(op, taken); err != nil {
			return err
		}

		if err := u.tx.SetOutputValue(op, uint64(out.Value)); err != nil {
			return err
		}
		if err := u.tx.IncrStatistic(store.StatOutputsTraversed, 1); err != nil {
			return err
		}
		if err := u.tx.IncrStatistic(store.StatSatRanges, uint64(len(taken))); err != nil {
			return err
		}
	}
	return nil
}

// recordOutputValues writes output values without assigning ranges,
// used for the genesis coinbase.
func (u *satUpdater) recordOutputValues(txid chainhash.Hash, tx *wire.MsgTx) error {
	for vout, out := range tx.TxOut {
		op := wire.OutPoint{Hash: txid, Index: uint32(vout)}
		if err := u.tx.SetOutputValue(op, uint64(out.Value)); err != nil {
			return err
		}
	}
	return nil
}

// creditLost appends ranges to the null outpoint's record and bumps the
// lost-sats counter.
func (u *satUpdater) creditLost(ranges []ordinals.SatRange) error {
	null := ordinals.NullOutPoint()
	existing, _, err := u.tx.SatRanges(null)
	if err != nil {
		return err
	}
	if err := u.tx.SetSatRanges(null, append(existing, ranges...)); err != nil {
		return err
	}
	return u.tx.IncrStatistic(store.StatLostSats, ordinals.TotalSats(ranges))
}

func isOpReturn(pkScript []byte) bool {
	return len(pkScript) > 0 && pkScript[0] == txscript.OP_RETURN
}
