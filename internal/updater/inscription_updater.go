package updater

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/drc20"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/ordinals"
	"github.com/rawblock/dogeindexer/internal/store"
)

// flotsam is one inscription in motion through the current transaction:
// either newly assembled here or carried in on a spent output.
type flotsam struct {
	id      inscription.Id
	offset  uint64
	old     *ordinals.SatPoint       // set when the inscription already existed
	fee     uint64                   // new inscriptions only
	content *inscription.Inscription // new inscriptions only
}

// inscriptionUpdater follows inscriptions through one block: assembling
// envelopes (possibly continuing chains begun in earlier blocks),
// binding fresh inscriptions to sats, and moving satpoints as outputs
// are spent. Inscriptions that ride fees accumulate in leftovers until
// the coinbase settles them.
type inscriptionUpdater struct {
	tx        *store.Tx
	height    chain.Height
	timestamp uint32

	reward     uint64
	lostSats   uint64
	nextNumber uint64
	leftovers  []flotsam
}

func newInscriptionUpdater(tx *store.Tx, height chain.Height, timestamp uint32) (*inscriptionUpdater, error) {
	nextNumber, err := tx.Statistic(store.StatInscriptions)
	if err != nil {
		return nil, err
	}
	lostSats, err := tx.Statistic(store.StatLostSats)
	if err != nil {
		return nil, err
	}
	return &inscriptionUpdater{
		tx:         tx,
		height:     height,
		timestamp:  timestamp,
		reward:     height.Subsidy(),
		lostSats:   lostSats,
		nextNumber: nextNumber,
	}, nil
}

// indexTransaction tracks inscriptions through one transaction and
// reports the operations the DRC-20 executor consumes. inputRanges is
// the transaction's concatenated input sat ranges from the sat pass;
// isCoinbase transactions settle the block's leftover flotsam.
func (u *inscriptionUpdater) indexTransaction(
	tx *wire.MsgTx,
	inputRanges []ordinals.SatRange,
	isCoinbase bool,
) ([]drc20.InscriptionOp, error) {
	txid := tx.TxHash()
	var inscriptions []flotsam

	var inputValue uint64
	for _, in := range tx.TxIn {
		if ordinals.IsNull(in.PreviousOutPoint) {
			inputValue += u.height.Subsidy()
			continue
		}

		oldSatpoints, ids, err := u.tx.InscriptionsOnOutput(in.PreviousOutPoint)
		if err != nil {
			return nil, err
		}
		for i, old := range oldSatpoints {
			oldCopy := old
			inscriptions = append(inscriptions, flotsam{
				id:     ids[i],
				offset: inputValue + old.Offset,
				old:    &oldCopy,
			})
		}

		value, ok, err := u.tx.TakeOutputValue(in.PreviousOutPoint)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("updater: input %s of %s has no indexed value", in.PreviousOutPoint, txid)
		}
		inputValue += value
	}

	// A new envelope is only considered when no existing inscription
	// already occupies the transaction's first sat.
	atZero := false
	for _, f := range inscriptions {
		if f.offset == 0 {
			atZero = true
			break
		}
	}

	if !atZero && !isCoinbase {
		newFlotsam, err := u.assembleEnvelope(tx, txid, inputValue)
		if err != nil {
			return nil, err
		}
		if newFlotsam != nil {
			inscriptions = append(inscriptions, *newFlotsam)
		}
	}

	if isCoinbase {
		inscriptions = append(inscriptions, u.leftovers...)
		u.leftovers = nil
	}

	sort.Slice(inscriptions, func(i, j int) bool {
		return inscriptions[i].offset < inscriptions[j].offset
	})

	var ops []drc20.InscriptionOp
	firstInput := ordinals.SatPoint{}
	if len(tx.TxIn) > 0 {
		firstInput = ordinals.SatPoint{OutPoint: tx.TxIn[0].PreviousOutPoint}
	}

	var outputValue uint64
	next := 0
	for vout, out := range tx.TxOut {
		end := outputValue + uint64(out.Value)

		for next < len(inscriptions) && inscriptions[next].offset < end {
			f := inscriptions[next]
			newSatpoint := ordinals.SatPoint{
				OutPoint: wire.OutPoint{Hash: txid, Index: uint32(vout)},
				Offset:   f.offset - outputValue,
			}
			if err := u.updateLocation(inputRanges, f, newSatpoint); err != nil {
				return nil, err
			}
			ops = append(ops, makeOp(txid, f, firstInput, &newSatpoint))
			next++
		}
		outputValue = end
	}

	remaining := inscriptions[next:]

	if isCoinbase {
		for _, f := range remaining {
			newSatpoint := ordinals.SatPoint{
				OutPoint: ordinals.NullOutPoint(),
				Offset:   u.lostSats + f.offset - outputValue,
			}
			if err := u.updateLocation(inputRanges, f, newSatpoint); err != nil {
				return nil, err
			}
		}
		return ops, nil
	}

	// Everything past the outputs rides fees toward the coinbase.
	for _, f := range remaining {
		carried := f
		carried.offset = u.reward + f.offset - outputValue
		u.leftovers = append(u.leftovers, carried)
		ops = append(ops, makeOp(txid, f, firstInput, nil))
	}
	u.reward += inputValue - outputValue
	return ops, nil
}

func makeOp(txid chainhash.Hash, f flotsam, firstInput ordinals.SatPoint, newSatpoint *ordinals.SatPoint) drc20.InscriptionOp {
	op := drc20.InscriptionOp{
		Txid:        txid,
		Id:          f.id,
		NewSatPoint: newSatpoint,
	}
	if f.old != nil {
		op.Action = drc20.ActionTransfer
		op.OldSatPoint = *f.old
	} else {
		op.Action = drc20.ActionNew
		op.Inscription = f.content
		op.OldSatPoint = firstInput
	}
	return op
}

// assembleEnvelope attempts to parse a new inscription beginning at, or
// continuing into, this transaction.
func (u *inscriptionUpdater) assembleEnvelope(tx *wire.MsgTx, txid chainhash.Hash, inputValue uint64) (*flotsam, error) {
	if len(tx.TxIn) == 0 {
		return nil, nil
	}
	previousTxid := tx.TxIn[0].PreviousOutPoint.Hash

	txids, isContinuation, err := u.tx.PartialChain(previousTxid)
	if err != nil {
		return nil, err
	}

	txs := make([]*wire.MsgTx, 0, len(txids)+1)
	for _, id := range txids {
		raw, ok, err := u.tx.RawTx(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("updater: partial chain references unstored tx %s", id)
		}
		var stored wire.MsgTx
		if err := stored.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("updater: corrupt stored tx %s: %w", id, err)
		}
		txs = append(txs, &stored)
	}
	txs = append(txs, tx)

	parsed := inscription.ParseTransactions(txs)
	switch parsed.State {
	case inscription.ParseNone:
		if isContinuation {
			// A poisoned chain can never complete; drop its state.
			if err := u.tx.DeletePartialChain(previousTxid); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case inscription.ParsePartial:
		if isContinuation {
			if err := u.tx.DeletePartialChain(previousTxid); err != nil {
				return nil, err
			}
		}
		if err := u.tx.SetPartialChain(txid, append(txids, txid)); err != nil {
			return nil, err
		}
		return nil, u.storeRawTx(txid, tx)

	case inscription.ParseComplete:
		if isContinuation {
			if err := u.tx.DeletePartialChain(previousTxid); err != nil {
				return nil, err
			}
		}
		if err := u.storeRawTx(txid, tx); err != nil {
			return nil, err
		}

		first := txid
		if len(txids) > 0 {
			first = txids[0]
		}

		id := inscription.Id{Txid: first, Index: 0}
		if err := u.tx.SetInscriptionTxids(id, append(txids, txid)); err != nil {
			return nil, err
		}

		var outputValue uint64
		for _, out := range tx.TxOut {
			outputValue += uint64(out.Value)
		}

		return &flotsam{
			id:      id,
			offset:  0,
			fee:     inputValue - outputValue,
			content: parsed.Inscription,
		}, nil
	}
	return nil, nil
}

func (u *inscriptionUpdater) storeRawTx(txid chainhash.Hash, tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	return u.tx.SetRawTx(txid, buf.Bytes())
}

// updateLocation persists one inscription's move, creating the entry
// when the inscription is new.
func (u *inscriptionUpdater) updateLocation(inputRanges []ordinals.SatRange, f flotsam, newSatpoint ordinals.SatPoint) error {
	if f.old != nil {
		if err := u.tx.DeleteSatpointToInscription(*f.old); err != nil {
			return err
		}
	} else {
		if err := u.tx.SetInscriptionNumber(u.nextNumber, f.id); err != nil {
			return err
		}

		entry := inscription.Entry{
			Fee:       f.fee,
			Height:    uint64(u.height),
			Number:    u.nextNumber,
			Timestamp: u.timestamp,
		}

		if sat, ok := ordinals.SatAtOffset(inputRanges, f.offset); ok {
			n := sat.Uint128()
			entry.Sat = &n
			if err := u.tx.SetSatToInscription(n, f.id); err != nil {
				return err
			}
		} else if err := u.tx.IncrStatistic(store.StatUnboundInscriptions, 1); err != nil {
			return err
		}

		if err := u.tx.SetInscriptionEntry(f.id, entry.Encode()); err != nil {
			return err
		}

		u.nextNumber++
		if err := u.tx.SetStatistic(store.StatInscriptions, u.nextNumber); err != nil {
			return err
		}
	}

	if err := u.tx.SetSatpointToInscription(newSatpoint, f.id); err != nil {
		return err
	}
	return u.tx.SetInscriptionSatpoint(f.id, newSatpoint)
}
