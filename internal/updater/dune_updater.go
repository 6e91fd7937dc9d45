package updater

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/logging"
	"github.com/rawblock/dogeindexer/internal/store"
	"github.com/rawblock/dogeindexer/internal/u128"
)

// allocation is a pending etching's state while the transaction's
// edicts draw from it.
type allocation struct {
	balance      u128.Uint128
	divisibility uint8
	id           dunes.DuneId
	terms        *dunes.Terms
	dune         dunes.Dune
	premine      u128.Uint128
	spacers      uint32
	symbol       *rune
	turbo        bool
}

// duneUpdater applies dunestones to the balance tables for one block.
type duneUpdater struct {
	tx        *store.Tx
	height    chain.Height
	timestamp uint32
	minimum   dunes.Dune
	count     uint64
}

func newDuneUpdater(tx *store.Tx, params chain.Params, height chain.Height, timestamp uint32) (*duneUpdater, error) {
	count, err := tx.Statistic(store.StatDunes)
	if err != nil {
		return nil, err
	}
	return &duneUpdater{
		tx:        tx,
		height:    height,
		timestamp: timestamp,
		minimum:   dunes.MinimumAtHeight(params.FirstDuneHeight, height),
		count:     count,
	}, nil
}

// indexTransaction runs the allocation state machine for the txIndex'th
// transaction of the block.
func (u *duneUpdater) indexTransaction(txIndex int, tx *wire.MsgTx) error {
	txid := tx.TxHash()

	dunestone, err := dunes.DunestoneFromTx(tx)
	if err != nil {
		// A malformed script or varint aborts only this transaction's
		// dune processing; input balances still need collecting so
		// they flow to the default output below.
		logging.For("dunes").Debugw("undecipherable payload", "txid", txid, "err", err)
		dunestone = nil
	}

	// Collect input balances into the unallocated pool.
	unallocated := make(map[u128.Uint128]u128.Uint128)
	for _, in := range tx.TxIn {
		buf, ok, err := u.tx.TakeDuneBalances(in.PreviousOutPoint)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		entries, err := dunes.DecodeBalances(buf)
		if err != nil {
			return err
		}
		for _, e := range entries {
			unallocated[e.Id] = unallocated[e.Id].AddChecked(e.Amount)
		}
	}

	cenotaph := dunestone != nil && dunestone.Cenotaph

	var defaultOutput *int
	if dunestone != nil && dunestone.Pointer != nil {
		v := int(*dunestone.Pointer)
		defaultOutput = &v
	}

	allocated := make([]map[u128.Uint128]u128.Uint128, len(tx.TxOut))
	for i := range allocated {
		allocated[i] = make(map[u128.Uint128]u128.Uint128)
	}

	if dunestone != nil {
		alloc, err := u.attemptEtching(txIndex, dunestone)
		if err != nil {
			return err
		}

		if !cenotaph {
			if err := u.allocateEdicts(tx, dunestone, alloc, unallocated, allocated); err != nil {
				return err
			}
		}

		if alloc != nil {
			if err := u.persistEtching(txid, alloc, cenotaph); err != nil {
				return err
			}
		}
	}

	burned := make(map[u128.Uint128]u128.Uint128)

	if cenotaph {
		for id, balance := range unallocated {
			burned[id] = burned[id].AddChecked(balance)
		}
	} else {
		// Remaining unallocated balances go to the pointer output, or
		// the first non-OP_RETURN output, or the flames.
		vout := -1
		if defaultOutput != nil && *defaultOutput >= 0 && *defaultOutput < len(tx.TxOut) {
			vout = *defaultOutput
		} else {
			for i, out := range tx.TxOut {
				if !isOpReturn(out.PkScript) {
					vout = i
					break
				}
			}
		}

		if vout >= 0 {
			for id, balance := range unallocated {
				if !balance.IsZero() {
					allocated[vout][id] = allocated[vout][id].AddChecked(balance)
				}
			}
		} else {
			for id, balance := range unallocated {
				if !balance.IsZero() {
					burned[id] = burned[id].AddChecked(balance)
				}
			}
		}
	}

	// Persist per-output balance buffers; balances on OP_RETURN outputs
	// burn instead.
	for vout, balances := range allocated {
		if len(balances) == 0 {
			continue
		}
		if isOpReturn(tx.TxOut[vout].PkScript) {
			for id, balance := range balances {
				burned[id] = burned[id].AddChecked(balance)
			}
			continue
		}
		op := wire.OutPoint{Hash: txid, Index: uint32(vout)}
		if err := u.tx.SetDuneBalances(op, dunes.EncodeBalances(balances)); err != nil {
			return err
		}
	}

	return u.recordBurns(burned)
}

// attemptEtching validates a dunestone's etching and reserves its name.
// Returns nil when the etching is absent or invalid; an invalid etching
// never poisons the rest of the dunestone.
func (u *duneUpdater) attemptEtching(txIndex int, dunestone *dunes.Dunestone) (*allocation, error) {
	e := dunestone.Etching
	if e == nil {
		return nil, nil
	}

	if e.Dune != nil {
		if e.Dune.N.LessThan(u.minimum.N) || e.Dune.IsReserved() {
			return nil, nil
		}
		if _, taken, err := u.tx.DuneId(*e.Dune); err != nil {
			return nil, err
		} else if taken {
			return nil, nil
		}
	}

	// A block can't etch past 2^16 transactions; ids reserve 16 bits
	// for the index.
	if txIndex > 0xFFFF {
		return nil, nil
	}

	var name dunes.Dune
	if e.Dune != nil {
		name = *e.Dune
	} else {
		reservedCount, err := u.tx.Statistic(store.StatReservedDunes)
		if err != nil {
			return nil, err
		}
		if err := u.tx.SetStatistic(store.StatReservedDunes, reservedCount+1); err != nil {
			return nil, err
		}
		name = dunes.Reserved(reservedCount)
	}

	alloc := &allocation{
		balance: u128.Max,
		id:      dunes.DuneId{Height: uint64(u.height), Index: uint32(txIndex)},
		dune:    name,
		turbo:   e.Turbo,
	}
	if e.Divisibility != nil {
		alloc.divisibility = *e.Divisibility
	}
	if e.Premine != nil {
		alloc.premine = *e.Premine
	}
	if e.Spacers != nil {
		alloc.spacers = *e.Spacers
	}
	alloc.symbol = e.Symbol
	if t := e.Terms; t != nil {
		terms := *t
		if terms.Limit != nil {
			clamped := u128.Min(*terms.Limit, dunes.MaxLimit)
			terms.Limit = &clamped
		}
		alloc.terms = &terms
	}
	return alloc, nil
}

// allocateEdicts applies the dunestone's edicts in listed order. Later
// edicts see the balances earlier ones left behind.
func (u *duneUpdater) allocateEdicts(
	tx *wire.MsgTx,
	dunestone *dunes.Dunestone,
	alloc *allocation,
	unallocated map[u128.Uint128]u128.Uint128,
	allocated []map[u128.Uint128]u128.Uint128,
) error {
	// Build the mint table from claim edicts, checking each referenced
	// dune's open-mint conditions once.
	mintable := make(map[u128.Uint128]u128.Uint128)
	limits := make(map[u128.Uint128]u128.Uint128)

	var claims []u128.Uint128
	for _, edict := range dunestone.Edicts {
		if claimed, ok := dunes.Claim(edict.Id); ok {
			claims = append(claims, claimed)
		}
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].LessThan(claims[j]) })
	for i, claim := range claims {
		if i > 0 && claim.Equal(claims[i-1]) {
			continue
		}
		id, err := dunes.DuneIdFromUint128(claim)
		if err != nil {
			continue
		}
		entry, ok, err := u.tx.DuneEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		limit, err := entry.Mintable(uint64(u.height))
		if err != nil {
			continue
		}
		mintable[claim] = limit
		limits[claim] = limit
	}

	for _, edict := range dunestone.Edicts {
		if !edict.Output.Fits64() {
			continue
		}
		output := int(edict.Output.Uint64())
		if output > len(tx.TxOut) {
			continue
		}

		// Resolve the balance this edict draws from.
		var balance *u128.Uint128
		var id u128.Uint128

		fromMint := false
		switch {
		case edict.Id.IsZero():
			if alloc == nil {
				continue
			}
			balance = &alloc.balance
			id = alloc.id.Uint128()
		default:
			if claimed, ok := dunes.Claim(edict.Id); ok {
				b, present := mintable[claimed]
				if !present {
					continue
				}
				balance = &b
				id = claimed
				fromMint = true
			} else {
				b, present := unallocated[edict.Id]
				if !present {
					continue
				}
				balance = &b
				id = edict.Id
			}
		}

		allocate := func(amount u128.Uint128, vout int) {
			if amount.IsZero() {
				return
			}
			*balance, _ = balance.Sub(amount)
			allocated[vout][id] = allocated[vout][id].AddChecked(amount)
		}

		if output == len(tx.TxOut) {
			// The split sentinel fans the balance out over every
			// spendable output.
			var destinations []int
			for i, out := range tx.TxOut {
				if !isOpReturn(out.PkScript) {
					destinations = append(destinations, i)
				}
			}

			if len(destinations) > 0 {
				if edict.Amount.IsZero() {
					n := u128.FromUint64(uint64(len(destinations)))
					share, remainder := balance.QuoRem(n)
					rem := int(remainder.Lo)
					for i, vout := range destinations {
						amount := share
						if i < rem {
							amount = amount.AddChecked(u128.FromUint64(1))
						}
						allocate(amount, vout)
					}
				} else {
					for _, vout := range destinations {
						allocate(u128.Min(edict.Amount, *balance), vout)
					}
				}
			}
		} else {
			amount := edict.Amount
			if amount.IsZero() {
				amount = *balance
			} else {
				amount = u128.Min(amount, *balance)
			}
			allocate(amount, output)
		}

		// Map-backed balances need the mutated copy written back.
		if fromMint {
			mintable[id] = *balance
		} else if !edict.Id.IsZero() {
			unallocated[id] = *balance
		}
	}

	// Record mint increments: whatever each claim consumed becomes
	// supply, and the mint counter ticks once.
	mintedIds := make([]u128.Uint128, 0, len(mintable))
	for id := range mintable {
		mintedIds = append(mintedIds, id)
	}
	sort.Slice(mintedIds, func(i, j int) bool { return mintedIds[i].LessThan(mintedIds[j]) })

	for _, rawId := range mintedIds {
		remaining := mintable[rawId]
		minted, _ := limits[rawId].Sub(remaining)
		if minted.IsZero() {
			continue
		}
		id, err := dunes.DuneIdFromUint128(rawId)
		if err != nil {
			continue
		}
		entry, ok, err := u.tx.DuneEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		entry.Supply = entry.Supply.AddChecked(minted)
		entry.Mints++
		if err := u.tx.SetDuneEntry(id, entry); err != nil {
			return err
		}
	}
	return nil
}

// persistEtching writes the new dune's entry and name mapping. Supply
// starts at whatever the etching's own edicts managed to allocate.
func (u *duneUpdater) persistEtching(txid chainhash.Hash, alloc *allocation, cenotaph bool) error {
	if err := u.tx.SetDuneId(alloc.dune, alloc.id); err != nil {
		return err
	}

	number := u.count
	u.count++
	if err := u.tx.SetStatistic(store.StatDunes, u.count); err != nil {
		return err
	}

	supply, _ := u128.Max.Sub(alloc.balance)

	var terms *dunes.Terms
	if !cenotaph {
		terms = alloc.terms
	}

	entry := &dunes.DuneEntry{
		Block:        uint64(u.height),
		Divisibility: alloc.divisibility,
		Etching:      txid,
		Number:       number,
		Premine:      alloc.premine,
		Terms:        terms,
		Dune:         alloc.dune,
		Spacers:      alloc.spacers,
		Supply:       supply,
		Symbol:       alloc.symbol,
		Timestamp:    u.timestamp,
		Turbo:        alloc.turbo,
	}
	if err := u.tx.SetDuneEntry(alloc.id, entry); err != nil {
		return err
	}

	// An inscription revealed in the etching transaction is tagged with
	// the dune it etched.
	inscriptionId := inscription.Id{Txid: txid, Index: 0}
	if _, ok, err := u.tx.InscriptionEntry(inscriptionId); err != nil {
		return err
	} else if ok {
		if err := u.tx.SetInscriptionDune(inscriptionId, alloc.dune); err != nil {
			return err
		}
	}
	return nil
}

func (u *duneUpdater) recordBurns(burned map[u128.Uint128]u128.Uint128) error {
	ids := make([]u128.Uint128, 0, len(burned))
	for id := range burned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].LessThan(ids[j]) })

	for _, rawId := range ids {
		amount := burned[rawId]
		if amount.IsZero() {
			continue
		}
		id, err := dunes.DuneIdFromUint128(rawId)
		if err != nil {
			continue
		}
		entry, ok, err := u.tx.DuneEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			// Balances referencing an unknown dune can only appear via
			// corrupt input buffers; drop them silently.
			continue
		}
		entry.Burned = entry.Burned.AddChecked(amount)
		if err := u.tx.SetDuneEntry(id, entry); err != nil {
			return err
		}
	}
	return nil
}
