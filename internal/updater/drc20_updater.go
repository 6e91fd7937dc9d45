package updater

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/drc20"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/logging"
	"github.com/rawblock/dogeindexer/internal/store"
	"github.com/rawblock/dogeindexer/internal/u128"
)

// prevoutScriptFunc resolves the pkScript of an already-spent outpoint,
// from the in-block cache or the node.
type prevoutScriptFunc func(op wire.OutPoint) ([]byte, error)

// Drc20Event is the observable outcome of one DRC-20 message. Protocol
// violations are not errors: the ledger is untouched and the event
// explains why.
type Drc20Event struct {
	Kind   drc20.OperationKind
	Tick   string
	Amount u128.Uint128
	From   drc20.ScriptKey
	To     drc20.ScriptKey
	Valid  bool
	Msg    string
}

// drc20Updater resolves inscription operations into ledger messages and
// executes them.
type drc20Updater struct {
	tx         *store.Tx
	params     chain.Params
	height     chain.Height
	timestamp  uint32
	prevScript prevoutScriptFunc
	log        *zap.SugaredLogger
}

func newDrc20Updater(tx *store.Tx, params chain.Params, height chain.Height, timestamp uint32, prevScript prevoutScriptFunc) *drc20Updater {
	return &drc20Updater{
		tx:         tx,
		params:     params,
		height:     height,
		timestamp:  timestamp,
		prevScript: prevScript,
		log:        logging.For("drc20"),
	}
}

// message is a resolved, executable operation.
type message struct {
	op          *drc20.Operation
	inscription drc20.InscriptionOp
}

// indexTransaction resolves and executes this transaction's inscription
// operations against the ledger, returning the emitted events.
func (u *drc20Updater) indexTransaction(tx *wire.MsgTx, ops []drc20.InscriptionOp) ([]Drc20Event, error) {
	var events []Drc20Event

	for _, op := range ops {
		msg, err := u.resolve(op)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}

		event, err := u.execute(tx, msg)
		if err != nil {
			return nil, err
		}
		if event != nil {
			events = append(events, *event)
			if err := u.tx.IncrStatistic(store.StatDrc20Ops, 1); err != nil {
				return nil, err
			}
		}
	}
	return events, nil
}

// resolve turns an inscription operation into at most one message.
func (u *drc20Updater) resolve(op drc20.InscriptionOp) (*message, error) {
	switch op.Action {
	case drc20.ActionNew:
		// The inscription must land on one of this transaction's own
		// outputs; anything else (fees, coinbase) carries no operation.
		if op.NewSatPoint == nil || op.NewSatPoint.OutPoint.Hash != op.Txid {
			return nil, nil
		}
		parsed, err := drc20.ParseOperation(op.Inscription, drc20.ActionNew)
		if err != nil {
			// Shape violations are protocol noise, not indexer errors.
			u.log.Debugw("rejected operation", "inscription", op.Id, "err", err)
			return nil, nil
		}
		if parsed == nil {
			return nil, nil
		}
		return &message{op: parsed, inscription: op}, nil

	case drc20.ActionTransfer:
		info, ok, err := u.tx.Drc20TransferInfo(op.Id)
		if err != nil {
			return nil, err
		}
		// Only the first movement of an inscribe-transfer executes; it
		// is recognized by the inscription still sitting in the
		// transaction that revealed it.
		if !ok || op.Id.Txid != op.OldSatPoint.OutPoint.Hash {
			return nil, nil
		}
		return &message{
			op: &drc20.Operation{
				Kind: drc20.OpTransfer,
				Transfer: &drc20.Transfer{
					Tick: info.Tick,
					Amt:  info.Amount.String(),
				},
			},
			inscription: op,
		}, nil
	}
	return nil, nil
}

// toScriptKey resolves the destination owner, nil when the inscription
// left the transaction's outputs (rode fees toward the coinbase).
func (u *drc20Updater) toScriptKey(tx *wire.MsgTx, op drc20.InscriptionOp) *drc20.ScriptKey {
	if op.NewSatPoint == nil || op.NewSatPoint.OutPoint.Hash != op.Txid {
		return nil
	}
	vout := op.NewSatPoint.OutPoint.Index
	if int(vout) >= len(tx.TxOut) {
		return nil
	}
	key := drc20.ScriptKeyFromPkScript(tx.TxOut[vout].PkScript, u.params.Net)
	return &key
}

// fromScriptKey resolves the source owner from the spent output.
func (u *drc20Updater) fromScriptKey(op drc20.InscriptionOp) (drc20.ScriptKey, error) {
	pkScript, err := u.prevScript(op.OldSatPoint.OutPoint)
	if err != nil {
		return "", fmt.Errorf("updater: resolve script of %s: %w", op.OldSatPoint.OutPoint, err)
	}
	return drc20.ScriptKeyFromPkScript(pkScript, u.params.Net), nil
}

func (u *drc20Updater) execute(tx *wire.MsgTx, msg *message) (*Drc20Event, error) {
	switch msg.op.Kind {
	case drc20.OpDeploy:
		return u.processDeploy(tx, msg)
	case drc20.OpMint:
		return u.processMint(tx, msg)
	case drc20.OpInscribeTransfer:
		return u.processInscribeTransfer(tx, msg)
	case drc20.OpTransfer:
		return u.processTransfer(tx, msg)
	}
	return nil, nil
}

func invalid(kind drc20.OperationKind, tick, reason string) *Drc20Event {
	return &Drc20Event{Kind: kind, Tick: tick, Msg: reason}
}

func (u *drc20Updater) processDeploy(tx *wire.MsgTx, msg *message) (*Drc20Event, error) {
	d := msg.op.Deploy

	to := u.toScriptKey(tx, msg.inscription)
	if to == nil {
		return invalid(drc20.OpDeploy, d.Tick, "inscribe to coinbase"), nil
	}

	tick, err := drc20.ParseTick(d.Tick)
	if err != nil {
		return invalid(drc20.OpDeploy, d.Tick, "invalid tick"), nil
	}

	if _, exists, err := u.tx.Drc20TokenInfo(tick); err != nil {
		return nil, err
	} else if exists {
		return invalid(drc20.OpDeploy, d.Tick, "tick already deployed"), nil
	}

	dec := drc20.MaxDecimalWidth
	if d.Dec != "" {
		parsed, err := drc20.ParseWhole(d.Dec)
		if err != nil || !parsed.Fits64() || parsed.Lo > uint64(drc20.MaxDecimalWidth) {
			return invalid(drc20.OpDeploy, d.Tick, "decimals out of range"), nil
		}
		dec = uint8(parsed.Lo)
	}

	supply, err := drc20.ParseAmount(d.Max, dec)
	if err != nil || supply.IsZero() {
		return invalid(drc20.OpDeploy, d.Tick, "invalid max supply"), nil
	}
	maxSupply, overflow := drc20.MaxWholeSupply.Mul(drc20.Pow10(dec))
	if overflow || supply.GreaterThan(maxSupply) {
		return invalid(drc20.OpDeploy, d.Tick, "max supply out of range"), nil
	}

	limit := supply
	if d.Lim != "" {
		limit, err = drc20.ParseAmount(d.Lim, dec)
		if err != nil || limit.IsZero() || limit.GreaterThan(maxSupply) {
			return invalid(drc20.OpDeploy, d.Tick, "mint limit out of range"), nil
		}
	}

	entryBytes, ok, err := u.tx.InscriptionEntry(msg.inscription.Id)
	if err != nil {
		return nil, err
	}
	var number uint64
	if ok {
		if entry, err := inscription.DecodeEntry(entryBytes); err == nil {
			number = entry.Number
		}
	}

	info := &drc20.TokenInfo{
		InscriptionId:     msg.inscription.Id,
		InscriptionNumber: number,
		Tick:              tick.String(),
		Supply:            supply,
		LimitPerMint:      limit,
		Decimal:           dec,
		Minted:            u128.Zero,
		DeployBy:          *to,
		DeployedHeight:    uint64(u.height),
		LatestMintHeight:  uint64(u.height),
		DeployedTimestamp: u.timestamp,
	}
	if err := u.tx.SetDrc20TokenInfo(tick, info); err != nil {
		return nil, err
	}
	if err := u.tx.IncrStatistic(store.StatDrc20Ticks, 1); err != nil {
		return nil, err
	}

	return &Drc20Event{
		Kind:   drc20.OpDeploy,
		Tick:   tick.String(),
		Amount: supply,
		To:     *to,
		Valid:  true,
	}, nil
}

func (u *drc20Updater) processMint(tx *wire.MsgTx, msg *message) (*Drc20Event, error) {
	m := msg.op.Mint

	to := u.toScriptKey(tx, msg.inscription)
	if to == nil {
		return invalid(drc20.OpMint, m.Tick, "inscribe to coinbase"), nil
	}

	tick, err := drc20.ParseTick(m.Tick)
	if err != nil {
		return invalid(drc20.OpMint, m.Tick, "invalid tick"), nil
	}
	info, ok, err := u.tx.Drc20TokenInfo(tick)
	if err != nil {
		return nil, err
	}
	if !ok {
		return invalid(drc20.OpMint, m.Tick, "tick not deployed"), nil
	}

	amt, err := drc20.ParseAmount(m.Amt, info.Decimal)
	if err != nil || amt.IsZero() {
		return invalid(drc20.OpMint, m.Tick, "invalid amount"), nil
	}
	if amt.GreaterThan(info.LimitPerMint) {
		return invalid(drc20.OpMint, m.Tick, "amount exceeds mint limit"), nil
	}
	if info.Minted.Cmp(info.Supply) >= 0 {
		return invalid(drc20.OpMint, m.Tick, "tick fully minted"), nil
	}

	// Clamp the final mint to whatever supply remains.
	var clampMsg string
	total, overflow := info.Minted.Add(amt)
	if overflow || total.GreaterThan(info.Supply) {
		remaining, _ := info.Supply.Sub(info.Minted)
		clampMsg = fmt.Sprintf("amount clamped to fit supply: requested %s, minted %s", amt, remaining)
		amt = remaining
	}

	balance, ok, err := u.tx.Drc20Balance(*to, tick)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance = &drc20.Balance{Tick: tick.String()}
	}
	balance.OverallBalance = balance.OverallBalance.AddChecked(amt)
	if err := u.tx.SetDrc20Balance(*to, tick, balance); err != nil {
		return nil, err
	}

	info.Minted = info.Minted.AddChecked(amt)
	info.LatestMintHeight = uint64(u.height)
	if err := u.tx.SetDrc20TokenInfo(tick, info); err != nil {
		return nil, err
	}

	return &Drc20Event{
		Kind:   drc20.OpMint,
		Tick:   tick.String(),
		Amount: amt,
		To:     *to,
		Valid:  true,
		Msg:    clampMsg,
	}, nil
}

func (u *drc20Updater) processInscribeTransfer(tx *wire.MsgTx, msg *message) (*Drc20Event, error) {
	t := msg.op.Transfer

	to := u.toScriptKey(tx, msg.inscription)
	if to == nil {
		return invalid(drc20.OpInscribeTransfer, t.Tick, "inscribe to coinbase"), nil
	}

	tick, err := drc20.ParseTick(t.Tick)
	if err != nil {
		return invalid(drc20.OpInscribeTransfer, t.Tick, "invalid tick"), nil
	}
	info, ok, err := u.tx.Drc20TokenInfo(tick)
	if err != nil {
		return nil, err
	}
	if !ok {
		return invalid(drc20.OpInscribeTransfer, t.Tick, "tick not deployed"), nil
	}

	amt, err := drc20.ParseAmount(t.Amt, info.Decimal)
	if err != nil || amt.IsZero() || amt.GreaterThan(info.Supply) {
		return invalid(drc20.OpInscribeTransfer, t.Tick, "invalid amount"), nil
	}

	balance, ok, err := u.tx.Drc20Balance(*to, tick)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance = &drc20.Balance{Tick: tick.String()}
	}

	available, _ := balance.OverallBalance.Sub(balance.TransferableBalance)
	if available.LessThan(amt) {
		return invalid(drc20.OpInscribeTransfer, t.Tick, "insufficient available balance"), nil
	}

	balance.TransferableBalance = balance.TransferableBalance.AddChecked(amt)
	if err := u.tx.SetDrc20Balance(*to, tick, balance); err != nil {
		return nil, err
	}

	entryBytes, ok, err := u.tx.InscriptionEntry(msg.inscription.Id)
	if err != nil {
		return nil, err
	}
	var number uint64
	if ok {
		if entry, err := inscription.DecodeEntry(entryBytes); err == nil {
			number = entry.Number
		}
	}

	log := &drc20.TransferableLog{
		InscriptionId:     msg.inscription.Id,
		InscriptionNumber: number,
		Amount:            amt,
		Tick:              tick.String(),
		Owner:             *to,
	}
	if err := u.tx.SetDrc20Transferable(log); err != nil {
		return nil, err
	}
	transferInfo := &drc20.TransferInfo{Tick: tick.String(), Amount: amt}
	if err := u.tx.SetDrc20TransferInfo(msg.inscription.Id, transferInfo); err != nil {
		return nil, err
	}
	if err := u.tx.IncrStatistic(store.StatDrc20InscribeTransfers, 1); err != nil {
		return nil, err
	}

	return &Drc20Event{
		Kind:   drc20.OpInscribeTransfer,
		Tick:   tick.String(),
		Amount: amt,
		To:     *to,
		Valid:  true,
	}, nil
}

func (u *drc20Updater) processTransfer(tx *wire.MsgTx, msg *message) (*Drc20Event, error) {
	t := msg.op.Transfer

	from, err := u.fromScriptKey(msg.inscription)
	if err != nil {
		return nil, err
	}

	tick, err := drc20.ParseTick(t.Tick)
	if err != nil {
		return invalid(drc20.OpTransfer, t.Tick, "invalid tick"), nil
	}

	if _, ok, err := u.tx.Drc20TokenInfo(tick); err != nil {
		return nil, err
	} else if !ok {
		return invalid(drc20.OpTransfer, t.Tick, "tick not deployed"), nil
	}

	// The reservation must exist under the sender's key; a mismatched
	// owner means the inscription moved without its balance.
	logs, err := u.tx.Drc20TransferablesByOwner(from)
	if err != nil {
		return nil, err
	}
	var reservation *drc20.TransferableLog
	for _, l := range logs {
		if l.InscriptionId == msg.inscription.Id {
			reservation = l
			break
		}
	}
	if reservation == nil {
		return invalid(drc20.OpTransfer, t.Tick, "transferable owner mismatch"), nil
	}

	amt := reservation.Amount

	fromBalance, ok, err := u.tx.Drc20Balance(from, tick)
	if err != nil {
		return nil, err
	}
	if !ok {
		fromBalance = &drc20.Balance{Tick: tick.String()}
	}

	newOverall, underflow := fromBalance.OverallBalance.Sub(amt)
	newTransferable, underflow2 := fromBalance.TransferableBalance.Sub(amt)
	if underflow || underflow2 {
		return nil, fmt.Errorf("updater: transferable log exceeds balance for %s", from)
	}
	fromBalance.OverallBalance = newOverall
	fromBalance.TransferableBalance = newTransferable
	if err := u.tx.SetDrc20Balance(from, tick, fromBalance); err != nil {
		return nil, err
	}

	// A transfer whose inscription left the output set (rode fees to
	// the coinbase) refunds the sender.
	var refundMsg string
	to := u.toScriptKey(tx, msg.inscription)
	if to == nil {
		to = &from
		refundMsg = "receiver redirected to sender: transfer inscription left output set"
	}

	toBalance, ok, err := u.tx.Drc20Balance(*to, tick)
	if err != nil {
		return nil, err
	}
	if !ok {
		toBalance = &drc20.Balance{Tick: tick.String()}
	}
	toBalance.OverallBalance = toBalance.OverallBalance.AddChecked(amt)
	if err := u.tx.SetDrc20Balance(*to, tick, toBalance); err != nil {
		return nil, err
	}

	if err := u.tx.DeleteDrc20Transferable(from, tick, msg.inscription.Id); err != nil {
		return nil, err
	}
	if err := u.tx.DeleteDrc20TransferInfo(msg.inscription.Id); err != nil {
		return nil, err
	}

	return &Drc20Event{
		Kind:   drc20.OpTransfer,
		Tick:   tick.String(),
		Amount: amt,
		From:   from,
		To:     *to,
		Valid:  true,
		Msg:    refundMsg,
	}, nil
}
