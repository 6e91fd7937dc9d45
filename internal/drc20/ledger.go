package drc20

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/u128"
)

// ScriptKey identifies a balance owner: the rendered address when the
// output script has one, otherwise the hex of the script's hash160.
type ScriptKey string

// ScriptKeyFromPkScript derives the owner key for an output script.
func ScriptKeyFromPkScript(pkScript []byte, params *chaincfg.Params) ScriptKey {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err == nil && len(addrs) > 0 {
		return ScriptKey(addrs[0].EncodeAddress())
	}
	return ScriptKey(hex.EncodeToString(btcutil.Hash160(pkScript)))
}

// TokenInfo is the persisted per-tick record. Supply, limit, and minted
// are in smallest units.
type TokenInfo struct {
	InscriptionId     inscription.Id `json:"inscriptionId"`
	InscriptionNumber uint64         `json:"inscriptionNumber"`
	Tick              string         `json:"tick"`
	Supply            u128.Uint128   `json:"supply"`
	LimitPerMint      u128.Uint128   `json:"limitPerMint"`
	Decimal           uint8          `json:"decimal"`
	Minted            u128.Uint128   `json:"minted"`
	DeployBy          ScriptKey      `json:"deployBy"`
	DeployedHeight    uint64         `json:"deployedHeight"`
	LatestMintHeight  uint64         `json:"latestMintHeight"`
	DeployedTimestamp uint32         `json:"deployedTimestamp"`
}

// Balance is one (owner, tick) row. TransferableBalance never exceeds
// OverallBalance.
type Balance struct {
	Tick                string       `json:"tick"`
	OverallBalance      u128.Uint128 `json:"overallBalance"`
	TransferableBalance u128.Uint128 `json:"transferableBalance"`
}

// TransferableLog records an inscribed-but-unmoved transfer
// reservation.
type TransferableLog struct {
	InscriptionId     inscription.Id `json:"inscriptionId"`
	InscriptionNumber uint64         `json:"inscriptionNumber"`
	Amount            u128.Uint128   `json:"amount"`
	Tick              string         `json:"tick"`
	Owner             ScriptKey      `json:"owner"`
}

// TransferInfo is the inscription-id-keyed side record that lets a
// later movement of the inscription find its reservation.
type TransferInfo struct {
	Tick   string       `json:"tick"`
	Amount u128.Uint128 `json:"amount"`
}

// Record encoding is JSON throughout: these rows are read by the query
// layer and debugging tools far more often than they are written.

func EncodeRecord(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All record types marshal cleanly; an error here is a bug.
		panic(fmt.Sprintf("drc20: marshal record: %v", err))
	}
	return data
}

func DecodeRecord(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("drc20: corrupt record: %w", err)
	}
	return nil
}
