package store

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/ordinals"
	"github.com/rawblock/dogeindexer/internal/u128"
)

// Table prefixes. Badger has no table concept; the first key byte is
// the table. Changing any prefix or key layout is a schema bump.
const (
	prefixMeta byte = iota
	prefixHeightToBlockHash
	prefixOutpointToSatRanges
	prefixOutpointToValue
	prefixOutpointToDuneBalances
	prefixDuneToDuneId
	prefixDuneIdToDuneEntry
	prefixInscriptionIdToSatpoint
	prefixSatpointToInscriptionId
	prefixInscriptionIdToEntry
	prefixInscriptionNumberToId
	prefixSatToInscriptionId
	prefixInscriptionIdToDune
	prefixPartialTxidToTxids
	prefixInscriptionTxidToTx
	prefixDrc20Token
	prefixDrc20Balances
	prefixDrc20TransferableLog
	prefixDrc20InscribeTransfer
	prefixStatisticToCount
	prefixUndoLog
	prefixInscriptionIdToTxids
)

func keyHeight(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = prefixHeightToBlockHash
	binary.BigEndian.PutUint32(key[1:], height)
	return key
}

func keyOutpoint(prefix byte, op wire.OutPoint) []byte {
	enc := ordinals.EncodeOutPoint(op)
	return append([]byte{prefix}, enc[:]...)
}

func keyDune(dune dunes.Dune) []byte {
	key := make([]byte, 17)
	key[0] = prefixDuneToDuneId
	binary.BigEndian.PutUint64(key[1:9], dune.N.Hi)
	binary.BigEndian.PutUint64(key[9:17], dune.N.Lo)
	return key
}

func keyDuneId(id dunes.DuneId) []byte {
	key := make([]byte, 13)
	key[0] = prefixDuneIdToDuneEntry
	binary.BigEndian.PutUint64(key[1:9], id.Height)
	binary.BigEndian.PutUint32(key[9:13], id.Index)
	return key
}

func keyInscriptionId(prefix byte, id inscription.Id) []byte {
	enc := id.Encode()
	return append([]byte{prefix}, enc[:]...)
}

func keySatPoint(sp ordinals.SatPoint) []byte {
	enc := sp.Encode()
	return append([]byte{prefixSatpointToInscriptionId}, enc[:]...)
}

func keyInscriptionNumber(number uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefixInscriptionNumberToId
	binary.BigEndian.PutUint64(key[1:], number)
	return key
}

func keySat(sat u128.Uint128) []byte {
	key := make([]byte, 17)
	key[0] = prefixSatToInscriptionId
	binary.BigEndian.PutUint64(key[1:9], sat.Hi)
	binary.BigEndian.PutUint64(key[9:17], sat.Lo)
	return key
}

func keyTxid(prefix byte, txid chainhash.Hash) []byte {
	return append([]byte{prefix}, txid[:]...)
}

func keyString(prefix byte, s string) []byte {
	return append([]byte{prefix}, s...)
}

func keyStatistic(stat Statistic) []byte {
	key := make([]byte, 9)
	key[0] = prefixStatisticToCount
	binary.BigEndian.PutUint64(key[1:], uint64(stat))
	return key
}

func keyUndo(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = prefixUndoLog
	binary.BigEndian.PutUint32(key[1:], height)
	return key
}
