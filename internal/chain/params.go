package chain

import "github.com/btcsuite/btcd/chaincfg"

// Params bundles the network-level constants the indexer needs beyond
// the epoch table: address encoding parameters and the activation
// heights of the two content protocols.
type Params struct {
	Net                    *chaincfg.Params
	FirstInscriptionHeight uint64
	FirstDuneHeight        uint64
}

// dogeNet adapts the btcd chain parameters to Dogecoin's address
// version bytes. Only the fields that address rendering touches are
// changed; consensus fields are never consulted by the indexer.
var dogeNet = func() chaincfg.Params {
	p := chaincfg.MainNetParams
	p.Name = "doge-mainnet"
	p.PubKeyHashAddrID = 0x1e
	p.ScriptHashAddrID = 0x16
	p.PrivateKeyID = 0x9e
	return p
}()

var dogeRegtestNet = func() chaincfg.Params {
	p := chaincfg.RegressionNetParams
	p.Name = "doge-regtest"
	p.PubKeyHashAddrID = 0x6f
	p.ScriptHashAddrID = 0xc4
	return p
}()

// MainNet is the production parameter set.
var MainNet = Params{
	Net:                    &dogeNet,
	FirstInscriptionHeight: 4_600_000,
	FirstDuneHeight:        5_084_000,
}

// Regtest indexes every block from genesis; tests use it.
var Regtest = Params{
	Net:                    &dogeRegtestNet,
	FirstInscriptionHeight: 0,
	FirstDuneHeight:        0,
}

// ParamsForNetwork maps a config network name to its parameter set,
// defaulting to mainnet.
func ParamsForNetwork(name string) Params {
	switch name {
	case "regtest":
		return Regtest
	default:
		return MainNet
	}
}
