package chain

import "github.com/rawblock/dogeindexer/internal/u128"

// Height is a block height. Unlike Sat, heights fit comfortably in a
// uint64 for the life of any chain this indexer will see.
type Height uint64

// Subsidy returns the coinbase subsidy due at this height.
func (h Height) Subsidy() uint64 { return Subsidy(h) }

// StartingSat returns the first sat number minted at or after h, i.e.
// the starting sat of h's epoch plus however many sats were minted
// between the epoch's start and h.
func (h Height) StartingSat() Sat {
	epoch := EpochFromHeight(h)
	blocksIn := uint64(h) - uint64(epoch.StartingHeight())
	delta, _ := u128.FromUint64(blocksIn).MulUint64(epoch.Subsidy())
	sum, _ := epoch.StartingSat().n.Add(delta)
	return Sat{n: sum}
}

// Epoch returns the halving epoch active at h.
func (h Height) Epoch() Epoch { return EpochFromHeight(h) }
