// Package chain holds the satoshi numbering scheme: epochs, subsidies,
// heights, and sat rarity. The epoch table is a package-level value set
// once at startup and never mutated afterward.
package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rawblock/dogeindexer/internal/u128"
)

// CoinValue is the number of base units (koinu/satoshi-equivalent) per
// whole coin.
const CoinValue uint64 = 100_000_000

// EpochEntry describes one halving epoch: the height it starts at and the
// per-block subsidy (in base units) that holds from that height until the
// next epoch's starting height.
type EpochEntry struct {
	StartingHeight uint64
	Subsidy        uint64
}

// defaultEpochs mirrors Dogecoin's historical reward schedule: a fixed
// 1,000,000-coin block reward for the first 100,000 blocks, halving every
// 100,000 blocks thereafter until block 600,000, after which the subsidy
// is fixed forever at 10,000 coins per block.
var defaultEpochs = []EpochEntry{
	{StartingHeight: 0, Subsidy: 1_000_000 * CoinValue},
	{StartingHeight: 100_000, Subsidy: 500_000 * CoinValue},
	{StartingHeight: 200_000, Subsidy: 250_000 * CoinValue},
	{StartingHeight: 300_000, Subsidy: 125_000 * CoinValue},
	{StartingHeight: 400_000, Subsidy: 62_500 * CoinValue},
	{StartingHeight: 500_000, Subsidy: 31_250 * CoinValue},
	{StartingHeight: 600_000, Subsidy: 10_000 * CoinValue},
}

// epochTable is the active, immutable-after-load epoch schedule along with
// the cumulative starting sat for each epoch (epochStartSats[i] is the
// first sat number minted in epoch i).
var (
	epochTable     = append([]EpochEntry(nil), defaultEpochs...)
	epochStartSats = computeStartingSats(epochTable)
)

func computeStartingSats(epochs []EpochEntry) []Sat {
	sats := make([]Sat, len(epochs))
	running := u128.Zero
	sats[0] = Sat{n: u128.Zero}
	for i := 1; i < len(epochs); i++ {
		blocks := epochs[i].StartingHeight - epochs[i-1].StartingHeight
		delta, overflow := u128.FromUint64(blocks).MulUint64(epochs[i-1].Subsidy)
		if overflow {
			delta = u128.Max
		}
		running = running.AddChecked(delta)
		sats[i] = Sat{n: running}
	}
	return sats
}

// LoadEpochTable replaces the package-level epoch schedule from a JSON file
// of the form `[{"startingHeight":0,"subsidy":100000000000000}, ...]`,
// sorted ascending by startingHeight. Must be called before any indexing
// begins; it is not safe to call concurrently with lookups.
func LoadEpochTable(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("chain: read epoch table %s: %w", path, err)
	}
	var entries []EpochEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("chain: parse epoch table %s: %w", path, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("chain: epoch table %s is empty", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartingHeight < entries[j].StartingHeight })
	epochTable = entries
	epochStartSats = computeStartingSats(epochTable)
	return nil
}

// Epoch is an index into the epoch table.
type Epoch uint32

// EpochCount returns the number of configured epochs.
func EpochCount() int { return len(epochTable) }

// EpochFromHeight returns the epoch active at height.
func EpochFromHeight(height Height) Epoch {
	// Binary search for the last entry whose StartingHeight <= height.
	idx := sort.Search(len(epochTable), func(i int) bool {
		return epochTable[i].StartingHeight > uint64(height)
	})
	if idx == 0 {
		return 0
	}
	return Epoch(idx - 1)
}

// EpochFromSat returns the epoch that minted sat.
func EpochFromSat(sat Sat) Epoch {
	idx := sort.Search(len(epochStartSats), func(i int) bool {
		return epochStartSats[i].Cmp(sat) > 0
	})
	if idx == 0 {
		return 0
	}
	return Epoch(idx - 1)
}

// StartingHeight returns the first height at which this epoch's subsidy
// applies.
func (e Epoch) StartingHeight() Height {
	if int(e) >= len(epochTable) {
		return Height(epochTable[len(epochTable)-1].StartingHeight)
	}
	return Height(epochTable[e].StartingHeight)
}

// StartingSat returns the first sat number minted in this epoch.
func (e Epoch) StartingSat() Sat {
	if int(e) >= len(epochStartSats) {
		return epochStartSats[len(epochStartSats)-1]
	}
	return epochStartSats[e]
}

// Subsidy returns the per-block subsidy, in base units, for this epoch.
func (e Epoch) Subsidy() uint64 {
	if int(e) >= len(epochTable) {
		return epochTable[len(epochTable)-1].Subsidy
	}
	return epochTable[e].Subsidy
}

// Subsidy returns the coinbase subsidy due at height, per the active epoch
// table.
func Subsidy(height Height) uint64 {
	return EpochFromHeight(height).Subsidy()
}
