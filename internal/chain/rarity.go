package chain

// Rarity classifies a sat according to the standard ordinal rarity
// ladder: how many of a set of chain-wide coincidences line up with the
// sat's mint position.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
	RarityMythic
)

func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityUncommon:
		return "uncommon"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	case RarityMythic:
		return "mythic"
	default:
		return "unknown"
	}
}

// DifficultyAdjustmentInterval is the number of blocks between
// difficulty retargets. Dogecoin adjusts every block past its AuxPoW
// activation, but the indexer only needs this for rarity's "epic"
// coincidence, so a conservative legacy value is used.
const DifficultyAdjustmentInterval = 240

func rarityOf(s Sat) Rarity {
	height := s.Height()
	epochPos := s.EpochPosition()

	switch {
	case s.Third() != 0:
		return RarityCommon
	case !epochPos.IsZero():
		return RarityUncommon
	case uint64(height)%DifficultyAdjustmentInterval == 0 && height != 0:
		return RarityEpic
	case height == 0:
		return RarityMythic
	case height == s.Epoch().StartingHeight():
		return RarityRare
	default:
		return RarityLegendary
	}
}
