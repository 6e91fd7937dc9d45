package updater

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/rawblock/dogeindexer/internal/fetcher"
	"github.com/rawblock/dogeindexer/internal/store"
)

// MaxRecoverableReorg bounds how deep a rollback can reach. Anything
// deeper marks the database unrecoverable; the store keeps undo records
// for more blocks than this.
const MaxRecoverableReorg = 6

// checkReorg compares the incoming block's previous-hash link against
// the committed chain. A mismatch finds the common ancestor and rolls
// back to it; the caller then restarts the fetch pipeline from there.
func (u *Updater) checkReorg(ctx context.Context, result fetcher.Result) (bool, error) {
	height := uint32(result.Height)
	if height == 0 {
		return false, nil
	}

	var stored *chainhash.Hash
	err := u.store.View(func(tx *store.ReadTx) error {
		hash, ok, err := tx.BlockHash(height - 1)
		if err != nil {
			return err
		}
		if ok {
			stored = hash
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if stored == nil || *stored == result.Block.Header.PrevBlock {
		return false, nil
	}

	u.log.Warnw("chain diverged", "height", height, "stored", stored, "node", result.Block.Header.PrevBlock)

	common, depth, err := u.findCommonAncestor(ctx, height-1)
	if err != nil {
		return false, err
	}

	if depth > MaxRecoverableReorg {
		u.unrecoverable = true
		u.log.Errorw("reorg exceeds recoverable depth", "depth", depth, "max", MaxRecoverableReorg)
		return false, ErrUnrecoverableReorg
	}

	// Confirm undo records cover the whole rollback before touching
	// anything, so a partial unwind can never happen.
	for h := height - 1; h > common; h-- {
		ok, err := u.store.HasUndo(h)
		if err != nil {
			return false, err
		}
		if !ok {
			u.unrecoverable = true
			return false, fmt.Errorf("%w: no undo record for height %d", ErrUnrecoverableReorg, h)
		}
	}

	for h := height - 1; h > common; h-- {
		u.log.Infow("rolling back block", "height", h)
		if err := u.store.RollbackBlock(h); err != nil {
			return false, err
		}
	}

	if u.metrics != nil {
		u.metrics.ReorgDepth.Observe(float64(depth))
	}
	u.log.Infow("reorg handled", "commonAncestor", common, "depth", depth)
	return true, nil
}

// findCommonAncestor walks back from tip until the stored hash matches
// the node's active chain.
func (u *Updater) findCommonAncestor(ctx context.Context, tip uint32) (uint32, uint32, error) {
	for h := tip; ; h-- {
		var stored *chainhash.Hash
		err := u.store.View(func(tx *store.ReadTx) error {
			hash, ok, err := tx.BlockHash(h)
			if err != nil {
				return err
			}
			if ok {
				stored = hash
			}
			return nil
		})
		if err != nil {
			return 0, 0, err
		}
		if stored == nil {
			return 0, 0, fmt.Errorf("updater: no stored hash at height %d during reorg walk", h)
		}

		nodeHash, err := u.client.GetBlockHash(ctx, int64(h))
		if err != nil {
			return 0, 0, err
		}
		if *nodeHash == *stored {
			return h, tip - h, nil
		}

		if h == 0 || tip-h > MaxRecoverableReorg {
			// Deep enough; report the depth without walking further.
			return h, tip - h + 1, nil
		}
	}
}
