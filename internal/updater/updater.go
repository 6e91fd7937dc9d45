// Package updater is the block-processing pipeline: it drains the
// fetcher, applies each block to every sub-index inside one write
// transaction, and unwinds committed blocks when the node's chain
// reorganizes.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/config"
	"github.com/rawblock/dogeindexer/internal/fetcher"
	"github.com/rawblock/dogeindexer/internal/logging"
	"github.com/rawblock/dogeindexer/internal/metrics"
	"github.com/rawblock/dogeindexer/internal/nodeclient"
	"github.com/rawblock/dogeindexer/internal/store"
)

// ErrUnrecoverableReorg means the chain diverged deeper than the
// rollback window; the database must be rebuilt.
var ErrUnrecoverableReorg = errors.New("updater: unrecoverable reorg")

// BlockEvent describes one committed block for subscribers.
type BlockEvent struct {
	Height uint32       `json:"height"`
	Hash   string       `json:"hash"`
	Txs    int          `json:"txs"`
	Drc20  []Drc20Event `json:"-"`
}

// Updater owns the indexing loop. It is the store's only writer.
type Updater struct {
	store   *store.Store
	client  nodeclient.Client
	params  chain.Params
	index   config.IndexConfig
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	// OnBlock, if set, is invoked after each commit. Called from the
	// indexing goroutine; implementations must not block.
	OnBlock func(BlockEvent)

	parallelism   int
	unrecoverable bool
}

// New builds an Updater. metrics may be nil.
func New(s *store.Store, client nodeclient.Client, params chain.Params, index config.IndexConfig, parallelism int, m *metrics.Metrics) *Updater {
	return &Updater{
		store:       s,
		client:      client,
		params:      params,
		index:       index,
		metrics:     m,
		log:         logging.For("updater"),
		parallelism: parallelism,
	}
}

// Run indexes until ctx is cancelled or an unrecoverable error
// surfaces. Each iteration of the outer loop owns one fetcher; a reorg
// tears the fetcher down, rolls back, and starts a fresh one.
func (u *Updater) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if u.unrecoverable {
			return ErrUnrecoverableReorg
		}

		next, err := u.nextHeight()
		if err != nil {
			return err
		}

		restart, err := u.runFetch(ctx, next)
		if err != nil {
			return err
		}
		if !restart {
			return ctx.Err()
		}
	}
}

// nextHeight is one past the highest committed block.
func (u *Updater) nextHeight() (int64, error) {
	var next int64
	err := u.store.View(func(tx *store.ReadTx) error {
		height, ok, err := tx.LatestHeight()
		if err != nil {
			return err
		}
		if ok {
			next = int64(height) + 1
		}
		return nil
	})
	return next, err
}

// runFetch drains one fetcher. Returns restart=true when the caller
// should rebuild the pipeline (after a handled reorg).
func (u *Updater) runFetch(ctx context.Context, start int64) (bool, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := fetcher.New(u.client, u.parallelism).Run(fetchCtx, start)

	for result := range results {
		reorged, err := u.checkReorg(ctx, result)
		if err != nil {
			return false, err
		}
		if reorged {
			// The fetcher is now pointed at stale heights; rebuild it.
			return true, nil
		}

		if err := u.indexBlock(ctx, uint32(result.Height), result.Hash, result.Block); err != nil {
			return false, err
		}
	}
	return false, nil
}

// indexBlock applies one block inside a single write transaction. On
// error the transaction aborts with no side effects.
func (u *Updater) indexBlock(ctx context.Context, height uint32, hash *chainhash.Hash, block *wire.MsgBlock) error {
	if len(block.Transactions) == 0 {
		return fmt.Errorf("updater: block %d has no transactions", height)
	}

	started := time.Now()

	// Transactions in this block resolve each other's scripts without
	// a node round-trip.
	blockTxs := make(map[chainhash.Hash]*wire.MsgTx, len(block.Transactions))
	for _, tx := range block.Transactions {
		blockTxs[tx.TxHash()] = tx
	}
	prevScript := func(op wire.OutPoint) ([]byte, error) {
		if tx, ok := blockTxs[op.Hash]; ok {
			if int(op.Index) >= len(tx.TxOut) {
				return nil, fmt.Errorf("updater: %s has no output %d", op.Hash, op.Index)
			}
			return tx.TxOut[op.Index].PkScript, nil
		}
		tx, err := u.client.GetRawTransaction(ctx, &op.Hash)
		if err != nil {
			return nil, err
		}
		if int(op.Index) >= len(tx.TxOut) {
			return nil, fmt.Errorf("updater: %s has no output %d", op.Hash, op.Index)
		}
		return tx.TxOut[op.Index].PkScript, nil
	}

	var event BlockEvent

	err := u.store.Update(func(tx *store.Tx) error {
		tx.TrackUndo(height)

		if err := tx.SetBlockHash(height, hash); err != nil {
			return err
		}

		h := chain.Height(height)
		timestamp := uint32(block.Header.Timestamp.Unix())

		satU := newSatUpdater(tx, h)

		var inscU *inscriptionUpdater
		var duneU *duneUpdater
		var err error
		if u.index.Inscriptions {
			if inscU, err = newInscriptionUpdater(tx, h, timestamp); err != nil {
				return err
			}
		}
		if u.index.Dunes {
			if duneU, err = newDuneUpdater(tx, u.params, h, timestamp); err != nil {
				return err
			}
		}
		var drcU *drc20Updater
		if u.index.Drc20 && u.index.Inscriptions {
			drcU = newDrc20Updater(tx, u.params, h, timestamp, prevScript)
		}

		// Dunestones apply in block order, coinbase included; it has no
		// spendable inputs but may still etch.
		if duneU != nil {
			if err := duneU.indexTransaction(0, block.Transactions[0]); err != nil {
				return err
			}
		}

		// Sat tracking always runs; the content protocols all key off
		// the satpoints it maintains. The coinbase settles last so the
		// block's fee streams are complete.
		for txIndex := 1; txIndex < len(block.Transactions); txIndex++ {
			msgTx := block.Transactions[txIndex]

			if err := satU.indexTransaction(txIndex, msgTx); err != nil {
				return err
			}

			if inscU != nil {
				inscriptionOps, err := inscU.indexTransaction(msgTx, satU.inputRanges[txIndex], false)
				if err != nil {
					return err
				}
				if drcU != nil {
					drcEvents, err := drcU.indexTransaction(msgTx, inscriptionOps)
					if err != nil {
						return err
					}
					event.Drc20 = append(event.Drc20, drcEvents...)
				}
			}

			if duneU != nil {
				if err := duneU.indexTransaction(txIndex, msgTx); err != nil {
					return err
				}
			}
		}

		coinbase := block.Transactions[0]
		if err := satU.indexCoinbase(coinbase); err != nil {
			return err
		}
		if inscU != nil {
			if _, err := inscU.indexTransaction(coinbase, nil, true); err != nil {
				return err
			}
		}

		if err := tx.IncrStatistic(store.StatTransactions, uint64(len(block.Transactions))); err != nil {
			return err
		}
		if err := tx.IncrStatistic(store.StatCommits, 1); err != nil {
			return err
		}
		return tx.PruneUndo(height)
	})
	if err != nil {
		return fmt.Errorf("updater: index block %d: %w", height, err)
	}

	elapsed := time.Since(started)
	if u.metrics != nil {
		u.metrics.BlocksIndexed.Inc()
		u.metrics.TxIndexed.Add(float64(len(block.Transactions)))
		u.metrics.WriteDuration.Observe(elapsed.Seconds())
	}

	if height%1000 == 0 {
		u.log.Infow("committed block", "height", height, "txs", len(block.Transactions), "took", elapsed)
	}

	if u.OnBlock != nil {
		event.Height = height
		event.Hash = hash.String()
		event.Txs = len(block.Transactions)
		u.OnBlock(event)
	}
	return nil
}
