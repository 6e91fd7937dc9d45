// Package fetcher is the block-download pipeline: it hides RPC latency
// behind a window of parallel requests while still delivering blocks to
// the updater in strict height order.
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/rawblock/dogeindexer/internal/logging"
	"github.com/rawblock/dogeindexer/internal/nodeclient"
)

// Result is one fetched (height, hash, block) triple.
type Result struct {
	Height int64
	Hash   *chainhash.Hash
	Block  *wire.MsgBlock
}

// Fetcher maintains up to Parallelism in-flight get_block_hash/get_block
// calls at a time, but only ever hands the updater blocks in ascending
// height order.
type Fetcher struct {
	client      nodeclient.Client
	parallelism int
	pollEvery   time.Duration
	log         *zap.SugaredLogger
}

// New builds a Fetcher. parallelism is clamped to at least 1.
func New(client nodeclient.Client, parallelism int) *Fetcher {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Fetcher{
		client:      client,
		parallelism: parallelism,
		pollEvery:   nodeclient.PollInterval,
		log:         logging.For("fetcher"),
	}
}

// Run starts fetching from startHeight and returns a channel of results
// in strictly ascending height order. The fetcher stops and closes the
// channel when ctx is cancelled; the updater cancels the context it
// handed Run once it stops reading.
func (f *Fetcher) Run(ctx context.Context, startHeight int64) <-chan Result {
	out := make(chan Result)
	go f.run(ctx, startHeight, out)
	return out
}

func (f *Fetcher) run(ctx context.Context, start int64, out chan<- Result) {
	defer close(out)

	next := start
	for {
		if ctx.Err() != nil {
			return
		}

		tip, err := f.client.GetBlockCount(ctx)
		if err != nil {
			f.log.Errorw("get_block_count failed", "err", err)
			if !f.sleep(ctx) {
				return
			}
			continue
		}

		if next > tip {
			if !f.sleep(ctx) {
				return
			}
			continue
		}

		end := next + int64(f.parallelism) - 1
		if end > tip {
			end = tip
		}

		batch, err := f.fetchBatch(ctx, next, end)
		if err != nil {
			f.log.Errorw("block fetch failed, retrying batch", "from", next, "to", end, "err", err)
			if !f.sleep(ctx) {
				return
			}
			continue
		}

		for _, r := range batch {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
		next = end + 1
	}
}

// fetchBatch fetches [from, to] in parallel, returning results in
// ascending height order, or the first error encountered. A partial
// failure discards the whole batch; the caller retries all of it rather
// than tracking which heights already succeeded, since get_block_hash
// and get_block are idempotent and cheap to repeat.
func (f *Fetcher) fetchBatch(ctx context.Context, from, to int64) ([]Result, error) {
	n := int(to - from + 1)
	results := make([]Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	sem := make(chan struct{}, f.parallelism)

	for h := from; h <= to; h++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(height int64) {
			defer wg.Done()
			defer func() { <-sem }()

			idx := height - from
			hash, err := f.client.GetBlockHash(ctx, height)
			if err != nil {
				errs[idx] = err
				return
			}
			block, err := f.client.GetBlock(ctx, hash)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = Result{Height: height, Hash: hash, Block: block}
		}(h)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (f *Fetcher) sleep(ctx context.Context) bool {
	t := time.NewTimer(f.pollEvery)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
