package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/nodeclient"
)

// fakeClient serves a fixed-height chain from memory, no real RPC.
type fakeClient struct {
	tip int64
}

func (f *fakeClient) GetBlockCount(ctx context.Context) (int64, error) { return f.tip, nil }

func (f *fakeClient) GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	var h chainhash.Hash
	h[0] = byte(height)
	h[1] = byte(height >> 8)
	return &h, nil
}

func (f *fakeClient) GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error) {
	return &wire.MsgBlock{Header: wire.BlockHeader{Nonce: uint32(hash[0]) | uint32(hash[1])<<8}}, nil
}

func (f *fakeClient) GetRawTransaction(ctx context.Context, txid *chainhash.Hash) (*wire.MsgTx, error) {
	return wire.NewMsgTx(wire.TxVersion), nil
}

func (f *fakeClient) GetRawTransactionInfo(ctx context.Context, txid *chainhash.Hash) (*nodeclient.TxInfo, error) {
	return &nodeclient.TxInfo{}, nil
}

func (f *fakeClient) Shutdown() {}

var _ nodeclient.Client = (*fakeClient)(nil)

func TestRunDeliversHeightsInOrder(t *testing.T) {
	client := &fakeClient{tip: 20}
	f := New(client, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := f.Run(ctx, 0)

	var got []int64
	for r := range out {
		got = append(got, r.Height)
		if r.Height == 20 {
			cancel()
		}
	}

	for i, h := range got {
		if h != int64(i) {
			t.Fatalf("out of order delivery: got[%d] = %d, want %d", i, h, int64(i))
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	client := &fakeClient{tip: 1000}
	f := New(client, 2)

	ctx, cancel := context.WithCancel(context.Background())
	out := f.Run(ctx, 0)

	// Drain a handful then cancel; the channel must close promptly.
	for i := 0; i < 3; i++ {
		<-out
	}
	cancel()

	done := make(chan struct{})
	go func() {
		for range out {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetcher did not close its output channel after cancel")
	}
}
