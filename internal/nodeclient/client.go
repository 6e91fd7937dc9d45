// Package nodeclient wraps the upstream full node's RPC interface as an
// opaque source of blocks, block hashes, and raw transactions.
package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rawblock/dogeindexer/internal/logging"
)

// ErrNotFound is the sentinel the rest of the indexer checks for
// instead of inspecting RPC error codes directly. classifyErr maps any
// RPC error with code -8 or a message ending in "not found" onto it.
var ErrNotFound = errors.New("nodeclient: not found")

// TxInfo mirrors the subset of get_raw_transaction_info the updater
// needs when falling back to the node for an input it hasn't indexed
// yet.
type TxInfo struct {
	BlockHash     *chainhash.Hash
	Confirmations int64
	InActiveChain bool
}

// Client is the interface the rest of the indexer depends on; production
// code gets *RPCClient, tests can substitute a fake.
type Client interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash, error)
	GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error)
	GetRawTransaction(ctx context.Context, txid *chainhash.Hash) (*wire.MsgTx, error)
	GetRawTransactionInfo(ctx context.Context, txid *chainhash.Hash) (*TxInfo, error)
	Shutdown()
}

// Config is the dial target for the upstream node. Connection pooling,
// retries, and the wire protocol itself are this package's concern, not
// internal/config's.
type Config struct {
	Host string
	User string
	Pass string
	TLS  bool
}

// RPCClient is the btcd rpcclient-backed Client implementation.
type RPCClient struct {
	rpc *rpcclient.Client
	log *zap.SugaredLogger
}

// NewRPCClient dials the upstream node. It verifies the connection with
// a get_block_count call before returning.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   !cfg.TLS,
	}

	log := logging.For("nodeclient")
	log.Infow("connecting to node RPC", "host", cfg.Host)

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	if _, err := client.GetBlockCount(); err != nil {
		client.Shutdown()
		return nil, err
	}

	return &RPCClient{rpc: client, log: log}, nil
}

func (c *RPCClient) Shutdown() { c.rpc.Shutdown() }

// withRetry runs op with exponential backoff, classifying not-found
// errors out of the retry loop immediately since retrying them can
// never help.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *RPCClient) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	err := withRetry(ctx, func() error {
		v, err := c.rpc.GetBlockCount()
		if err != nil {
			return classifyErr(err)
		}
		count = v
		return nil
	})
	return count, err
}

func (c *RPCClient) GetBlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := withRetry(ctx, func() error {
		h, err := c.rpc.GetBlockHash(height)
		if err != nil {
			return classifyErr(err)
		}
		hash = h
		return nil
	})
	return hash, err
}

func (c *RPCClient) GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error) {
	var block *wire.MsgBlock
	err := withRetry(ctx, func() error {
		b, err := c.rpc.GetBlock(hash)
		if err != nil {
			return classifyErr(err)
		}
		block = b
		return nil
	})
	return block, err
}

func (c *RPCClient) GetRawTransaction(ctx context.Context, txid *chainhash.Hash) (*wire.MsgTx, error) {
	var tx *wire.MsgTx
	err := withRetry(ctx, func() error {
		t, err := c.rpc.GetRawTransaction(txid)
		if err != nil {
			return classifyErr(err)
		}
		tx = t.MsgTx()
		return nil
	})
	return tx, err
}

// GetRawTransactionInfo calls get_raw_transaction_info via RawRequest;
// rpcclient has no typed wrapper for the verbose form this needs.
func (c *RPCClient) GetRawTransactionInfo(ctx context.Context, txid *chainhash.Hash) (*TxInfo, error) {
	var info *TxInfo
	err := withRetry(ctx, func() error {
		idParam, marshalErr := json.Marshal(txid.String())
		if marshalErr != nil {
			return marshalErr
		}
		verboseParam, marshalErr := json.Marshal(true)
		if marshalErr != nil {
			return marshalErr
		}

		raw, err := c.rpc.RawRequest("getrawtransaction", []json.RawMessage{idParam, verboseParam})
		if err != nil {
			return classifyErr(err)
		}

		var result struct {
			BlockHash     string `json:"blockhash"`
			Confirmations int64  `json:"confirmations"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return err
		}

		parsed := &TxInfo{Confirmations: result.Confirmations, InActiveChain: result.Confirmations > 0}
		if result.BlockHash != "" {
			h, err := chainhash.NewHashFromStr(result.BlockHash)
			if err != nil {
				return err
			}
			parsed.BlockHash = h
		}
		info = parsed
		return nil
	})
	return info, err
}

// classifyErr maps a btcjson RPC error with code -8, or any error
// whose message ends in "not found", onto ErrNotFound.
func classifyErr(err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == -8 {
			return ErrNotFound
		}
	}
	if strings.HasSuffix(strings.TrimSpace(err.Error()), "not found") {
		return ErrNotFound
	}
	return err
}

// PollInterval is how often the fetcher re-checks the chain tip once it
// has caught up, and how long it waits before retrying a failed batch;
// internal/fetcher reads it instead of choosing its own cadence.
const PollInterval = 5 * time.Second
