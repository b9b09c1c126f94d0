package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
)

// Backend is the subset of the JSON-RPC client used here. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Client submits operator transactions and reads contract state
type Client interface {
	Operator() common.Address
	Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitConfirmed(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// CallBatch runs read-only calls, sharing JSON-RPC round trips when the transport allows it
	CallBatch(ctx context.Context, calls []ViewCall) error
	HasCode(ctx context.Context, account common.Address) (bool, error)
	Close()
}

// ViewCall is one read-only contract call. Result receives the decoded return value.
type ViewCall struct {
	To     common.Address
	Func   *w3.Func
	Args   []any
	Result any
}

// maxBatchCalls caps the number of calls in one JSON-RPC batch
const maxBatchCalls = 100

// lookupTimeout bounds the pool lookup made after a confirmation timeout
const lookupTimeout = 10 * time.Second

type Options struct {
	Confirmations uint64
	TxTimeout     time.Duration
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Confirmations == 0 {
		o.Confirmations = 1
	}
	if o.TxTimeout <= 0 {
		o.TxTimeout = 2 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

type evmClient struct {
	backend Backend
	queue   *SubmissionQueue
	opts    Options
	closer  func()
	// batch is nil when the backend is not a JSON-RPC connection
	batch *w3.Client
}

// NewClient wraps backend with a submission queue for key
func NewClient(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, opts Options) (Client, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return &evmClient{
		backend: backend,
		queue:   NewSubmissionQueue(backend, key, chainID),
		opts:    opts.withDefaults(),
	}, nil
}

// Dial connects to rpcURL and signs with the hex-encoded operator key
func Dial(ctx context.Context, rpcURL, privateKeyHex string, opts Options) (Client, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	client, err := NewClient(ctx, rpc, key, opts)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	evm := client.(*evmClient)
	evm.closer = rpc.Close
	evm.batch = w3.NewClient(rpc.Client())
	return client, nil
}

func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}
	return key, nil
}

func (c *evmClient) Operator() common.Address {
	return c.queue.From()
}

func (c *evmClient) Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	return c.queue.Submit(ctx, to, data)
}

// WaitConfirmed polls for the receipt until it has the configured number of
// confirmations or the transaction timeout elapses. A transaction the node
// does not know about at that point is reported as dropped.
func (c *evmClient) WaitConfirmed(parent context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(parent, c.opts.TxTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, reverted(txHash)
			}
			head, err := c.backend.BlockNumber(ctx)
			if err == nil && receipt.BlockNumber != nil && head+1 >= receipt.BlockNumber.Uint64()+c.opts.Confirmations {
				return receipt, nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			log.Printf("[chain] receipt lookup for %s failed: %v", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, c.expired(parent, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *evmClient) expired(parent context.Context, txHash common.Hash, cause error) error {
	if parent.Err() != nil {
		return timedOut(txHash, cause)
	}
	ctx, cancel := context.WithTimeout(parent, lookupTimeout)
	defer cancel()

	_, _, err := c.backend.TransactionByHash(ctx, txHash)
	if !errors.Is(err, ethereum.NotFound) {
		return timedOut(txHash, cause)
	}
	if receipt, err := c.backend.TransactionReceipt(ctx, txHash); err == nil && receipt != nil {
		return timedOut(txHash, cause)
	}
	log.Printf("[chain] tx %s is unknown to the node", txHash.Hex())
	return dropped(txHash)
}

func (c *evmClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.Operator(), To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyError("call", err)
	}
	return out, nil
}

func (c *evmClient) CallBatch(ctx context.Context, calls []ViewCall) error {
	if c.batch == nil {
		for _, call := range calls {
			if err := c.callView(ctx, call); err != nil {
				return err
			}
		}
		return nil
	}

	for start := 0; start < len(calls); start += maxBatchCalls {
		end := min(start+maxBatchCalls, len(calls))
		callers := make([]w3types.RPCCaller, 0, end-start)
		for _, call := range calls[start:end] {
			callers = append(callers, eth.CallFunc(call.To, call.Func, call.Args...).Returns(call.Result))
		}
		if err := c.batch.CallCtx(ctx, callers...); err != nil {
			return classifyError("batch call", err)
		}
	}
	return nil
}

func (c *evmClient) callView(ctx context.Context, call ViewCall) error {
	input, err := call.Func.EncodeArgs(call.Args...)
	if err != nil {
		return err
	}
	output, err := c.Call(ctx, call.To, input)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", call.Func.Signature, err)
	}
	if err := call.Func.DecodeReturns(output, call.Result); err != nil {
		return fmt.Errorf("failed to decode %s: %w", call.Func.Signature, err)
	}
	return nil
}

func (c *evmClient) HasCode(ctx context.Context, account common.Address) (bool, error) {
	code, err := c.backend.CodeAt(ctx, account, nil)
	if err != nil {
		return false, classifyError("get code", err)
	}
	return len(code) > 0, nil
}

func (c *evmClient) Close() {
	c.queue.Close()
	if c.closer != nil {
		c.closer()
	}
}
