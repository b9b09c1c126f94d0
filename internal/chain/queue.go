package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// gas estimate is padded by gasMarginPercent
const gasMarginPercent = 20

var ErrQueueClosed = errors.New("submission queue closed")

type submitRequest struct {
	ctx  context.Context
	to   common.Address
	data []byte
	resp chan submitResponse
}

type submitResponse struct {
	hash common.Hash
	err  error
}

// SubmissionQueue serializes every transaction signed by one key through a
// single goroutine which owns the nonce.
type SubmissionQueue struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	signer  types.Signer

	requests  chan submitRequest
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// only touched by run
	nonce    uint64
	hasNonce bool
}

func NewSubmissionQueue(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) *SubmissionQueue {
	q := &SubmissionQueue{
		backend:  backend,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		signer:   types.LatestSignerForChainID(chainID),
		requests: make(chan submitRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SubmissionQueue) From() common.Address {
	return q.from
}

// Submit signs and broadcasts a call to `to`. It returns once the node accepted
// the transaction, not when it is mined. When the send fails without a clear
// rejection the error is a *PendingError carrying the signed hash.
func (q *SubmissionQueue) Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	req := submitRequest{ctx: ctx, to: to, data: data, resp: make(chan submitResponse, 1)}

	select {
	case q.requests <- req:
	case <-q.quit:
		return common.Hash{}, ErrQueueClosed
	case <-ctx.Done():
		return common.Hash{}, classifyError("submit", ctx.Err())
	}

	select {
	case resp := <-req.resp:
		return resp.hash, resp.err
	case <-q.done:
		return common.Hash{}, ErrQueueClosed
	}
}

// Close stops the worker and waits for it to exit
func (q *SubmissionQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.quit)
	})
	<-q.done
}

func (q *SubmissionQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case req := <-q.requests:
			hash, err := q.send(req)
			req.resp <- submitResponse{hash: hash, err: err}
		}
	}
}

func (q *SubmissionQueue) send(req submitRequest) (common.Hash, error) {
	ctx := req.ctx
	if err := ctx.Err(); err != nil {
		return common.Hash{}, classifyError("submit", err)
	}

	if !q.hasNonce {
		nonce, err := q.backend.PendingNonceAt(ctx, q.from)
		if err != nil {
			return common.Hash{}, classifyError("fetch nonce", err)
		}
		q.nonce = nonce
		q.hasNonce = true
	}

	to := req.to
	gas, err := q.backend.EstimateGas(ctx, ethereum.CallMsg{From: q.from, To: &to, Data: req.data})
	if err != nil {
		return common.Hash{}, classifyError("estimate gas", err)
	}
	gas += gas * gasMarginPercent / 100

	tipCap, err := q.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, classifyError("suggest tip", err)
	}
	head, err := q.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, classifyError("fetch head", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   q.chainID,
		Nonce:     q.nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      req.data,
	})
	signed, err := types.SignTx(tx, q.signer, q.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	hash := signed.Hash()
	if err := q.backend.SendTransaction(ctx, signed); err != nil {
		switch {
		case alreadyKnown(err):
			log.Printf("[chain] tx %s already known to the node", hash.Hex())
		case sendRejected(err):
			// the node's view of the nonce is authoritative after a failed send
			q.hasNonce = false
			log.Printf("[chain] send failed for nonce %d: %v", q.nonce, err)
			return common.Hash{}, classifyError("send transaction", err)
		default:
			// the node may have accepted it; the hash is the only handle left
			q.hasNonce = false
			log.Printf("[chain] send of %s (nonce %d) not acknowledged: %v", hash.Hex(), q.nonce, err)
			return hash, &PendingError{TxHash: hash, Err: classifyError("send transaction", err)}
		}
	}

	q.nonce++
	return hash, nil
}
