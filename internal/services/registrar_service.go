package services

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
)

const DefaultCommitmentBatchSize = 50

type RegisterRequest struct {
	Contract    common.Address
	Commitments []common.Hash
	// Resume skips commitments the registry already reports as valid
	Resume bool
	// OnSubmitted receives each batch hash before its confirmation is awaited.
	// An error stops the registration.
	OnSubmitted func(txHash common.Hash) error
}

type RegisterResult struct {
	TxHashes   []common.Hash
	Registered int
	Skipped    int
}

// RegistrarService registers code commitments on a collection's registry
type RegistrarService interface {
	// Register submits commitments in batches and waits for each batch to confirm.
	// The result is returned alongside an error so partial progress is not lost.
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	// AwaitPending waits for a previously submitted transaction instead of resubmitting it
	AwaitPending(ctx context.Context, txHash common.Hash) error
	Status(ctx context.Context, contract common.Address, commitment common.Hash) (valid bool, used bool, err error)
}

type registrarService struct {
	client    chain.Client
	batchSize int
}

func NewRegistrarService(client chain.Client, batchSize int) RegistrarService {
	if batchSize <= 0 {
		batchSize = DefaultCommitmentBatchSize
	}
	return &registrarService{client: client, batchSize: batchSize}
}

func (s *registrarService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	result := &RegisterResult{}

	todo := req.Commitments
	if req.Resume && len(req.Commitments) > 0 {
		valid, err := chain.ValidCodes(ctx, s.client, req.Contract, req.Commitments)
		if err != nil {
			return result, fmt.Errorf("failed to check registered commitments: %w", err)
		}
		todo = make([]common.Hash, 0, len(req.Commitments))
		for i, commitment := range req.Commitments {
			if valid[i] {
				result.Skipped++
				continue
			}
			todo = append(todo, commitment)
		}
	}

	for start := 0; start < len(todo); start += s.batchSize {
		end := start + s.batchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[start:end]

		data, err := chain.EncodeAddValidCodes(batch)
		if err != nil {
			return result, fmt.Errorf("failed to encode commitment batch: %w", err)
		}
		txHash, err := s.client.Transact(ctx, req.Contract, data)
		if pending, ok := chain.PendingTxHash(err); ok {
			log.Printf("[registrar] commitment batch %d sent as %s without acknowledgement", start/s.batchSize, pending.Hex())
			txHash, err = pending, nil
		}
		if err != nil {
			return result, fmt.Errorf("failed to submit commitment batch %d: %w", start/s.batchSize, err)
		}
		result.TxHashes = append(result.TxHashes, txHash)
		if req.OnSubmitted != nil {
			if err := req.OnSubmitted(txHash); err != nil {
				return result, err
			}
		}

		if _, err := s.client.WaitConfirmed(ctx, txHash); err != nil {
			return result, fmt.Errorf("commitment batch %d not confirmed: %w", start/s.batchSize, err)
		}
		result.Registered += len(batch)
		log.Printf("[registrar] registered %d/%d commitments on %s (tx %s)", result.Registered, len(todo), req.Contract.Hex(), txHash.Hex())
	}
	return result, nil
}

func (s *registrarService) AwaitPending(ctx context.Context, txHash common.Hash) error {
	if _, err := s.client.WaitConfirmed(ctx, txHash); err != nil {
		return fmt.Errorf("pending transaction not confirmed: %w", err)
	}
	return nil
}

func (s *registrarService) Status(ctx context.Context, contract common.Address, commitment common.Hash) (bool, bool, error) {
	valid, err := chain.IsValidCode(ctx, s.client, contract, commitment)
	if err != nil {
		return false, false, err
	}
	used, err := chain.IsUsedCode(ctx, s.client, contract, commitment)
	if err != nil {
		return false, false, err
	}
	return valid, used, nil
}
