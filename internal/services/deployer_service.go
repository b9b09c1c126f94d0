package services

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
)

type DeployParams struct {
	Kind             chain.CollectionKind
	Name             string
	Symbol           string
	Description      string
	BaseURI          string
	MaxSupply        int
	MintPrice        *big.Int
	RoyaltyRecipient common.Address
	RoyaltyBps       uint16
}

type DeployResult struct {
	Address common.Address
	TxHash  common.Hash
}

// DeployerService creates collections through the factory and hands ownership over
type DeployerService interface {
	Operator() common.Address
	// Deploy submits the factory call and waits for the collection address
	Deploy(ctx context.Context, params DeployParams) (*DeployResult, error)
	SubmitDeploy(ctx context.Context, params DeployParams) (common.Hash, error)
	// ResumeDeploy waits for a submitted factory call and verifies the new collection.
	// A non-nil result carries the address even when verification fails.
	ResumeDeploy(ctx context.Context, kind chain.CollectionKind, txHash common.Hash) (*DeployResult, error)
	// TransferOwnership submits the transfer. It returns a zero hash when newOwner already owns the contract.
	TransferOwnership(ctx context.Context, contract, newOwner common.Address) (common.Hash, error)
	// ConfirmOwnership waits for txHash, when set, and re-reads owner()
	ConfirmOwnership(ctx context.Context, contract common.Address, txHash common.Hash, newOwner common.Address) error
	Owner(ctx context.Context, contract common.Address) (common.Address, error)
}

type deployerService struct {
	client    chain.Client
	factories map[chain.CollectionKind]common.Address
}

func NewDeployerService(client chain.Client, factories map[chain.CollectionKind]common.Address) DeployerService {
	return &deployerService{client: client, factories: factories}
}

func (s *deployerService) Operator() common.Address {
	return s.client.Operator()
}

func (s *deployerService) Deploy(ctx context.Context, params DeployParams) (*DeployResult, error) {
	txHash, err := s.SubmitDeploy(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.ResumeDeploy(ctx, params.Kind, txHash)
}

func (s *deployerService) SubmitDeploy(ctx context.Context, params DeployParams) (common.Hash, error) {
	factory, err := s.factory(ctx, params.Kind)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := chain.EncodeCreateCollection(chain.CreateParams{
		Kind:             params.Kind,
		Name:             params.Name,
		Symbol:           params.Symbol,
		Description:      params.Description,
		BaseURI:          params.BaseURI,
		MaxSupply:        big.NewInt(int64(params.MaxSupply)),
		MintPrice:        params.MintPrice,
		RoyaltyRecipient: params.RoyaltyRecipient,
		RoyaltyBps:       params.RoyaltyBps,
	})
	if err != nil {
		return common.Hash{}, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidRequest, "failed to encode createCollection", err)
	}

	txHash, err := s.client.Transact(ctx, factory, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit createCollection: %w", err)
	}
	log.Printf("[deployer] submitted %s collection %q (tx %s)", params.Kind, params.Name, txHash.Hex())
	return txHash, nil
}

func (s *deployerService) ResumeDeploy(ctx context.Context, kind chain.CollectionKind, txHash common.Hash) (*DeployResult, error) {
	factory, ok := s.factories[kind]
	if !ok {
		return nil, factoryNotDeployed(kind)
	}

	receipt, err := s.client.WaitConfirmed(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("createCollection not confirmed: %w", err)
	}

	address, ok := chain.FindDeployedCollection(kind, factory, receipt.Logs)
	if !ok {
		return nil, apperrors.Wrap(apperrors.KindInvariantViolation, apperrors.CodeEventNotFound,
			fmt.Sprintf("no CollectionDeployed event in receipt of %s", txHash.Hex()), nil)
	}
	result := &DeployResult{Address: address, TxHash: txHash}

	hasCode, err := s.client.HasCode(ctx, address)
	if err != nil {
		return result, err
	}
	if !hasCode {
		return result, apperrors.Invariant(apperrors.CodeEventNotFound, fmt.Sprintf("no contract code at %s", address.Hex()))
	}

	owner, err := s.Owner(ctx, address)
	if err != nil {
		return result, err
	}
	if owner != s.client.Operator() {
		return result, fmt.Errorf("collection %s owned by %s: %w", address.Hex(), owner.Hex(), apperrors.ErrOwnerMismatch)
	}

	log.Printf("[deployer] collection deployed at %s", address.Hex())
	return result, nil
}

func (s *deployerService) TransferOwnership(ctx context.Context, contract, newOwner common.Address) (common.Hash, error) {
	owner, err := s.Owner(ctx, contract)
	if err != nil {
		return common.Hash{}, err
	}
	if owner == newOwner {
		return common.Hash{}, nil
	}
	if owner != s.client.Operator() {
		return common.Hash{}, fmt.Errorf("collection %s owned by %s: %w", contract.Hex(), owner.Hex(), apperrors.ErrOwnerMismatch)
	}

	data, err := chain.EncodeTransferOwnership(newOwner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transferOwnership: %w", err)
	}
	txHash, err := s.client.Transact(ctx, contract, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit transferOwnership: %w", err)
	}
	return txHash, nil
}

func (s *deployerService) ConfirmOwnership(ctx context.Context, contract common.Address, txHash common.Hash, newOwner common.Address) error {
	if txHash != (common.Hash{}) {
		if _, err := s.client.WaitConfirmed(ctx, txHash); err != nil {
			return fmt.Errorf("transferOwnership not confirmed: %w", err)
		}
	}

	owner, err := s.Owner(ctx, contract)
	if err != nil {
		return err
	}
	if owner != newOwner {
		return fmt.Errorf("collection %s owned by %s, expected %s: %w", contract.Hex(), owner.Hex(), newOwner.Hex(), apperrors.ErrOwnershipTransferMismatch)
	}
	log.Printf("[deployer] ownership of %s transferred to %s", contract.Hex(), newOwner.Hex())
	return nil
}

func (s *deployerService) Owner(ctx context.Context, contract common.Address) (common.Address, error) {
	return chain.Owner(ctx, s.client, contract)
}

func (s *deployerService) factory(ctx context.Context, kind chain.CollectionKind) (common.Address, error) {
	factory, ok := s.factories[kind]
	if !ok || factory == (common.Address{}) {
		return common.Address{}, factoryNotDeployed(kind)
	}
	hasCode, err := s.client.HasCode(ctx, factory)
	if err != nil {
		return common.Address{}, err
	}
	if !hasCode {
		return common.Address{}, factoryNotDeployed(kind)
	}
	return factory, nil
}

func factoryNotDeployed(kind chain.CollectionKind) error {
	return apperrors.New(apperrors.KindChainFatal, apperrors.CodeFactoryNotDeployed,
		fmt.Sprintf("no %s factory deployed at the configured address", kind))
}
