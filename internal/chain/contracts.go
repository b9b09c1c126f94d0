package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

// CollectionKind selects the factory and collection ABI
type CollectionKind string

const (
	KindERC721  CollectionKind = "erc721"
	KindERC1155 CollectionKind = "erc1155"
)

func (k CollectionKind) Valid() bool {
	return k == KindERC721 || k == KindERC1155
}

var (
	funcCreateERC1155 = w3.MustNewFunc(
		"createCollection(string baseUri,string name,string symbol,string description,uint256 mintPrice,uint256 maxSupply,address royaltyRecipient,uint96 royaltyBps)",
		"address",
	)
	funcCreateERC721 = w3.MustNewFunc(
		"createCollection(string name,string symbol,string baseURI,uint256 maxSupply,uint256 mintPrice,uint96 royaltyBps,address royaltyReceiver)",
		"address",
	)
	eventDeployedERC1155 = w3.MustNewEvent(
		"CollectionDeployed(address indexed creator,address collection)",
	)
	eventDeployedERC721 = w3.MustNewEvent(
		"CollectionDeployed(address indexed creator,address collection,string name,string symbol,uint256 mintPrice,uint96 royaltyBps,address royaltyReceiver)",
	)

	funcAddValidCodes     = w3.MustNewFunc("addValidCodes(bytes32[] hashes)", "")
	funcValidCodes        = w3.MustNewFunc("validCodes(bytes32 hash)", "bool")
	funcUsedCodes         = w3.MustNewFunc("usedCodes(bytes32 hash)", "bool")
	funcOwner             = w3.MustNewFunc("owner()", "address")
	funcTransferOwnership = w3.MustNewFunc("transferOwnership(address newOwner)", "")
)

// CreateParams are the factory arguments for a new collection
type CreateParams struct {
	Kind             CollectionKind
	Name             string
	Symbol           string
	Description      string
	BaseURI          string
	MaxSupply        *big.Int
	MintPrice        *big.Int
	RoyaltyRecipient common.Address
	RoyaltyBps       uint16
}

// EncodeCreateCollection builds factory calldata for the requested kind
func EncodeCreateCollection(p CreateParams) ([]byte, error) {
	mintPrice := p.MintPrice
	if mintPrice == nil {
		mintPrice = new(big.Int)
	}
	bps := big.NewInt(int64(p.RoyaltyBps))

	switch p.Kind {
	case KindERC1155:
		return funcCreateERC1155.EncodeArgs(p.BaseURI, p.Name, p.Symbol, p.Description, mintPrice, p.MaxSupply, p.RoyaltyRecipient, bps)
	case KindERC721:
		return funcCreateERC721.EncodeArgs(p.Name, p.Symbol, p.BaseURI, p.MaxSupply, mintPrice, bps, p.RoyaltyRecipient)
	default:
		return nil, fmt.Errorf("unsupported collection kind %q", p.Kind)
	}
}

func EncodeAddValidCodes(hashes []common.Hash) ([]byte, error) {
	return funcAddValidCodes.EncodeArgs(hashes)
}

func EncodeTransferOwnership(newOwner common.Address) ([]byte, error) {
	return funcTransferOwnership.EncodeArgs(newOwner)
}

// DecodeDeployedCollection decodes a single log. It reports false for logs that
// are not a CollectionDeployed event emitted by factory.
func DecodeDeployedCollection(kind CollectionKind, factory common.Address, log *types.Log) (common.Address, bool) {
	if log == nil || log.Address != factory || len(log.Topics) == 0 {
		return common.Address{}, false
	}

	var (
		creator    common.Address
		collection common.Address
		err        error
	)
	switch kind {
	case KindERC1155:
		if log.Topics[0] != eventDeployedERC1155.Topic0 {
			return common.Address{}, false
		}
		err = eventDeployedERC1155.DecodeArgs(log, &creator, &collection)
	case KindERC721:
		if log.Topics[0] != eventDeployedERC721.Topic0 {
			return common.Address{}, false
		}
		var (
			name, symbol string
			mintPrice    *big.Int
			royaltyBps   *big.Int
			receiver     common.Address
		)
		err = eventDeployedERC721.DecodeArgs(log, &creator, &collection, &name, &symbol, &mintPrice, &royaltyBps, &receiver)
	default:
		return common.Address{}, false
	}

	if err != nil || collection == (common.Address{}) {
		return common.Address{}, false
	}
	return collection, true
}

// FindDeployedCollection returns the first CollectionDeployed address among logs
func FindDeployedCollection(kind CollectionKind, factory common.Address, logs []*types.Log) (common.Address, bool) {
	for _, l := range logs {
		if addr, ok := DecodeDeployedCollection(kind, factory, l); ok {
			return addr, true
		}
	}
	return common.Address{}, false
}

// Owner reads owner() from an Ownable contract
func Owner(ctx context.Context, c Client, contract common.Address) (common.Address, error) {
	input, err := funcOwner.EncodeArgs()
	if err != nil {
		return common.Address{}, err
	}
	output, err := c.Call(ctx, contract, input)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call owner(): %w", err)
	}
	var owner common.Address
	if err := funcOwner.DecodeReturns(output, &owner); err != nil {
		return common.Address{}, fmt.Errorf("failed to decode owner(): %w", err)
	}
	return owner, nil
}

// IsValidCode reads validCodes(hash) from a collection
func IsValidCode(ctx context.Context, c Client, contract common.Address, hash common.Hash) (bool, error) {
	return callBool(ctx, c, contract, funcValidCodes, hash)
}

// ValidCodes reads validCodes for every hash, batching the reads where the client can
func ValidCodes(ctx context.Context, c Client, contract common.Address, hashes []common.Hash) ([]bool, error) {
	results := make([]bool, len(hashes))
	calls := make([]ViewCall, len(hashes))
	for i, hash := range hashes {
		calls[i] = ViewCall{To: contract, Func: funcValidCodes, Args: []any{hash}, Result: &results[i]}
	}
	if err := c.CallBatch(ctx, calls); err != nil {
		return nil, fmt.Errorf("failed to read validCodes: %w", err)
	}
	return results, nil
}

// IsUsedCode reads usedCodes(hash) from a collection
func IsUsedCode(ctx context.Context, c Client, contract common.Address, hash common.Hash) (bool, error) {
	return callBool(ctx, c, contract, funcUsedCodes, hash)
}

func callBool(ctx context.Context, c Client, contract common.Address, fn *w3.Func, hash common.Hash) (bool, error) {
	input, err := fn.EncodeArgs(hash)
	if err != nil {
		return false, err
	}
	output, err := c.Call(ctx, contract, input)
	if err != nil {
		return false, fmt.Errorf("failed to call %s: %w", fn.Signature, err)
	}
	var result bool
	if err := fn.DecodeReturns(output, &result); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", fn.Signature, err)
	}
	return result, nil
}
