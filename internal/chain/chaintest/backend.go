// Package chaintest provides an in-memory EVM backend that simulates the
// collection factories and collections for tests.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
)

const (
	MethodCreateCollection  = "createCollection"
	MethodTransferOwnership = "transferOwnership"
	MethodAddValidCodes     = "addValidCodes"

	DefaultChainID = 31337
)

var (
	tString   = mustType("string")
	tUint256  = mustType("uint256")
	tUint96   = mustType("uint96")
	tAddress  = mustType("address")
	tBytes32  = mustType("bytes32")
	tBytes32s = mustType("bytes32[]")
	tBool     = mustType("bool")

	sigCreateERC1155 = "createCollection(string,string,string,string,uint256,uint256,address,uint96)"
	sigCreateERC721  = "createCollection(string,string,string,uint256,uint256,uint96,address)"

	argsCreateERC1155 = abi.Arguments{{Type: tString}, {Type: tString}, {Type: tString}, {Type: tString}, {Type: tUint256}, {Type: tUint256}, {Type: tAddress}, {Type: tUint96}}
	argsCreateERC721  = abi.Arguments{{Type: tString}, {Type: tString}, {Type: tString}, {Type: tUint256}, {Type: tUint256}, {Type: tUint96}, {Type: tAddress}}
	argsAddress       = abi.Arguments{{Type: tAddress}}
	argsBytes32       = abi.Arguments{{Type: tBytes32}}
	argsBytes32s      = abi.Arguments{{Type: tBytes32s}}
	argsBool          = abi.Arguments{{Type: tBool}}
	argsERC721Event   = abi.Arguments{{Type: tAddress}, {Type: tString}, {Type: tString}, {Type: tUint256}, {Type: tUint96}, {Type: tAddress}}

	selCreateERC1155     = selector(sigCreateERC1155)
	selCreateERC721      = selector(sigCreateERC721)
	selTransferOwnership = selector("transferOwnership(address)")
	selAddValidCodes     = selector("addValidCodes(bytes32[])")
	selOwner             = selector("owner()")
	selValidCodes        = selector("validCodes(bytes32)")
	selUsedCodes         = selector("usedCodes(bytes32)")

	topicERC1155Deployed = crypto.Keccak256Hash([]byte("CollectionDeployed(address,address)"))
	topicERC721Deployed  = crypto.Keccak256Hash([]byte("CollectionDeployed(address,address,string,string,uint256,uint96,address)"))
	topicUnrelated       = crypto.Keccak256Hash([]byte("Initialized(uint64)"))

	errReverted = errors.New("execution reverted")
)

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// Collection is the simulated state of a deployed collection
type Collection struct {
	Kind        chain.CollectionKind
	Factory     common.Address
	Owner       common.Address
	CodeManager common.Address
	Name        string
	Symbol      string
	BaseURI     string
	MaxSupply   *big.Int
	Valid       map[common.Hash]bool
	Used        map[common.Hash]bool
}

// SentTx records an accepted transaction
type SentTx struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Nonce  uint64
	Method string
}

// Backend implements chain.Backend against simulated contracts
type Backend struct {
	mu sync.Mutex

	chainID     *big.Int
	signer      types.Signer
	head        uint64
	nonces      map[common.Address]uint64
	factories   map[common.Address]chain.CollectionKind
	collections map[common.Address]*Collection
	receipts    map[common.Hash]*types.Receipt
	txs         map[common.Hash]*types.Transaction
	held        map[common.Hash]bool
	sent        []SentTx

	// fault injection, each consumed by the next matching transaction
	sendErrs      []error
	ackErrs       []error
	revertNext    map[string]int
	dropNextEvent bool
	holdNext      int
	ownerOverride *common.Address
}

func NewBackend() *Backend {
	chainID := big.NewInt(DefaultChainID)
	return &Backend{
		chainID:     chainID,
		signer:      types.LatestSignerForChainID(chainID),
		head:        1,
		nonces:      make(map[common.Address]uint64),
		factories:   make(map[common.Address]chain.CollectionKind),
		collections: make(map[common.Address]*Collection),
		receipts:    make(map[common.Hash]*types.Receipt),
		txs:         make(map[common.Hash]*types.Transaction),
		held:        make(map[common.Hash]bool),
		revertNext:  make(map[string]int),
	}
}

// AddFactory deploys a simulated factory and returns its address
func (b *Backend) AddFactory(kind chain.CollectionKind) common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := crypto.CreateAddress(common.HexToAddress("0xfac7"), uint64(len(b.factories)))
	b.factories[addr] = kind
	return addr
}

// FailNextSend makes the next SendTransaction return err without mining
func (b *Backend) FailNextSend(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErrs = append(b.sendErrs, err)
}

// AcceptNextSendThenFail mines the next transaction but returns err to the
// sender, like a node that accepted it before the connection dropped
func (b *Backend) AcceptNextSendThenFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ackErrs = append(b.ackErrs, err)
}

// RevertNext mines the next call to method with a failed status
func (b *Backend) RevertNext(method string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revertNext[method]++
}

// DropNextEvent mines the next factory call without emitting CollectionDeployed
func (b *Backend) DropNextEvent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropNextEvent = true
}

// HoldNextReceipts mines the next n transactions but hides their receipts until Release
func (b *Backend) HoldNextReceipts(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdNext += n
}

// Release makes every held receipt visible
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held = make(map[common.Hash]bool)
}

// OverrideNextOwner makes the next transferOwnership set owner to addr instead
func (b *Backend) OverrideNextOwner(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ownerOverride = &addr
}

// Mine advances the head by n empty blocks
func (b *Backend) Mine(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head += n
}

func (b *Backend) Collection(addr common.Address) (Collection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[addr]
	if !ok {
		return Collection{}, false
	}
	cp := *c
	cp.Valid = make(map[common.Hash]bool, len(c.Valid))
	for k, v := range c.Valid {
		cp.Valid[k] = v
	}
	cp.Used = make(map[common.Hash]bool, len(c.Used))
	for k, v := range c.Used {
		cp.Used[k] = v
	}
	return cp, true
}

// MarkUsed simulates an on-chain mint consuming a code
func (b *Backend) MarkUsed(addr common.Address, hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.collections[addr]; ok {
		c.Used[hash] = true
	}
}

func (b *Backend) Sent() []SentTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SentTx(nil), b.sent...)
}

// SentCount counts accepted transactions calling method
func (b *Backend) SentCount(method string) int {
	n := 0
	for _, tx := range b.Sent() {
		if tx.Method == method {
			n++
		}
	}
	return n
}

func (b *Backend) Nonce(addr common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[addr]
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(b.head),
		BaseFee: big.NewInt(1_000_000_000),
	}, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 250_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		return err
	}

	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	expected := b.nonces[from]
	switch {
	case tx.Nonce() < expected:
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", expected, tx.Nonce())
	case tx.Nonce() > expected:
		return fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", expected, tx.Nonce())
	}
	if tx.To() == nil {
		return errors.New("contract creation not supported")
	}

	b.nonces[from]++
	b.head++

	method, logs, execErr := b.apply(from, *tx.To(), tx.Data())
	receipt := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.head),
		GasUsed:     tx.Gas(),
		Logs:        logs,
	}
	if execErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Logs = nil
	}
	for i, l := range receipt.Logs {
		l.TxHash = tx.Hash()
		l.BlockNumber = b.head
		l.Index = uint(i)
	}
	b.receipts[tx.Hash()] = receipt
	if b.holdNext > 0 {
		b.holdNext--
		b.held[tx.Hash()] = true
	}
	b.txs[tx.Hash()] = tx
	b.sent = append(b.sent, SentTx{Hash: tx.Hash(), From: from, To: *tx.To(), Nonce: tx.Nonce(), Method: method})

	if len(b.ackErrs) > 0 {
		err := b.ackErrs[0]
		b.ackErrs = b.ackErrs[1:]
		return err
	}
	return nil
}

func (b *Backend) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txs[txHash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, b.held[txHash], nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[txHash]
	if !ok || b.held[txHash] {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errReverted
	}
	c, ok := b.collections[*msg.To]
	if !ok {
		return nil, errReverted
	}

	sel, input := msg.Data[:4], msg.Data[4:]
	switch {
	case bytes.Equal(sel, selOwner):
		return argsAddress.Pack(c.Owner)
	case bytes.Equal(sel, selValidCodes):
		hash, err := unpackHash(input)
		if err != nil {
			return nil, err
		}
		return argsBool.Pack(c.Valid[hash])
	case bytes.Equal(sel, selUsedCodes):
		hash, err := unpackHash(input)
		if err != nil {
			return nil, err
		}
		return argsBool.Pack(c.Used[hash])
	}
	return nil, errReverted
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.factories[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	if _, ok := b.collections[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func unpackHash(input []byte) (common.Hash, error) {
	values, err := argsBytes32.Unpack(input)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(values[0].([32]byte)), nil
}

// apply executes a call against the simulated contracts; caller holds mu
func (b *Backend) apply(from, to common.Address, data []byte) (string, []*types.Log, error) {
	if len(data) < 4 {
		return "", nil, errReverted
	}
	sel, input := data[:4], data[4:]

	if kind, ok := b.factories[to]; ok {
		logs, err := b.createCollection(kind, from, to, sel, input)
		return MethodCreateCollection, logs, err
	}

	c, ok := b.collections[to]
	if !ok {
		return "", nil, errReverted
	}
	switch {
	case bytes.Equal(sel, selTransferOwnership):
		if b.consumeRevert(MethodTransferOwnership) || from != c.Owner {
			return MethodTransferOwnership, nil, errReverted
		}
		values, err := argsAddress.Unpack(input)
		if err != nil {
			return MethodTransferOwnership, nil, err
		}
		c.Owner = values[0].(common.Address)
		if b.ownerOverride != nil {
			c.Owner = *b.ownerOverride
			b.ownerOverride = nil
		}
		return MethodTransferOwnership, nil, nil
	case bytes.Equal(sel, selAddValidCodes):
		if b.consumeRevert(MethodAddValidCodes) || (from != c.Owner && from != c.CodeManager) {
			return MethodAddValidCodes, nil, errReverted
		}
		values, err := argsBytes32s.Unpack(input)
		if err != nil {
			return MethodAddValidCodes, nil, err
		}
		for _, h := range values[0].([][32]byte) {
			c.Valid[common.Hash(h)] = true
		}
		return MethodAddValidCodes, nil, nil
	}
	return "", nil, errReverted
}

func (b *Backend) createCollection(kind chain.CollectionKind, from, factory common.Address, sel, input []byte) ([]*types.Log, error) {
	if b.consumeRevert(MethodCreateCollection) {
		return nil, errReverted
	}

	c := &Collection{
		Kind:        kind,
		Factory:     factory,
		Owner:       from,
		CodeManager: from,
		Valid:       make(map[common.Hash]bool),
		Used:        make(map[common.Hash]bool),
	}

	var (
		mintPrice *big.Int
		bps       *big.Int
		receiver  common.Address
	)
	switch kind {
	case chain.KindERC1155:
		if !bytes.Equal(sel, selCreateERC1155) {
			return nil, errReverted
		}
		values, err := argsCreateERC1155.Unpack(input)
		if err != nil {
			return nil, err
		}
		c.BaseURI, c.Name, c.Symbol = values[0].(string), values[1].(string), values[2].(string)
		mintPrice, c.MaxSupply = values[4].(*big.Int), values[5].(*big.Int)
		receiver, bps = values[6].(common.Address), values[7].(*big.Int)
	case chain.KindERC721:
		if !bytes.Equal(sel, selCreateERC721) {
			return nil, errReverted
		}
		values, err := argsCreateERC721.Unpack(input)
		if err != nil {
			return nil, err
		}
		c.Name, c.Symbol, c.BaseURI = values[0].(string), values[1].(string), values[2].(string)
		c.MaxSupply, mintPrice = values[3].(*big.Int), values[4].(*big.Int)
		bps, receiver = values[5].(*big.Int), values[6].(common.Address)
	}
	if c.MaxSupply == nil || c.MaxSupply.Sign() <= 0 || bps.Cmp(big.NewInt(10_000)) > 0 {
		return nil, errReverted
	}

	addr := crypto.CreateAddress(factory, uint64(len(b.collections)))
	b.collections[addr] = c

	// an unrelated event from the clone precedes the factory event
	logs := []*types.Log{{
		Address: addr,
		Topics:  []common.Hash{topicUnrelated},
		Data:    common.LeftPadBytes([]byte{1}, 32),
	}}
	if b.dropNextEvent {
		b.dropNextEvent = false
		return logs, nil
	}

	creator := common.BytesToHash(from.Bytes())
	switch kind {
	case chain.KindERC1155:
		data, err := argsAddress.Pack(addr)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &types.Log{Address: factory, Topics: []common.Hash{topicERC1155Deployed, creator}, Data: data})
	case chain.KindERC721:
		data, err := argsERC721Event.Pack(addr, c.Name, c.Symbol, mintPrice, bps, receiver)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &types.Log{Address: factory, Topics: []common.Hash{topicERC721Deployed, creator}, Data: data})
	}
	return logs, nil
}

func (b *Backend) consumeRevert(method string) bool {
	if b.revertNext[method] > 0 {
		b.revertNext[method]--
		return true
	}
	return false
}
