package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registryRPC answers eth_call for validCodes(bytes32) over JSON-RPC
type registryRPC struct {
	mu    sync.Mutex
	calls int
	valid map[common.Hash]bool
	fail  common.Hash
}

func (r *registryRPC) Call(msg map[string]interface{}, block string) (hexutil.Bytes, error) {
	input, _ := msg["input"].(string)
	if input == "" {
		input, _ = msg["data"].(string)
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return nil, err
	}

	var hash common.Hash
	if err := funcValidCodes.DecodeArgs(data, &hash); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if hash == r.fail {
		return nil, errors.New("execution reverted")
	}
	out := make([]byte, 32)
	if r.valid[hash] {
		out[31] = 1
	}
	return out, nil
}

func newBatchClient(t *testing.T, registry *registryRPC) *evmClient {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", registry))
	rpcClient := rpc.DialInProc(srv)
	t.Cleanup(func() {
		rpcClient.Close()
		srv.Stop()
	})
	return &evmClient{batch: w3.NewClient(rpcClient)}
}

func TestValidCodesBatched(t *testing.T) {
	registry := &registryRPC{valid: make(map[common.Hash]bool)}
	client := newBatchClient(t, registry)

	// spans three JSON-RPC batches
	hashes := make([]common.Hash, 2*maxBatchCalls+17)
	for i := range hashes {
		hashes[i] = crypto.Keccak256Hash([]byte{byte(i), byte(i >> 8)})
		if i%3 == 0 {
			registry.valid[hashes[i]] = true
		}
	}

	valid, err := ValidCodes(context.Background(), client, common.HexToAddress("0xc011"), hashes)
	require.NoError(t, err)
	require.Len(t, valid, len(hashes))
	for i := range hashes {
		assert.Equal(t, i%3 == 0, valid[i], "hash %d", i)
	}
	assert.Equal(t, len(hashes), registry.calls)
}

func TestValidCodesBatchError(t *testing.T) {
	hashes := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	registry := &registryRPC{valid: make(map[common.Hash]bool), fail: hashes[1]}
	client := newBatchClient(t, registry)

	_, err := ValidCodes(context.Background(), client, common.HexToAddress("0xc011"), hashes)
	assert.Error(t, err)
}
