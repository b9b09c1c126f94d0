package chaintest

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/stretchr/testify/require"
)

// FastOptions keeps confirmation polling short enough for unit tests
var FastOptions = chain.Options{
	Confirmations: 1,
	TxTimeout:     500 * time.Millisecond,
	PollInterval:  5 * time.Millisecond,
}

// NewClient returns a client signing with a fresh operator key. It is closed on test cleanup.
func NewClient(t testing.TB, backend *Backend) (chain.Client, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client, err := chain.NewClient(context.Background(), backend, key, FastOptions)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, key
}
