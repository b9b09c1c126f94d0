package services_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/codes"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testOwner      = "0x70997970c51812dc3a010c7d01b50e20d17dc79c"
	testCollection = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	testCID        = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbService, err := services.NewSqliteDBService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbService.Close() })
	return dbService.GetDB()
}

func generateCodes(t *testing.T, n int) []string {
	t.Helper()
	generated, err := codes.NewGenerator().Generate(n)
	require.NoError(t, err)
	plain := make([]string, len(generated))
	for i, c := range generated {
		plain[i] = c.Plain
	}
	return plain
}

func newTestCollection(address, attemptID string, maxSupply int) *models.Collection {
	return &models.Collection{
		Address:        address,
		UserID:         "user-1",
		OwnerAddress:   testOwner,
		CollectionType: chain.KindERC1155,
		Name:           "Cardify Genesis",
		Symbol:         "CARD",
		BaseURI:        "ipfs://" + testCID + "/",
		MaxSupply:      maxSupply,
		MintPrice:      decimal.Zero,
		Active:         true,
		AttemptID:      attemptID,
	}
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
