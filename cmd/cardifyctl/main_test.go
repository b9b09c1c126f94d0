package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/chain/chaintest"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/server"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/stretchr/testify/suite"
)

type CardifyctlTestSuite struct {
	suite.Suite
	app     *app
	backend *chaintest.Backend
}

func (suite *CardifyctlTestSuite) SetupTest() {
	cfg := &config.Config{
		CommitmentBatchSize:   50,
		CodeLength:            12,
		MaxCodesPerCollection: 1000,
		DeploymentCreditCost:  10,
		PersistRetries:        1,
		PersistBackoff:        time.Millisecond,
		DefaultCollectionType: "erc1155",
	}

	db, err := services.NewSqliteDBService(":memory:")
	suite.Require().NoError(err)

	suite.backend = chaintest.NewBackend()
	client, _ := chaintest.NewClient(suite.T(), suite.backend)
	factories := map[chain.CollectionKind]common.Address{
		chain.KindERC1155: suite.backend.AddFactory(chain.KindERC1155),
	}
	svc, err := server.Bootstrap(db.GetDB(), client, factories, cfg)
	suite.Require().NoError(err)

	suite.app = &app{cfg: cfg, db: db, services: svc}
	suite.T().Cleanup(func() { _ = db.Close() })
}

func (suite *CardifyctlTestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(suite.app)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (suite *CardifyctlTestSuite) TestCredits() {
	out, err := suite.run("credits", "grant", "user-1", "25", "--reference", "invoice-1")
	suite.Require().NoError(err)
	suite.Contains(out, "balance 25")

	// same reference again does not double-grant
	out, err = suite.run("credits", "grant", "user-1", "25", "--reference", "invoice-1")
	suite.Require().NoError(err)
	suite.Contains(out, "balance 25")

	out, err = suite.run("credits", "show", "user-1")
	suite.Require().NoError(err)
	suite.Contains(out, "balance: 25")
	suite.Contains(out, "invoice-1")

	_, err = suite.run("credits", "grant", "user-1", "-3")
	suite.Error(err)
	_, err = suite.run("credits", "grant", "user-1")
	suite.Error(err)
}

func (suite *CardifyctlTestSuite) deploy() *services.DeploymentResult {
	ctx := context.Background()
	_, err := suite.app.services.Credits.Grant(ctx, "user-1", 10, "grant:user-1")
	suite.Require().NoError(err)

	result, err := suite.app.services.Orchestrator.DeployCollectionWithCodes(ctx, "user-1", "", models.DeploymentRequest{
		Name:         "CLI Drop",
		Symbol:       "CLI",
		MetadataURI:  "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		MaxSupply:    5,
		OwnerAddress: "0x70997970C51812dc3A010C7d01b50e20d17dc79C",
	})
	suite.Require().NoError(err)
	return result
}

func (suite *CardifyctlTestSuite) TestVerify() {
	result := suite.deploy()

	out, err := suite.run("verify", result.CollectionAddress)
	suite.Require().NoError(err)
	suite.Contains(out, "codes:           5")
	suite.Contains(out, "registered:      5")

	_, err = suite.run("verify", "0x0000000000000000000000000000000000000001")
	suite.Error(err)
}

func (suite *CardifyctlTestSuite) TestReconcile() {
	out, err := suite.run("reconcile", "--list")
	suite.Require().NoError(err)
	suite.Contains(out, "0 incomplete attempts")

	out, err = suite.run("reconcile")
	suite.Require().NoError(err)
	suite.Contains(out, "0 attempts completed")
}

func TestCardifyctlTestSuite(t *testing.T) {
	suite.Run(t, new(CardifyctlTestSuite))
}
