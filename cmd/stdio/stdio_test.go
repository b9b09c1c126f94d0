package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/chain/chaintest"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/mcp"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
	"github.com/stretchr/testify/suite"
)

type StdioServerTestSuite struct {
	suite.Suite
	dbService services.DBService
	mcpServer *mcp.MCPServer
}

func (suite *StdioServerTestSuite) SetupTest() {
	dbService, err := services.NewSqliteDBService(":memory:")
	suite.Require().NoError(err)
	suite.dbService = dbService

	backend := chaintest.NewBackend()
	client, _ := chaintest.NewClient(suite.T(), backend)
	factories := map[chain.CollectionKind]common.Address{
		chain.KindERC721: backend.AddFactory(chain.KindERC721),
	}

	suite.mcpServer, err = configureServer(&config.Config{
		CommitmentBatchSize:   50,
		CodeLength:            12,
		MaxCodesPerCollection: 1000,
		DeploymentCreditCost:  1,
		PersistRetries:        1,
		PersistBackoff:        time.Millisecond,
		DefaultCollectionType: "erc721",
		MCPUserID:             "local",
	}, dbService, client, factories)
	suite.Require().NoError(err)
}

func (suite *StdioServerTestSuite) TearDownTest() {
	if suite.dbService != nil {
		_ = suite.dbService.Close()
	}
}

func (suite *StdioServerTestSuite) handle(ctx context.Context, method string, params interface{}) map[string]interface{} {
	request, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	suite.Require().NoError(err)

	raw, err := json.Marshal(suite.mcpServer.GetServer().HandleMessage(ctx, request))
	suite.Require().NoError(err)

	var response map[string]interface{}
	suite.Require().NoError(json.Unmarshal(raw, &response))
	suite.Require().NotContains(response, "error")
	return response["result"].(map[string]interface{})
}

func (suite *StdioServerTestSuite) TestToolsRegistered() {
	result := suite.handle(context.Background(), "tools/list", map[string]interface{}{})
	suite.Len(result["tools"], 6)
}

func (suite *StdioServerTestSuite) TestDeployAsLocalUser() {
	ctx := utils.WithAuthenticatedUser(context.Background(), &utils.AuthenticatedUser{Sub: "local"})
	_, err := suite.mcpServer.GetServices().Credits.Grant(ctx, "local", 1, "grant:local")
	suite.Require().NoError(err)

	result := suite.handle(ctx, "tools/call", map[string]interface{}{
		"name": "deploy_collection",
		"arguments": map[string]interface{}{
			"name":          "Stdio Drop",
			"symbol":        "STD",
			"metadata_uri":  "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
			"max_supply":    5,
			"owner_address": "0x70997970C51812dc3A010C7d01b50e20d17dc79C",
		},
	})
	suite.NotEqual(true, result["isError"])

	collections, err := suite.mcpServer.GetServices().Collections.ListCollectionsByUser(ctx, "local")
	suite.Require().NoError(err)
	suite.Require().Len(collections, 1)
	suite.Equal(chain.KindERC721, collections[0].CollectionType)
}

func TestStdioServerTestSuite(t *testing.T) {
	suite.Run(t, new(StdioServerTestSuite))
}
