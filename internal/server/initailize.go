package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/codes"
	"github.com/rxtech-lab/cardify-mcp/internal/config"
	"github.com/rxtech-lab/cardify-mcp/internal/hooks"
	"github.com/rxtech-lab/cardify-mcp/internal/metrics"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
	"gorm.io/gorm"
)

// Services is the wired service graph shared by the HTTP, MCP and CLI entry points
type Services struct {
	Hooks        services.HookService
	Credits      services.CreditService
	Ledger       services.LedgerService
	Collections  services.CollectionService
	Deployer     services.DeployerService
	Registrar    services.RegistrarService
	Verifier     services.VerifierService
	Orchestrator services.OrchestratorService
	Storage      services.StorageService
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
}

// OpenDatabase connects to the configured database and migrates it
func OpenDatabase(cfg *config.Config) (services.DBService, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return services.NewPostgresDBService(cfg.PostgresURL)
	default:
		return services.NewSqliteDBService(cfg.SqlitePath)
	}
}

// DialChain connects the operator client
func DialChain(ctx context.Context, cfg *config.Config) (chain.Client, error) {
	if !cfg.ChainEnabled() {
		return nil, errors.New("RPC_URL and OPERATOR_PRIVATE_KEY are required")
	}
	return chain.Dial(ctx, cfg.RPCURL, cfg.OperatorPrivateKey, chain.Options{
		Confirmations: cfg.Confirmations,
		TxTimeout:     cfg.TxTimeout,
		PollInterval:  cfg.PollInterval,
	})
}

// FactoryAddresses returns the configured factory for each collection kind
func FactoryAddresses(cfg *config.Config) map[chain.CollectionKind]common.Address {
	factories := make(map[chain.CollectionKind]common.Address)
	if cfg.FactoryAddressERC1155 != "" {
		factories[chain.KindERC1155] = common.HexToAddress(cfg.FactoryAddressERC1155)
	}
	if cfg.FactoryAddressERC721 != "" {
		factories[chain.KindERC721] = common.HexToAddress(cfg.FactoryAddressERC721)
	}
	return factories
}

func OrchestratorConfig(cfg *config.Config) services.OrchestratorConfig {
	return services.OrchestratorConfig{
		CreditCost:     cfg.DeploymentCreditCost,
		PersistRetries: cfg.PersistRetries,
		PersistBackoff: cfg.PersistBackoff,
		DefaultKind:    chain.CollectionKind(cfg.DefaultCollectionType),
		MaxCodes:       cfg.MaxCodesPerCollection,
		ReconcileGrace: cfg.ReconcileGrace,
		LeaseDuration:  cfg.AttemptLease,
	}
}

// NewAuthenticator prefers JWKS validation and falls back to a shared secret.
// It returns nil when neither is configured.
func NewAuthenticator(cfg *config.Config) (*utils.JwtAuthenticator, error) {
	if cfg.JWKSURI != "" {
		return utils.NewJwtAuthenticator(cfg.JWKSURI), nil
	}
	if cfg.JWTSecret != "" {
		return utils.NewSimpleJwtAuthenticator(cfg.JWTSecret)
	}
	return nil, nil
}

func InitializeServices(db *gorm.DB, client chain.Client, factories map[chain.CollectionKind]common.Address, cfg *config.Config) (*Services, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	hookService := services.NewHookService()
	creditService := services.NewCreditService(db)
	ledgerService := metrics.InstrumentLedger(services.NewLedgerService(db), m)
	deployerService := services.NewDeployerService(client, factories)
	registrarService := services.NewRegistrarService(client, cfg.CommitmentBatchSize)

	generator := codes.NewGenerator(
		codes.WithLength(cfg.CodeLength),
		codes.WithMaxCount(cfg.MaxCodesPerCollection),
	)

	orchestratorService := services.NewOrchestratorService(
		db,
		generator,
		deployerService,
		registrarService,
		ledgerService,
		creditService,
		hookService,
		OrchestratorConfig(cfg),
	)

	var storageService services.StorageService
	if cfg.PinataJWT != "" {
		storageService = services.NewPinataStorageService(cfg.PinataJWT, cfg.PinataAPIURL, cfg.PinataGatewayURL)
	}

	return &Services{
		Hooks:        hookService,
		Credits:      creditService,
		Ledger:       ledgerService,
		Collections:  services.NewCollectionService(db),
		Deployer:     deployerService,
		Registrar:    registrarService,
		Verifier:     services.NewVerifierService(ledgerService, registrarService),
		Orchestrator: orchestratorService,
		Storage:      storageService,
		Metrics:      m,
		Registry:     registry,
	}, nil
}

func InitializeHooks(m *metrics.Metrics) (services.Hook, services.Hook) {
	metricsHook := hooks.NewMetricsHook(m)
	stepLogHook := hooks.NewStepLogHook()

	return metricsHook, stepLogHook
}

func RegisterHooks(hookService services.HookService, hookList ...services.Hook) error {
	for _, hook := range hookList {
		if err := hookService.AddHook(hook); err != nil {
			return fmt.Errorf("failed to register hook: %w", err)
		}
	}
	return nil
}

// Bootstrap wires services and their hooks in one call
func Bootstrap(db *gorm.DB, client chain.Client, factories map[chain.CollectionKind]common.Address, cfg *config.Config) (*Services, error) {
	svc, err := InitializeServices(db, client, factories, cfg)
	if err != nil {
		return nil, err
	}

	metricsHook, stepLogHook := InitializeHooks(svc.Metrics)
	if err := RegisterHooks(svc.Hooks, metricsHook, stepLogHook); err != nil {
		return nil, err
	}

	if len(factories) == 0 {
		log.Println("[server] no factory addresses configured, deployments will fail")
	}
	return svc, nil
}
