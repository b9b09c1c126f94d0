package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "cardify"

type DatabaseDriver string

const (
	DriverSqlite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
)

// Config is read from the environment. Every key may be given with or without
// the CARDIFY_ prefix.
type Config struct {
	Port int `envconfig:"PORT" default:"8080"`

	DatabaseDriver DatabaseDriver `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	PostgresURL    string         `envconfig:"POSTGRES_URL"`
	SqlitePath     string         `envconfig:"SQLITE_PATH" default:"cardify.db"`

	RPCURL                string        `envconfig:"RPC_URL"`
	OperatorPrivateKey    string        `envconfig:"OPERATOR_PRIVATE_KEY"`
	FactoryAddressERC1155 string        `envconfig:"FACTORY_ADDRESS_ERC1155"`
	FactoryAddressERC721  string        `envconfig:"FACTORY_ADDRESS_ERC721"`
	Confirmations         uint64        `envconfig:"CONFIRMATIONS" default:"1"`
	TxTimeout             time.Duration `envconfig:"TX_TIMEOUT" default:"2m"`
	PollInterval          time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	CommitmentBatchSize   int           `envconfig:"COMMITMENT_BATCH_SIZE" default:"50"`
	CodeLength            int           `envconfig:"CODE_LENGTH" default:"12"`
	MaxCodesPerCollection int           `envconfig:"MAX_CODES_PER_COLLECTION" default:"1000"`
	DeploymentCreditCost  int64         `envconfig:"DEPLOYMENT_CREDIT_COST" default:"10"`
	PersistRetries        int           `envconfig:"PERSIST_RETRIES" default:"5"`
	PersistBackoff        time.Duration `envconfig:"PERSIST_BACKOFF" default:"500ms"`
	ReconcileInterval     time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	ReconcileGrace        time.Duration `envconfig:"RECONCILE_GRACE" default:"30s"`
	AttemptLease          time.Duration `envconfig:"ATTEMPT_LEASE" default:"5m"`
	DefaultCollectionType string        `envconfig:"DEFAULT_COLLECTION_TYPE" default:"erc1155"`

	PinataJWT        string `envconfig:"PINATA_JWT"`
	PinataAPIURL     string `envconfig:"PINATA_API_URL" default:"https://api.pinata.cloud"`
	PinataGatewayURL string `envconfig:"PINATA_GATEWAY_URL" default:"https://gateway.pinata.cloud"`

	JWKSURI        string `envconfig:"JWKS_URI"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	AuthResourceID string `envconfig:"AUTH_RESOURCE_ID"`
	AuthServerURL  string `envconfig:"AUTH_SERVER_URL"`
	PublicURL      string `envconfig:"PUBLIC_URL"`

	// MCPUserID identifies the caller of stdio MCP tools, which carry no token
	MCPUserID string `envconfig:"MCP_USER_ID" default:"local"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on the chain being reachable
func (c *Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSqlite:
	case DriverPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	for name, addr := range map[string]string{
		"FACTORY_ADDRESS_ERC1155": c.FactoryAddressERC1155,
		"FACTORY_ADDRESS_ERC721":  c.FactoryAddressERC721,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("%s is not a valid address", name))
		}
	}

	if c.CommitmentBatchSize < 1 {
		errs = append(errs, errors.New("COMMITMENT_BATCH_SIZE must be positive"))
	}
	if c.CodeLength < 8 || c.CodeLength > 64 {
		errs = append(errs, errors.New("CODE_LENGTH must be between 8 and 64"))
	}
	if c.DeploymentCreditCost < 0 {
		errs = append(errs, errors.New("DEPLOYMENT_CREDIT_COST must not be negative"))
	}
	if c.PersistRetries < 1 {
		errs = append(errs, errors.New("PERSIST_RETRIES must be at least 1"))
	}
	if c.AttemptLease <= c.TxTimeout {
		errs = append(errs, errors.New("ATTEMPT_LEASE must be longer than TX_TIMEOUT"))
	}
	if c.DefaultCollectionType != "erc721" && c.DefaultCollectionType != "erc1155" {
		errs = append(errs, fmt.Errorf("unknown DEFAULT_COLLECTION_TYPE %q", c.DefaultCollectionType))
	}

	return errors.Join(errs...)
}

// ChainEnabled reports whether enough is configured to submit transactions
func (c *Config) ChainEnabled() bool {
	return c.RPCURL != "" && c.OperatorPrivateKey != ""
}
