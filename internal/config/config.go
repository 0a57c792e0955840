package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Mode selects between live chain adapters and deterministic simulation
// adapters. Both implement the same interfaces; only the wiring differs.
const (
	ModeLive       = "live"
	ModeSimulation = "simulation"
)

// Config holds all configuration for the service
type Config struct {
	Mode     string
	Server   ServerConfig
	Database DatabaseConfig
	Chains   map[string]ChainConfig
	Stash    StashConfig
	Storage  StorageConfig
	Prices   PricesConfig
	Swap     SwapConfig
	Operator OperatorConfig
	Attest   AttestationConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds PostgreSQL configuration. An empty Host disables the
// Postgres operation store and the orchestrator keeps records in memory.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ChainConfig holds configuration for an EVM source chain
type ChainConfig struct {
	ChainID              string
	Name                 string
	NativeSymbol         string          // gas token symbol, e.g. "ETH"
	RPCEndpoint          string
	USDCContractAddress  string          // USDC ERC20 contract address
	MessengerContract    string          // token messenger (burn) contract address
	ProofRegistryAddress string          // storage proof registry contract address
	BridgeDomain         uint32          // attestation protocol domain for this chain
	BridgeFeeBps         uint16          // bridge fee tier, e.g. 10 = 0.1%
	SourceGasUSD         decimal.Decimal // fixed per-transfer gas cost estimate
}

// StashConfig holds target-chain configuration. The stash chain is the
// CosmWasm chain hosting the storage network's payment rails and the DEX
// venues used to acquire STOR and STASH.
type StashConfig struct {
	ChainName          string
	RPCEndpoint        string
	RESTEndpoint       string
	TransmitterAddress string // attested-message transmitter contract
	BridgeDomain       uint32
	USDCDenom          string // bridged USDC denom on the stash chain
	GasDenom           string // ustash
	StorageDenom       string // ustor
	TargetGasUSD       decimal.Decimal
	Venues             []VenueConfig
}

// VenueConfig describes one DEX venue: a named set of pair contracts with
// their reported liquidity depth in the input token.
type VenueConfig struct {
	Name  string
	Pairs map[string]PairConfig // key: "IN/OUT", e.g. "USDC/STASH"
}

// PairConfig holds one liquidity pool's contract and depth
type PairConfig struct {
	ContractAddress string
	LiquidityDepth  decimal.Decimal // pool depth in input-token units
}

// StorageConfig holds storage network parameters and pricing
type StorageConfig struct {
	PublisherEndpoint  string
	MaxPayloadBytes    int64
	// Per-KB per-retention-period rates for the two required tokens
	StorRatePerKBEpoch  decimal.Decimal
	StashRatePerKBEpoch decimal.Decimal
	// Multiplier applied when a blob is stored permanently (non-deletable)
	PermanentMultiplier decimal.Decimal
}

// PricesConfig holds the price source endpoints in preference order and the
// provider-specific token identifier mapping.
type PricesConfig struct {
	MarketAPIEndpoint string            // aggregator REST API
	OracleEndpoint    string            // decentralized price-feed network
	MarketAPIIDs      map[string]string // symbol -> provider token id
	CacheTTLSeconds   int
}

// SwapConfig holds router-wide swap parameters
type SwapConfig struct {
	DefaultSlippageBps uint16          // e.g. 50 = 0.5%
	PerHopFee          decimal.Decimal // e.g. 0.003 = 0.3% per hop
}

// OperatorConfig holds operator wallet configuration
type OperatorConfig struct {
	EVMPrivateKey string // for signing EVM transactions
	StashMnemonic string // for signing stash-chain transactions
	StashAddress  string // operator's stash-chain address
}

// AttestationConfig is derived configuration for the attestation poller
type AttestationConfig struct {
	Endpoint       string
	PollIntervalMS int
	TimeoutMinutes int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Mode: getEnv("MODE", ModeLive),
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "storflow"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Operator: OperatorConfig{
			EVMPrivateKey: getEnv("OPERATOR_EVM_PRIVATE_KEY", ""),
			StashMnemonic: getEnv("OPERATOR_STASH_MNEMONIC", ""),
			StashAddress:  getEnv("OPERATOR_STASH_ADDRESS", ""),
		},
		Chains: make(map[string]ChainConfig),
		Attest: AttestationConfig{
			Endpoint:       getEnv("ATTESTATION_ENDPOINT", ""),
			PollIntervalMS: getEnvInt("ATTESTATION_POLL_INTERVAL_MS", 5000),
			TimeoutMinutes: getEnvInt("ATTESTATION_TIMEOUT_MINUTES", 30),
		},
	}

	loadChainConfigs(cfg)
	loadStashConfig(cfg)
	loadStorageConfig(cfg)
	loadPricesConfig(cfg)
	loadSwapConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadChainConfigs loads configuration for all supported source chains.
// Fee tiers and gas estimates differ materially per chain.
func loadChainConfigs(cfg *Config) {
	// Ethereum: high-fee tier
	if rpc := getEnv("ETH_RPC_ENDPOINT", ""); rpc != "" || cfg.Mode == ModeSimulation {
		cfg.Chains["1"] = ChainConfig{
			ChainID:              "1",
			Name:                 "Ethereum",
			NativeSymbol:         "ETH",
			RPCEndpoint:          rpc,
			USDCContractAddress:  getEnv("ETH_USDC_ADDRESS", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			MessengerContract:    getEnv("ETH_MESSENGER_CONTRACT", ""),
			ProofRegistryAddress: getEnv("ETH_PROOF_REGISTRY", ""),
			BridgeDomain:         uint32(getEnvInt("ETH_BRIDGE_DOMAIN", 0)),
			BridgeFeeBps:         uint16(getEnvInt("ETH_BRIDGE_FEE_BPS", 30)),
			SourceGasUSD:         getEnvDecimal("ETH_SOURCE_GAS_USD", "8.50"),
		}
	}

	// Base: low-fee tier
	if rpc := getEnv("BASE_RPC_ENDPOINT", ""); rpc != "" || cfg.Mode == ModeSimulation {
		cfg.Chains["8453"] = ChainConfig{
			ChainID:              "8453",
			Name:                 "Base",
			NativeSymbol:         "ETH",
			RPCEndpoint:          rpc,
			USDCContractAddress:  getEnv("BASE_USDC_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			MessengerContract:    getEnv("BASE_MESSENGER_CONTRACT", ""),
			ProofRegistryAddress: getEnv("BASE_PROOF_REGISTRY", ""),
			BridgeDomain:         uint32(getEnvInt("BASE_BRIDGE_DOMAIN", 6)),
			BridgeFeeBps:         uint16(getEnvInt("BASE_BRIDGE_FEE_BPS", 10)),
			SourceGasUSD:         getEnvDecimal("BASE_SOURCE_GAS_USD", "0.15"),
		}
	}

	// Polygon: low-fee tier
	if rpc := getEnv("POLYGON_RPC_ENDPOINT", ""); rpc != "" || cfg.Mode == ModeSimulation {
		cfg.Chains["137"] = ChainConfig{
			ChainID:              "137",
			Name:                 "Polygon",
			NativeSymbol:         "POL",
			RPCEndpoint:          rpc,
			USDCContractAddress:  getEnv("POLYGON_USDC_ADDRESS", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
			MessengerContract:    getEnv("POLYGON_MESSENGER_CONTRACT", ""),
			ProofRegistryAddress: getEnv("POLYGON_PROOF_REGISTRY", ""),
			BridgeDomain:         uint32(getEnvInt("POLYGON_BRIDGE_DOMAIN", 7)),
			BridgeFeeBps:         uint16(getEnvInt("POLYGON_BRIDGE_FEE_BPS", 15)),
			SourceGasUSD:         getEnvDecimal("POLYGON_SOURCE_GAS_USD", "0.05"),
		}
	}
}

// loadStashConfig loads target-chain configuration
func loadStashConfig(cfg *Config) {
	venues := []VenueConfig{}

	// Default venue set mirrors the pair contracts deployed on the stash
	// chain; overridable per environment for testnets.
	primary := VenueConfig{
		Name: getEnv("VENUE_PRIMARY_NAME", "stashswap"),
		Pairs: map[string]PairConfig{
			"USDC/STOR":  {ContractAddress: getEnv("VENUE_PRIMARY_USDC_STOR", ""), LiquidityDepth: getEnvDecimal("VENUE_PRIMARY_USDC_STOR_DEPTH", "250000")},
			"USDC/STASH": {ContractAddress: getEnv("VENUE_PRIMARY_USDC_STASH", ""), LiquidityDepth: getEnvDecimal("VENUE_PRIMARY_USDC_STASH_DEPTH", "400000")},
			"STASH/STOR": {ContractAddress: getEnv("VENUE_PRIMARY_STASH_STOR", ""), LiquidityDepth: getEnvDecimal("VENUE_PRIMARY_STASH_STOR_DEPTH", "120000")},
		},
	}
	venues = append(venues, primary)

	if name := getEnv("VENUE_SECONDARY_NAME", ""); name != "" {
		secondary := VenueConfig{
			Name: name,
			Pairs: map[string]PairConfig{
				"USDC/STOR":  {ContractAddress: getEnv("VENUE_SECONDARY_USDC_STOR", ""), LiquidityDepth: getEnvDecimal("VENUE_SECONDARY_USDC_STOR_DEPTH", "90000")},
				"USDC/STASH": {ContractAddress: getEnv("VENUE_SECONDARY_USDC_STASH", ""), LiquidityDepth: getEnvDecimal("VENUE_SECONDARY_USDC_STASH_DEPTH", "150000")},
			},
		}
		venues = append(venues, secondary)
	}

	cfg.Stash = StashConfig{
		ChainName:          getEnv("STASH_CHAIN_NAME", "stash"),
		RPCEndpoint:        getEnv("STASH_RPC_ENDPOINT", ""),
		RESTEndpoint:       getEnv("STASH_REST_ENDPOINT", ""),
		TransmitterAddress: getEnv("STASH_TRANSMITTER_CONTRACT", ""),
		BridgeDomain:       uint32(getEnvInt("STASH_BRIDGE_DOMAIN", 4)),
		USDCDenom:          getEnv("STASH_USDC_DENOM", "ibc/usdc"),
		GasDenom:           getEnv("STASH_GAS_DENOM", "ustash"),
		StorageDenom:       getEnv("STASH_STORAGE_DENOM", "ustor"),
		TargetGasUSD:       getEnvDecimal("STASH_TARGET_GAS_USD", "0.02"),
		Venues:             venues,
	}
}

// loadStorageConfig loads storage network pricing
func loadStorageConfig(cfg *Config) {
	cfg.Storage = StorageConfig{
		PublisherEndpoint:   getEnv("STORAGE_PUBLISHER_ENDPOINT", ""),
		MaxPayloadBytes:     int64(getEnvInt("STORAGE_MAX_PAYLOAD_BYTES", 13<<20)),
		StorRatePerKBEpoch:  getEnvDecimal("STORAGE_STOR_RATE_PER_KB_EPOCH", "0.0001"),
		StashRatePerKBEpoch: getEnvDecimal("STORAGE_STASH_RATE_PER_KB_EPOCH", "0.00002"),
		PermanentMultiplier: getEnvDecimal("STORAGE_PERMANENT_MULTIPLIER", "1.5"),
	}
}

// loadPricesConfig loads the price source preference chain
func loadPricesConfig(cfg *Config) {
	ids := map[string]string{
		"ETH":   "ethereum",
		"POL":   "polygon-ecosystem-token",
		"USDC":  "usd-coin",
		"STOR":  "stor-token",
		"STASH": "stash-chain",
	}
	if raw := getEnv("PRICE_MARKET_API_IDS", ""); raw != "" {
		// Format: SYM=provider-id,SYM=provider-id
		for _, pair := range strings.Split(raw, ",") {
			parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				ids[parts[0]] = parts[1]
			}
		}
	}

	cfg.Prices = PricesConfig{
		MarketAPIEndpoint: getEnv("PRICE_MARKET_API_ENDPOINT", "https://api.coingecko.com/api/v3"),
		OracleEndpoint:    getEnv("PRICE_ORACLE_ENDPOINT", ""),
		MarketAPIIDs:      ids,
		CacheTTLSeconds:   getEnvInt("PRICE_CACHE_TTL_SECONDS", 60),
	}
}

// loadSwapConfig loads router-wide parameters
func loadSwapConfig(cfg *Config) {
	cfg.Swap = SwapConfig{
		DefaultSlippageBps: uint16(getEnvInt("SWAP_DEFAULT_SLIPPAGE_BPS", 50)),
		PerHopFee:          getEnvDecimal("SWAP_PER_HOP_FEE", "0.003"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModeSimulation {
		return fmt.Errorf("invalid mode: %s", c.Mode)
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one source chain must be configured")
	}

	if c.Mode == ModeLive {
		if c.Operator.EVMPrivateKey == "" {
			return fmt.Errorf("operator EVM private key is required in live mode")
		}
		if c.Stash.RPCEndpoint == "" {
			return fmt.Errorf("STASH_RPC_ENDPOINT is required in live mode")
		}
		if c.Storage.PublisherEndpoint == "" {
			return fmt.Errorf("STORAGE_PUBLISHER_ENDPOINT is required in live mode")
		}
		if c.Attest.Endpoint == "" {
			return fmt.Errorf("ATTESTATION_ENDPOINT is required in live mode")
		}
	}

	if c.Storage.PermanentMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("permanent multiplier must be >= 1")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	raw := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		d, _ = decimal.NewFromString(defaultValue)
	}
	return d
}
