// Package config provides configuration management for the portfolio
// reconciler. It loads configuration from environment variables and .env files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Chains    ChainsConfig
	Banking   BankingConfig
	Pricing   PricingConfig
	Reconcile ReconcileConfig
	Logging   LoggingConfig
}

// ServerConfig holds status API server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	Enabled  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainsConfig holds chain configuration
type ChainsConfig struct {
	Enabled     []string
	Chains      map[string]ChainConfig
	ExplorerKey string
	Wallets     []string
}

// ChainConfig holds configuration for a specific chain
type ChainConfig struct {
	RPCPrimary   string
	RPCSecondary string
}

// BankingConfig holds banking aggregation collaborator configuration
type BankingConfig struct {
	BaseURL string
	APIKey  string
}

// PricingConfig holds external pricing collaborator configuration
type PricingConfig struct {
	BaseURL  string
	Currency string
}

// ReconcileConfig holds the reconciliation core's tunables
type ReconcileConfig struct {
	PercentThreshold  float64       // significance: |percent delta| cutoff for value changes
	AbsoluteThreshold float64       // significance: |absolute delta| cutoff for value changes
	MinPositionValue  float64       // floor below which crypto positions are dropped at assembly
	ScanDepth         int           // max transfer events examined per wallet/chain
	PriceCacheTTL     time.Duration // staleness window for cached prices
	CallTimeout       time.Duration // bound on every external call
	CycleInterval     time.Duration // scheduler interval between fetch cycles
	MaxConcurrent     int           // bound on in-flight wallet/chain scan tasks
	SnapshotPath      string
	LedgerPath        string
	PatternsPath      string // asset classification pattern file, empty = built-in defaults
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// CategoryPattern is one ordered (category, patterns) entry of the asset
// classifier. Order in the file is significant: specific categories must come
// before broad catch-alls.
type CategoryPattern struct {
	Category string   `json:"category"`
	Names    []string `json:"names"`    // case-insensitive substrings tested against the display name
	Prefixes []string `json:"prefixes"` // prefixes tested against the instrument identifier
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "portfolio_reconciler"),
				User:           getEnv("POSTGRES_USER", "reconciler"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "portfolio_reconciler"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Banking: BankingConfig{
			BaseURL: getEnv("BANKING_API_URL", ""),
			APIKey:  getEnv("BANKING_API_KEY", ""),
		},
		Pricing: PricingConfig{
			BaseURL:  getEnv("PRICING_API_URL", "https://api.coingecko.com/api/v3"),
			Currency: getEnv("PRICING_CURRENCY", "usd"),
		},
		Reconcile: ReconcileConfig{
			PercentThreshold:  getEnvAsFloat("SIGNIFICANCE_PERCENT_THRESHOLD", 5.0),
			AbsoluteThreshold: getEnvAsFloat("SIGNIFICANCE_ABSOLUTE_THRESHOLD", 500.0),
			MinPositionValue:  getEnvAsFloat("MIN_POSITION_VALUE", 1.0),
			ScanDepth:         getEnvAsInt("DISCOVERY_SCAN_DEPTH", 100),
			PriceCacheTTL:     getEnvAsDuration("PRICE_CACHE_TTL", 15*time.Minute),
			CallTimeout:       getEnvAsDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second),
			CycleInterval:     getEnvAsDuration("CYCLE_INTERVAL", 24*time.Hour),
			MaxConcurrent:     getEnvAsInt("MAX_CONCURRENT_SCANS", 4),
			SnapshotPath:      getEnv("SNAPSHOT_PATH", "data/snapshot.json"),
			LedgerPath:        getEnv("LEDGER_PATH", "data/ledger.jsonl"),
			PatternsPath:      getEnv("CLASSIFICATION_PATTERNS_PATH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Load chain configurations
	config.Chains = loadChainConfigs()

	return config, nil
}

// loadChainConfigs loads chain-specific configurations
func loadChainConfigs() ChainsConfig {
	enabledChains := splitAndTrim(getEnv("ENABLED_CHAINS", "ethereum"))

	chains := make(map[string]ChainConfig)
	for _, chain := range enabledChains {
		prefix := strings.ToUpper(chain)
		chains[chain] = ChainConfig{
			RPCPrimary:   getEnv(prefix+"_RPC_PRIMARY", ""),
			RPCSecondary: getEnv(prefix+"_RPC_SECONDARY", ""),
		}
	}

	return ChainsConfig{
		Enabled:     enabledChains,
		Chains:      chains,
		ExplorerKey: getEnv("EXPLORER_API_KEY", ""),
		Wallets:     splitAndTrim(getEnv("WALLET_ADDRESSES", "")),
	}
}

// LoadCategoryPatterns loads the ordered asset-classification pattern list
// from a JSON file. An empty path returns the built-in default ordering.
func LoadCategoryPatterns(path string) ([]CategoryPattern, error) {
	if path == "" {
		return DefaultCategoryPatterns(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var patterns []CategoryPattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s contains no categories", path)
	}

	return patterns, nil
}

// DefaultCategoryPatterns returns the built-in classification ordering.
// Specific categories come before broad catch-alls: real_estate must be
// tested before fund, which would otherwise match SCPI funds too.
func DefaultCategoryPatterns() []CategoryPattern {
	return []CategoryPattern{
		{Category: "real_estate", Names: []string{"scpi", "reit", "immobilier", "real estate"}},
		{Category: "bond", Names: []string{"bond", "obligation", "treasury"}, Prefixes: []string{"XS"}},
		{Category: "cash", Names: []string{"cash", "money market", "livret", "deposit"}},
		{Category: "fund", Names: []string{"etf", "fund", "fonds", "ucits", "index", "tracker"}, Prefixes: []string{"LU", "IE"}},
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
