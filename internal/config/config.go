package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Indexers    IndexersConfig  `mapstructure:"indexers"`
	Pricing     PricingConfig   `mapstructure:"pricing"`
	Model       ModelConfig     `mapstructure:"model"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PoolMaxConns bounds the pgx pool, defaulting to 8 connections.
func (c DatabaseConfig) PoolMaxConns() int {
	if c.MaxConns <= 0 {
		return 8
	}
	return c.MaxConns
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IndexersConfig points at the per-chain transaction history APIs.
type IndexersConfig struct {
	BitcoinBaseURL  string `mapstructure:"bitcoin_base_url"`
	EthereumBaseURL string `mapstructure:"ethereum_base_url"`
	EthereumAPIKey  string `mapstructure:"ethereum_api_key"`
	SolanaBaseURL   string `mapstructure:"solana_base_url"`
	SolanaAPIKey    string `mapstructure:"solana_api_key"`
	LedgerBaseURL   string `mapstructure:"ledger_base_url"`
	Timeout         string `mapstructure:"timeout"`
}

// RequestTimeout parses the indexer request timeout, defaulting to 30s.
func (c IndexersConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// PricingConfig configures the price oracle's providers and durable cache.
type PricingConfig struct {
	CryptoCompareAPIKey string `mapstructure:"cryptocompare_api_key"`
	MoralisAPIKey       string `mapstructure:"moralis_api_key"`
	CacheTTL            string `mapstructure:"cache_ttl"`
	SnapshotEvery       string `mapstructure:"snapshot_every"`
}

// QuoteCacheTTL parses the durable quote cache TTL, defaulting to 30 days.
// Historical quotes are bucketed by month so a long TTL costs nothing.
func (c PricingConfig) QuoteCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

// SnapshotInterval parses the price snapshot persistence cadence.
func (c PricingConfig) SnapshotInterval() time.Duration {
	d, err := time.ParseDuration(c.SnapshotEvery)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// TelemetryConfig configures the trace export pipeline. Disabled keeps the
// gin instrumentation on a no-op provider.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelConfig configures the inference runtime.
type ModelConfig struct {
	// RuntimeLibraryPath locates the ONNX runtime shared library; empty
	// means the loader path already has it.
	RuntimeLibraryPath string `mapstructure:"runtime_library_path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// API keys come from the environment, never the config file.
	if err := viper.BindEnv("indexers.ethereum_api_key", "ETHERSCAN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ETHERSCAN_API_KEY: %w", err)
	}
	if err := viper.BindEnv("indexers.solana_api_key", "HELIUS_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind HELIUS_API_KEY: %w", err)
	}
	if err := viper.BindEnv("pricing.cryptocompare_api_key", "CRYPTOCOMPARE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind CRYPTOCOMPARE_API_KEY: %w", err)
	}
	if err := viper.BindEnv("pricing.moralis_api_key", "MORALIS_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind MORALIS_API_KEY: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	return &config, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "chainrisk")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_conns", 8)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Indexers
	viper.SetDefault("indexers.bitcoin_base_url", "https://mempool.space/api")
	viper.SetDefault("indexers.ethereum_base_url", "https://api.etherscan.io/api")
	viper.SetDefault("indexers.ethereum_api_key", "")
	viper.SetDefault("indexers.solana_base_url", "https://api.helius.xyz")
	viper.SetDefault("indexers.solana_api_key", "")
	viper.SetDefault("indexers.ledger_base_url", "https://ledger-api.internetcomputer.org")
	viper.SetDefault("indexers.timeout", "30s")

	// Pricing
	viper.SetDefault("pricing.cryptocompare_api_key", "")
	viper.SetDefault("pricing.moralis_api_key", "")
	viper.SetDefault("pricing.cache_ttl", "720h")
	viper.SetDefault("pricing.snapshot_every", "15m")

	// Model
	viper.SetDefault("model.runtime_library_path", "")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "")
}
