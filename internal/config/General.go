package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig   `envconfig:"SERVER"`
	Database DatabaseConfig `envconfig:"DATABASE"`
	Feeds    FeedsConfig    `envconfig:"FEEDS"`
	LLM      LLMConfig      `envconfig:"LLM"`
	Workers  WorkersConfig  `envconfig:"WORKERS"`
	Log      LogConfig      `envconfig:"LOG"`
	Policy   PolicyConfig   `envconfig:"POLICY"`
}

type ServerConfig struct {
	Port         string        `envconfig:"WEB_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"WEB_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WEB_WRITE_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Driver          string        `envconfig:"STORAGE_DRIVER" default:"postgres"` // postgres or memory
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"postgres"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Name            string        `envconfig:"DB_NAME" default:"rebalancer"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"` // "disable", "require", "verify-full", etc.
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	MigrateOnStart  bool          `envconfig:"DB_MIGRATE_ON_START" default:"true"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type FeedsConfig struct {
	CoinGeckoBaseURL   string        `envconfig:"COINGECKO_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	CoinGeckoAPIKey    string        `envconfig:"COINGECKO_API_KEY"`
	DefiLlamaBaseURL   string        `envconfig:"DEFILLAMA_BASE_URL" default:"https://api.llama.fi"`
	DefiLlamaYieldsURL string        `envconfig:"DEFILLAMA_YIELDS_URL" default:"https://yields.llama.fi"`
	Timeout            time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"10s"`
	RetryCount         int           `envconfig:"FEED_RETRY_COUNT" default:"2"`
	GasPriceGwei       float64       `envconfig:"GAS_PRICE_GWEI" default:"30"`
	PoolsCacheTTL      time.Duration `envconfig:"DEFILLAMA_POOLS_CACHE_TTL" default:"5m"`
}

type LLMConfig struct {
	Provider        string        `envconfig:"LLM_PROVIDER" default:"none"`   // openai, anthropic or none
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel     string        `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-haiku-latest"`
	Timeout         time.Duration `envconfig:"LLM_TIMEOUT" default:"10s"`
	MaxTokens       int           `envconfig:"LLM_MAX_TOKENS" default:"1024"`
	Temperature     float64       `envconfig:"LLM_TEMPERATURE" default:"0.2"`
	CacheTTL        time.Duration `envconfig:"STRATEGY_CACHE_TTL" default:"10m"`
}

type WorkersConfig struct {
	PriceRefreshInterval    time.Duration `envconfig:"PRICE_REFRESH_INTERVAL" default:"10s"`
	ProtocolRefreshInterval time.Duration `envconfig:"PROTOCOL_REFRESH_INTERVAL" default:"5m"`
	EvaluationInterval      time.Duration `envconfig:"EVALUATION_INTERVAL" default:"10m"`
	EvaluationEnabled       bool          `envconfig:"AUTO_EVALUATION_ENABLED" default:"true"`
	BackfillPriceHistory    bool          `envconfig:"PRICE_BACKFILL" default:"true"`
	SyncAPYFromPools        bool          `envconfig:"PROTOCOL_APY_FROM_POOLS" default:"false"`
	StopTimeout             time.Duration `envconfig:"WORKER_STOP_TIMEOUT" default:"15s"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"`
	File   string `envconfig:"LOG_FILE"`
}

// PolicyConfig selects the stored policy version and carries env overrides.
type PolicyConfig struct {
	Name               string  `envconfig:"POLICY_CONFIG_NAME" default:"default_rebalance_policy"`
	Version            int     `envconfig:"POLICY_CONFIG_VERSION" default:"1"`
	DefaultEthPriceUSD float64 `envconfig:"DEFAULT_ETH_PRICE_USD"`
	ReferenceAsset     string  `envconfig:"REFERENCE_ASSET"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("storageDriver", cfg.Database.Driver).
		Str("llmProvider", cfg.LLM.Provider).
		Str("webPort", cfg.Server.Port).
		Msg("Configuration loaded successfully.")

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.Database.Driver))
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("environment variable OPENAI_API_KEY is required when LLM_PROVIDER=openai"))
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("environment variable ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be openai, anthropic or none, got %q", c.LLM.Provider))
	}
	if c.Feeds.Timeout <= 0 {
		errs = append(errs, errors.New("EXTERNAL_CALL_TIMEOUT must be positive"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.Feeds.GasPriceGwei <= 0 {
		errs = append(errs, errors.New("GAS_PRICE_GWEI must be positive"))
	}
	if c.Workers.PriceRefreshInterval <= 0 || c.Workers.ProtocolRefreshInterval <= 0 || c.Workers.EvaluationInterval <= 0 {
		errs = append(errs, errors.New("worker intervals must be positive"))
	}
	if c.Policy.Version <= 0 {
		errs = append(errs, errors.New("POLICY_CONFIG_VERSION must be positive"))
	}
	if c.Policy.DefaultEthPriceUSD < 0 {
		errs = append(errs, errors.New("DEFAULT_ETH_PRICE_USD cannot be negative"))
	}
	return errors.Join(errs...)
}
