/**
 * @description
 * This package handles the configuration management for the dispatcher. It
 * uses the Viper library to read configuration from environment variables
 * (and an optional .env file), providing a centralized and straightforward
 * way to manage application settings. Out-of-range numeric values are
 * coerced back to their defaults with a warning rather than aborting.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the dispatcher.
// These values are loaded from environment variables.
type Config struct {
	Network         string `mapstructure:"NETWORK"`
	ChainID         int64  `mapstructure:"CHAIN_ID"`
	InfuraProjectID string `mapstructure:"INFURA_PROJECT_ID"`

	MaxWorkers        int `mapstructure:"MAX_WORKERS"`
	MaxSendRetries    int `mapstructure:"MAX_SEND_RETRIES"`
	MaxReceiptRetries int `mapstructure:"MAX_RECEIPT_RETRIES"`

	SendRetryDelaySeconds    float64 `mapstructure:"SEND_RETRY_DELAY"`
	ReceiptRetryDelaySeconds float64 `mapstructure:"RECEIPT_RETRY_DELAY"`

	DefaultGasLimit     uint64 `mapstructure:"DEFAULT_GAS_LIMIT"`
	DefaultGasPriceGwei int64  `mapstructure:"DEFAULT_GAS_PRICE_GWEI"`
	PriorityFeeGwei     int64  `mapstructure:"PRIORITY_FEE_GWEI"`
	FeeCapMultiplier    int64  `mapstructure:"FEE_CAP_MULTIPLIER"`

	WalletsFile  string `mapstructure:"WALLETS_FILE"`
	FailedTxFile string `mapstructure:"FAILED_TX_FILE"`

	StatusAddr  string `mapstructure:"STATUS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	SubmitRateLimitPerMinute int    `mapstructure:"SUBMIT_RATE_LIMIT_PER_MINUTE"`
}

// SendRetryDelay returns the submission backoff base as a duration.
func (c Config) SendRetryDelay() time.Duration {
	return time.Duration(c.SendRetryDelaySeconds * float64(time.Second))
}

// ReceiptRetryDelay returns the confirmation poll backoff base as a duration.
func (c Config) ReceiptRetryDelay() time.Duration {
	return time.Duration(c.ReceiptRetryDelaySeconds * float64(time.Second))
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("NETWORK", "mainnet")
	viper.SetDefault("CHAIN_ID", 1)
	viper.SetDefault("MAX_WORKERS", 5)
	viper.SetDefault("MAX_SEND_RETRIES", 3)
	viper.SetDefault("MAX_RECEIPT_RETRIES", 6)
	viper.SetDefault("SEND_RETRY_DELAY", 1.0)
	viper.SetDefault("RECEIPT_RETRY_DELAY", 2.0)
	viper.SetDefault("DEFAULT_GAS_LIMIT", 21000)
	viper.SetDefault("DEFAULT_GAS_PRICE_GWEI", 20)
	viper.SetDefault("PRIORITY_FEE_GWEI", 2)
	viper.SetDefault("FEE_CAP_MULTIPLIER", 2)
	viper.SetDefault("WALLETS_FILE", "wallets.json")
	viper.SetDefault("FAILED_TX_FILE", "failed_transactions.json")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "multisend:rate_limit")
	viper.SetDefault("SUBMIT_RATE_LIMIT_PER_MINUTE", 0)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("NETWORK")
	_ = viper.BindEnv("CHAIN_ID")
	_ = viper.BindEnv("INFURA_PROJECT_ID")
	_ = viper.BindEnv("MAX_WORKERS")
	_ = viper.BindEnv("MAX_SEND_RETRIES")
	_ = viper.BindEnv("MAX_RECEIPT_RETRIES")
	_ = viper.BindEnv("SEND_RETRY_DELAY")
	_ = viper.BindEnv("RECEIPT_RETRY_DELAY")
	_ = viper.BindEnv("DEFAULT_GAS_LIMIT")
	_ = viper.BindEnv("DEFAULT_GAS_PRICE_GWEI")
	_ = viper.BindEnv("PRIORITY_FEE_GWEI")
	_ = viper.BindEnv("FEE_CAP_MULTIPLIER")
	_ = viper.BindEnv("WALLETS_FILE")
	_ = viper.BindEnv("FAILED_TX_FILE")
	_ = viper.BindEnv("STATUS_ADDR")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SUBMIT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.Network = strings.TrimSpace(config.Network)
	config.InfuraProjectID = strings.TrimSpace(config.InfuraProjectID)
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "multisend:rate_limit"
	}

	if config.MaxWorkers <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive worker limit configured; using default\" max_workers=%d", config.MaxWorkers)
		config.MaxWorkers = 5
	}
	if config.MaxSendRetries <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive send retry limit configured; using default\" max_send_retries=%d", config.MaxSendRetries)
		config.MaxSendRetries = 3
	}
	if config.MaxReceiptRetries <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive receipt retry limit configured; using default\" max_receipt_retries=%d", config.MaxReceiptRetries)
		config.MaxReceiptRetries = 6
	}
	if config.SendRetryDelaySeconds <= 0 {
		config.SendRetryDelaySeconds = 1.0
	}
	if config.ReceiptRetryDelaySeconds <= 0 {
		config.ReceiptRetryDelaySeconds = 2.0
	}
	if config.DefaultGasLimit == 0 {
		config.DefaultGasLimit = 21000
	}
	if config.DefaultGasPriceGwei <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive default gas price configured; using default\" gas_price_gwei=%d", config.DefaultGasPriceGwei)
		config.DefaultGasPriceGwei = 20
	}
	if config.PriorityFeeGwei <= 0 {
		config.PriorityFeeGwei = 2
	}
	if config.FeeCapMultiplier <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive fee cap multiplier configured; using default\" fee_cap_multiplier=%d", config.FeeCapMultiplier)
		config.FeeCapMultiplier = 2
	}
	if config.SubmitRateLimitPerMinute < 0 {
		config.SubmitRateLimitPerMinute = 0
	}

	return
}
