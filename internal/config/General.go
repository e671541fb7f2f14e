package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/rebal/internal/state"
)

// Backend names accepted by STORE_BACKEND and LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is passed to logger.Initialize.
	LogLevel string
	// LogFile optionally duplicates logs as JSON into a file.
	LogFile string
	// WebPort is the port of the HTTP API.
	WebPort string

	// StoreBackend selects the basket and proposal store ("memory" or "postgres").
	StoreBackend string
	// LedgerBackend selects the token ledger ("memory" or "postgres").
	LedgerBackend string
	// DB holds the PostgreSQL connection parameters.
	DB state.DBConfig
	// DevEndpoints exposes the /api/dev routes that seed ledger accounts.
	DevEndpoints bool

	// Bech32Prefix is the account address prefix used on the wire.
	Bech32Prefix string

	// KeeperEnabled starts the executor loop alongside the API.
	KeeperEnabled bool
	// KeeperBasketID is the basket the keeper rebalances.
	KeeperBasketID string
	// KeeperBot is the executor address claiming rewards.
	KeeperBot sdk.AccAddress
	// KeeperBotTokenAccount receives minted rewards.
	KeeperBotTokenAccount sdk.AccAddress
	// KeeperInterval is the pause between keeper cycles.
	KeeperInterval time.Duration
	// KeeperDeviation is reported when no external rebalancer supplies one.
	KeeperDeviation uint64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = os.Getenv("LOG_FILE")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	Bech32Prefix = getEnvOrDefault("BECH32_PREFIX", "elys")

	StoreBackend, err = getEnvAsBackend("STORE_BACKEND")
	if err != nil {
		return err
	}
	LedgerBackend, err = getEnvAsBackend("LEDGER_BACKEND")
	if err != nil {
		return err
	}
	if StoreBackend == BackendPostgres || LedgerBackend == BackendPostgres {
		if DB, err = loadDBConfig(); err != nil {
			return err
		}
	}
	if DevEndpoints, err = getEnvAsBool("DEV_ENDPOINTS", false); err != nil {
		return err
	}

	if err := ConfigureAddressPrefix(Bech32Prefix); err != nil {
		return err
	}

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	if err := loadKeeperConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("StoreBackend", StoreBackend).
		Str("LedgerBackend", LedgerBackend).
		Str("WebPort", WebPort).
		Bool("DevEndpoints", DevEndpoints).
		Bool("KeeperEnabled", KeeperEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

// loadDBConfig reads the DB_* variables. DB_USER and DB_NAME are required.
func loadDBConfig() (state.DBConfig, error) {
	cfg := state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Password: os.Getenv("DB_PASSWORD"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	var err error
	if cfg.User, err = getEnv("DB_USER"); err != nil {
		return cfg, err
	}
	if cfg.DBName, err = getEnv("DB_NAME"); err != nil {
		return cfg, err
	}
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return cfg, errors.New("environment variable DB_PORT must be a valid port number")
	}
	cfg.Port = port
	return cfg, nil
}

func loadKeeperConfig() error {
	var err error
	if KeeperEnabled, err = getEnvAsBool("KEEPER_ENABLED", false); err != nil {
		return err
	}
	if !KeeperEnabled {
		return nil
	}

	if KeeperBasketID, err = getEnv("KEEPER_BASKET_ID"); err != nil {
		return err
	}
	if KeeperBot, err = getEnvAsAddress("KEEPER_BOT_ADDRESS"); err != nil {
		return err
	}
	if KeeperBotTokenAccount, err = getEnvAsAddress("KEEPER_BOT_TOKEN_ACCOUNT"); err != nil {
		return err
	}
	if KeeperInterval, err = time.ParseDuration(getEnvOrDefault("KEEPER_INTERVAL", "10m")); err != nil {
		return errors.New("environment variable KEEPER_INTERVAL must be a valid duration")
	}
	if KeeperDeviation, err = getEnvAsUint64("KEEPER_DEVIATION"); err != nil {
		return err
	}

	log.Debug().
		Str("KeeperBasketID", KeeperBasketID).
		Str("KeeperBot", KeeperBot.String()).
		Dur("KeeperInterval", KeeperInterval).
		Msg("Keeper configuration loaded successfully.")
	return nil
}

var (
	sdkConfigOnce   sync.Once
	sdkConfigPrefix string
)

// ConfigureAddressPrefix sets the bech32 account prefix once per process.
// Later calls with a different prefix fail because the SDK config is sealed.
func ConfigureAddressPrefix(prefix string) error {
	sdkConfigOnce.Do(func() {
		sdkConfig := sdk.GetConfig()
		sdkConfig.SetBech32PrefixForAccount(prefix, prefix+"pub")
		sdkConfig.SetBech32PrefixForValidator(prefix+"valoper", prefix+"valoperpub")
		sdkConfig.SetBech32PrefixForConsensusNode(prefix+"valcons", prefix+"valconspub")
		sdkConfig.Seal()
		sdkConfigPrefix = prefix
	})
	if sdkConfigPrefix != prefix {
		return errors.New("address prefix already configured as " + sdkConfigPrefix)
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set or empty.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an optional boolean environment variable.
func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsAddress retrieves a required bech32 account address.
func getEnvAsAddress(key string) (sdk.AccAddress, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return nil, err
	}
	addr, err := sdk.AccAddressFromBech32(valueStr)
	if err != nil {
		return nil, errors.New("environment variable " + key + " must be a bech32 address: " + err.Error())
	}
	return addr, nil
}

// getEnvAsBackend retrieves a backend name, defaulting to memory.
func getEnvAsBackend(key string) (string, error) {
	value := strings.ToLower(getEnvOrDefault(key, BackendMemory))
	switch value {
	case BackendMemory, BackendPostgres:
		return value, nil
	}
	return "", errors.New("environment variable " + key + " must be memory or postgres, got: " + value)
}
