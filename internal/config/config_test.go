package config

import (
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/rebal/internal/governance"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "LOG_FILE", "WEB_PORT", "BECH32_PREFIX", "STORE_BACKEND", "LEDGER_BACKEND",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"SUPPLY_SOURCE", "SUPPLY_DENOM", "NODE_GRPC", "AMQP_URL", "AMQP_QUEUE",
		"KEEPER_ENABLED", "KEEPER_BASKET_ID", "KEEPER_BOT_ADDRESS", "KEEPER_BOT_TOKEN_ACCOUNT",
		"KEEPER_INTERVAL", "KEEPER_DEVIATION", "DEV_ENDPOINTS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	require.NoError(t, LoadConfig())

	assert.Equal(t, "info", LogLevel)
	assert.Empty(t, LogFile)
	assert.Equal(t, "8080", WebPort)
	assert.Equal(t, BackendMemory, StoreBackend)
	assert.Equal(t, BackendMemory, LedgerBackend)
	assert.Equal(t, SupplyFromLedger, SupplySource)
	assert.Equal(t, "rebal.events", AMQPQueue)
	assert.Empty(t, AMQPURL)
	assert.False(t, KeeperEnabled)
	assert.False(t, DevEndpoints)
	assert.Equal(t, "elys", sdk.GetConfig().GetBech32AccountAddrPrefix())
}

func TestLoadConfigPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "Postgres")
	require.Error(t, LoadConfig(), "DB_USER and DB_NAME are required")

	t.Setenv("DB_USER", "rebal")
	t.Setenv("DB_NAME", "rebal")
	t.Setenv("DB_PORT", "6543")
	require.NoError(t, LoadConfig())
	assert.Equal(t, BackendPostgres, StoreBackend)
	assert.Equal(t, "localhost", DB.Host)
	assert.Equal(t, 6543, DB.Port)
	assert.Equal(t, "disable", DB.SSLMode)

	t.Setenv("DB_PORT", "not-a-port")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigRejectsUnknownValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_BACKEND", "redis")
	assert.Error(t, LoadConfig())

	clearEnv(t)
	t.Setenv("SUPPLY_SOURCE", "oracle")
	assert.Error(t, LoadConfig())

	clearEnv(t)
	t.Setenv("DEV_ENDPOINTS", "sometimes")
	assert.Error(t, LoadConfig())

	clearEnv(t)
	t.Setenv("SUPPLY_SOURCE", "chain")
	assert.Error(t, LoadConfig(), "NODE_GRPC is required for chain supply")

	t.Setenv("NODE_GRPC", "localhost:9090")
	t.Setenv("SUPPLY_DENOM", "urebal=uelys")
	require.NoError(t, LoadConfig())
	assert.Equal(t, map[string]string{"urebal": "uelys"}, SupplyDenoms)
}

func TestLoadKeeperConfig(t *testing.T) {
	clearEnv(t)
	require.NoError(t, ConfigureAddressPrefix("elys"))
	t.Setenv("KEEPER_ENABLED", "true")
	assert.Error(t, LoadConfig(), "keeper settings are required once enabled")

	bot := sdk.AccAddress(address.Module("config-test", []byte("bot")))
	rewards := sdk.AccAddress(address.Module("config-test", []byte("bot/rewards")))
	t.Setenv("KEEPER_BASKET_ID", "basket-1")
	t.Setenv("KEEPER_BOT_ADDRESS", bot.String())
	t.Setenv("KEEPER_BOT_TOKEN_ACCOUNT", rewards.String())
	t.Setenv("KEEPER_INTERVAL", "30s")
	t.Setenv("KEEPER_DEVIATION", "250")
	require.NoError(t, LoadConfig())

	assert.True(t, KeeperEnabled)
	assert.Equal(t, "basket-1", KeeperBasketID)
	assert.True(t, bot.Equals(KeeperBot))
	assert.True(t, rewards.Equals(KeeperBotTokenAccount))
	assert.Equal(t, 30*time.Second, KeeperInterval)
	assert.Equal(t, uint64(250), KeeperDeviation)

	t.Setenv("KEEPER_BOT_ADDRESS", "not-bech32")
	assert.Error(t, LoadConfig())
}

func TestConfigureAddressPrefixIsSealed(t *testing.T) {
	require.NoError(t, ConfigureAddressPrefix("elys"))
	assert.Error(t, ConfigureAddressPrefix("cosmos"))
}

func TestParseDenomMap(t *testing.T) {
	m, err := parseDenomMap("")
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = parseDenomMap("urebal=uelys, ugov=ustake")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"urebal": "uelys", "ugov": "ustake"}, m)

	_, err = parseDenomMap("urebal")
	assert.Error(t, err)
	_, err = parseDenomMap("=uelys")
	assert.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	p := WithDefaults(governance.InitParams{Name: "Majors", Threshold: 42})
	assert.Equal(t, uint64(42), p.Threshold, "explicit values are kept")
	assert.Equal(t, DefaultBasketParameters.SlashFactor, p.SlashFactor)
	assert.Equal(t, DefaultBasketParameters.CooldownSeconds, p.CooldownSeconds)
	assert.Equal(t, DefaultBasketParameters.QuorumPercentage, p.QuorumPercentage)
	assert.NotNil(t, p.EligibleAssets)
	assert.NotZero(t, DefaultBasketParameters.Threshold)
}
