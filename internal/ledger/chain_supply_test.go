package ledger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/elys-network/rebal/internal/utils"
)

func TestChainSupplyKeepsProvisioning(t *testing.T) {
	_, err := NewChainSupply(NewMemory(), nil, nil)
	assert.ErrorIs(t, err, ErrGRPCConnectionInvalid)

	conn, err := grpc.NewClient("passthrough:///node.invalid:9090", grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	base := NewMemory()
	chain, err := NewChainSupply(base, conn, map[string]string{"urebal": "uelys"})
	require.NoError(t, err)

	prov, ok := AsProvisioner(chain)
	require.True(t, ok)
	assert.Same(t, base, prov)

	_, ok = AsProvisioner(nil)
	assert.False(t, ok)
}

func TestCoinAmount(t *testing.T) {
	v, err := coinAmount(sdk.NewCoin("uelys", sdkmath.NewInt(42)))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	huge := sdkmath.NewIntFromUint64(^uint64(0)).AddRaw(1)
	_, err = coinAmount(sdk.NewCoin("uelys", huge))
	assert.ErrorIs(t, err, utils.ErrOverflow)
}
