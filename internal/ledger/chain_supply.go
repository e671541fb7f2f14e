package ledger

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"google.golang.org/grpc"

	"github.com/elys-network/rebal/internal/utils"
)

// ErrGRPCConnectionInvalid is returned when ChainSupply has no connection.
var ErrGRPCConnectionInvalid = errors.New("gRPC connection is invalid")

// ChainSupply reads total supply from a chain node's bank module instead of
// the wrapped ledger. Every other method is delegated.
type ChainSupply struct {
	Ledger
	bank banktypes.QueryClient
	// denoms maps a governance mint to its on-chain denom when they differ.
	denoms map[string]string
}

// NewChainSupply wraps base so that Supply queries the node behind conn.
func NewChainSupply(base Ledger, conn *grpc.ClientConn, denoms map[string]string) (*ChainSupply, error) {
	if conn == nil {
		return nil, ErrGRPCConnectionInvalid
	}
	return &ChainSupply{
		Ledger: base,
		bank:   banktypes.NewQueryClient(conn),
		denoms: denoms,
	}, nil
}

func (c *ChainSupply) Supply(ctx context.Context, mint string) (uint64, error) {
	denom := mint
	if d, ok := c.denoms[mint]; ok {
		denom = d
	}
	resp, err := c.bank.SupplyOf(ctx, &banktypes.QuerySupplyOfRequest{Denom: denom})
	if err != nil {
		return 0, fmt.Errorf("failed to query supply of %s: %w", denom, err)
	}
	return coinAmount(resp.Amount)
}

func coinAmount(c sdk.Coin) (uint64, error) {
	amount, err := utils.SDKIntToUint64(c.Amount)
	if err != nil {
		return 0, fmt.Errorf("supply of %s out of range: %w", c.Denom, err)
	}
	return amount, nil
}

// Unwrap returns the decorated ledger.
func (c *ChainSupply) Unwrap() Ledger { return c.Ledger }
