package config

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// Supply sources accepted by SUPPLY_SOURCE.
const (
	SupplyFromLedger = "ledger"
	SupplyFromChain  = "chain"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeGRPC is the gRPC endpoint of the chain node used for supply snapshots.
	NodeGRPC string
	// SupplySource selects where proposal supply snapshots come from.
	SupplySource string
	// SupplyDenoms maps governance mints to chain denoms, e.g. "urebal=uelys".
	SupplyDenoms map[string]string

	// AMQPURL is the broker receiving governance events. Empty disables publishing.
	AMQPURL string
	// AMQPQueue is the durable queue events are published to.
	AMQPQueue string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	SupplySource = strings.ToLower(getEnvOrDefault("SUPPLY_SOURCE", SupplyFromLedger))
	switch SupplySource {
	case SupplyFromLedger:
	case SupplyFromChain:
		if NodeGRPC, err = getEnv("NODE_GRPC"); err != nil {
			return err
		}
		if SupplyDenoms, err = parseDenomMap(getEnvOrDefault("SUPPLY_DENOM", "")); err != nil {
			return err
		}
	default:
		return errors.New("environment variable SUPPLY_SOURCE must be ledger or chain, got: " + SupplySource)
	}

	AMQPURL = getEnvOrDefault("AMQP_URL", "")
	AMQPQueue = getEnvOrDefault("AMQP_QUEUE", "rebal.events")

	log.Debug().
		Str("SupplySource", SupplySource).
		Str("NodeGRPC", NodeGRPC).
		Bool("AMQP", AMQPURL != "").
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// parseDenomMap parses "mint=denom,mint2=denom2". An empty string gives an
// empty map, in which case mints are queried under their own name.
func parseDenomMap(s string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		mint, denom, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || mint == "" || denom == "" {
			return nil, errors.New("invalid SUPPLY_DENOM entry: " + pair)
		}
		out[mint] = denom
	}
	return out, nil
}
