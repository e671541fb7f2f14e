package main

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/elys-network/rebal/internal/clock"
	"github.com/elys-network/rebal/internal/config"
	"github.com/elys-network/rebal/internal/events"
	"github.com/elys-network/rebal/internal/governance"
	"github.com/elys-network/rebal/internal/incentive"
	"github.com/elys-network/rebal/internal/keeper"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/metrics"
	"github.com/elys-network/rebal/internal/state"
	"github.com/elys-network/rebal/internal/types"
	"github.com/elys-network/rebal/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	AMQP_DIAL_RETRIES     = 5
	AMQP_RETRY_DELAY      = 3 * time.Second
	SHUTDOWN_GRACE_PERIOD = 10 * time.Second
)

// main is the entry point for the basket governance service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var logWriters []io.Writer
	if config.LogFile != "" {
		logFile, err := logger.FileWriter(config.LogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.LogFile).Msg("Failed to open log file")
		}
		defer logFile.Close()
		logWriters = append(logWriters, logFile)
	}
	logger.Initialize(config.LogLevel, logWriters...)
	log.Info().Msg("Basket governance service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	usesDB := config.StoreBackend == config.BackendPostgres || config.LedgerBackend == config.BackendPostgres
	if usesDB {
		if err := state.InitDB(config.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	}

	// --- 2. Storage and Ledger ---
	store, counter, err := openStore()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open basket store")
	}

	var ledg ledger.Ledger = ledger.NewMemory()
	if config.LedgerBackend == config.BackendPostgres {
		ledg = ledger.NewPostgres(state.DB)
	}
	log.Info().Str("store", config.StoreBackend).Str("ledger", config.LedgerBackend).Msg("Backends selected")

	if config.SupplySource == config.SupplyFromChain {
		conn, err := dialNode(config.NodeGRPC)
		if err != nil {
			log.Fatal().Err(err).Msg("gRPC connection error")
		}
		defer conn.Close()
		log.Info().Str("endpoint", config.NodeGRPC).Msg("gRPC connected, governance supply read from chain")

		chain, err := ledger.NewChainSupply(ledg, conn, config.SupplyDenoms)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to wrap ledger with chain supply")
		}
		ledg = chain
	}

	// --- 3. Event Notifiers ---
	notifiers := events.Multi{events.NewLogNotifier()}
	if config.StoreBackend == config.BackendPostgres {
		pn, err := events.NewPostgresNotifier(state.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create event journal")
		}
		notifiers = append(notifiers, pn)
	}
	if config.AMQPURL != "" {
		conn, err := events.DialAMQP(config.AMQPURL, AMQP_DIAL_RETRIES, AMQP_RETRY_DELAY)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to event broker")
		}
		defer conn.Close()
		an, err := events.NewAMQPNotifier(conn, config.AMQPQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create AMQP notifier")
		}
		defer an.Close()
		notifiers = append(notifiers, an)
		log.Info().Str("queue", config.AMQPQueue).Msg("Publishing events to RabbitMQ")
	}

	// --- 4. Engines ---
	m := metrics.New()
	govCfg := governance.Config{
		Store:    store,
		Ledger:   ledg,
		Clock:    clock.System{},
		Notifier: notifiers,
		Metrics:  m,
	}
	registry, err := governance.NewRegistry(govCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create basket registry")
	}
	gov, err := governance.NewEngine(govCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create governance engine")
	}
	inc, err := incentive.NewEngine(incentive.Config{
		Store:    store,
		Ledger:   ledg,
		Clock:    clock.System{},
		Notifier: notifiers,
		Metrics:  m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create incentive engine")
	}

	// --- 5. Web Server ---
	deps := web.Deps{
		Registry:       registry,
		Governance:     gov,
		Incentives:     inc,
		Metrics:        m,
		BasketDefaults: config.WithDefaults,
	}
	if usesDB {
		deps.HealthCheck = func(context.Context) error { return state.TestDBConnection() }
	}
	if config.DevEndpoints {
		prov, ok := ledger.AsProvisioner(ledg)
		if !ok {
			log.Fatal().Str("ledger", config.LedgerBackend).Msg("DEV_ENDPOINTS requires a ledger that can provision accounts")
		}
		deps.Provisioner = prov
	} else if config.LedgerBackend == config.BackendMemory {
		log.Warn().Msg("Memory ledger starts empty and DEV_ENDPOINTS is off: votes and paid rebalances will fail until accounts exist")
	}
	webServer, err := web.NewWebServer(config.WebPort, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting basket governance API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	// --- 6. Optional Keeper Loop ---
	if config.KeeperEnabled {
		k, err := keeper.NewKeeper(keeper.Config{
			BasketID:        config.KeeperBasketID,
			Bot:             config.KeeperBot,
			BotTokenAccount: config.KeeperBotTokenAccount,
			Baskets:         store,
			Incentives:      inc,
			Rebalancer:      staticDeviation(config.KeeperDeviation),
			Counter:         counter,
			Clock:           clock.System{},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create keeper")
		}
		log.Info().Str("interval", config.KeeperInterval.String()).Msg("Starting keeper loop")
		go k.RunLoop(ctx, config.KeeperInterval)
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_GRACE_PERIOD)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Basket governance service stopped")
}

// openStore returns the configured basket store with a matching cycle counter.
func openStore() (state.Store, state.CycleCounter, error) {
	if config.StoreBackend != config.BackendPostgres {
		return state.NewMemoryStore(), &state.MemoryCycleCounter{}, nil
	}
	store, err := state.NewPostgresStore(state.DB)
	if err != nil {
		return nil, nil, err
	}
	counter, err := state.NewPostgresCycleCounter(state.DB)
	if err != nil {
		return nil, nil, err
	}
	return store, counter, nil
}

// dialNode opens a gRPC client, using TLS for port 443 endpoints.
func dialNode(endpoint string) (*grpc.ClientConn, error) {
	if endpoint == "" {
		return nil, errors.New("NODE_GRPC is empty")
	}
	var creds grpc.DialOption
	if strings.Contains(endpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	return grpc.NewClient(endpoint, creds)
}

// staticDeviation reports a fixed deviation. Trading happens outside this process.
func staticDeviation(deviation uint64) keeper.RebalancerFunc {
	return func(_ context.Context, basket *types.Basket) (uint64, error) {
		log.Debug().Str("basket", basket.ID).Uint64("deviation", deviation).Msg("Reporting configured deviation")
		return deviation, nil
	}
}
