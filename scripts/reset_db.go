package main

import (
	"context"
	"flag"
	"os"

	"github.com/elys-network/rebal/internal/config"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	cyclesOnly := flag.Bool("cycles-only", false, "only reset the keeper cycle counter, keep every other table")
	flag.Parse()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	// The reset always targets PostgreSQL, whatever the service backends are.
	if os.Getenv("STORE_BACKEND") == "" {
		os.Setenv("STORE_BACKEND", config.BackendPostgres)
	}
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if config.DB.DBName == "" {
		log.Fatal().Msg("STORE_BACKEND or LEDGER_BACKEND must be postgres to reset the database.")
	}

	log.Info().
		Str("host", config.DB.Host).
		Int("port", config.DB.Port).
		Str("user", config.DB.User).
		Str("dbname", config.DB.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(config.DB); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if *cyclesOnly {
		counter, err := state.NewPostgresCycleCounter(state.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open cycle counter")
		}
		if err := counter.Reset(context.Background(), 0); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset cycle counter")
		}
		log.Info().Msg("Cycle counter reset to 0")
		return
	}

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}
