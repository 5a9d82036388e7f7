// cmd/dbtools/migrate/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/db"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		dbPath         = flag.String("db", "", "Path to SQLite database")
		migrationsPath = flag.String("migrations", "", "Migrations directory (defaults to the embedded set)")
		command        = flag.String("command", "", "Command to run (up, down, version, force)")
		forceVersion   = flag.String("version", "", "Version for the force command")
	)
	flag.Parse()

	if *dbPath == "" || *command == "" {
		flag.Usage()
		os.Exit(1)
	}

	m, err := newMigrate(*dbPath, *migrationsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration init failed")
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Migration up failed")
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Migration down failed")
		}
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Get version failed")
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
		return
	case "force":
		v, err := strconv.Atoi(*forceVersion)
		if err != nil {
			log.Fatal().Str("version", *forceVersion).Msg("force needs a numeric -version")
		}
		if err := m.Force(v); err != nil {
			log.Fatal().Err(err).Msg("Migration force failed")
		}
	default:
		log.Fatal().Str("command", *command).Msg("Unknown command")
	}
	log.Info().Str("command", *command).Str("db", *dbPath).Msg("Migration finished")
}

func newMigrate(dbPath, migrationsPath string) (*migrate.Migrate, error) {
	dbURL := fmt.Sprintf("sqlite3://%s", dbPath)
	if migrationsPath != "" {
		return migrate.New(fmt.Sprintf("file://%s", migrationsPath), dbURL)
	}
	source, err := iofs.New(db.MigrationsFS(), "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", source, dbURL)
}
