package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduling-core/config"
)

const (
	migrationUp   = "up"
	migrationDown = "down"
)

func migrateUp(m *migrate.Migrate) error {
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no migrations to apply")
			return nil
		}
		return err
	}

	log.Info().Msg("migrations applied successfully")
	return nil
}

func migrateDown(m *migrate.Migrate) error {
	if err := m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no migrations to revert")
			return nil
		}
		return err
	}

	log.Info().Msg("migrations reverted successfully")
	return nil
}

func main() {
	var databaseURL, migrationsPath, migrationsTable, migrationType string
	flag.StringVar(&migrationType, "migration-type", migrationUp, "migration type (up or down)")
	flag.StringVar(&databaseURL, "database-url", "", "postgres URL, defaults to the database section of the config")
	flag.StringVar(&migrationsPath, "migrations-path", "./migrations", "path to migrations")
	flag.StringVar(&migrationsTable, "migrations-table", "schema_migrations", "name of migrations table")
	flag.Parse()

	if migrationType != migrationUp && migrationType != migrationDown {
		log.Fatal().Str("migration_type", migrationType).Msg("unknown migration type")
	}

	if databaseURL == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load configuration")
		}
		databaseURL = cfg.Database.URL()
	}

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		withTable(databaseURL, migrationsTable),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize migrations")
	}
	defer m.Close()

	if migrationType == migrationDown {
		err = migrateDown(m)
	} else {
		err = migrateUp(m)
	}
	if err != nil {
		log.Fatal().Err(err).Str("migration_type", migrationType).Msg("migration failed")
	}
}

func withTable(databaseURL, table string) string {
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sx-migrations-table=%s", databaseURL, sep, table)
}
