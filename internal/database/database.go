package database

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/stampcard/internal/models"
)

// Connect opens the Postgres database, creating it first when the DSN names
// one that does not exist, and migrates the schema. Failures are fatal.
func Connect(dsn string, verbose bool) *gorm.DB {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}

	conn, err := Open(dsn, level)
	if err != nil {
		log.Fatalf("[DB] %v", err)
	}
	return conn
}

// Open is Connect returning its failure instead of exiting.
func Open(dsn string, level logger.LogLevel) (*gorm.DB, error) {
	if err := ensureDatabase(dsn); err != nil {
		return nil, fmt.Errorf("failed to ensure database: %w", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return conn, nil
}

// Migrate brings the schema up to date with the models.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.Business{},
		&models.LoyaltyCard{},
		&models.Customer{},
		&models.CustomerLoyaltyCard{},
		&models.Transaction{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	// Idempotency keys used to be unique across all cards.
	if conn.Migrator().HasIndex(&models.Transaction{}, legacyIdempotencyIndex) {
		if err := conn.Migrator().DropIndex(&models.Transaction{}, legacyIdempotencyIndex); err != nil {
			return err
		}
	}

	return nil
}

const legacyIdempotencyIndex = "idx_transactions_idempotency_key"

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" || dbName == "postgres" {
		return nil
	}

	parsed.Path = "/postgres"
	sqlDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Printf("[DB] creating database %s", dbName)
	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
