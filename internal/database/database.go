package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func Connect(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	log.Info().
		Int("url_length", len(dbURL)).
		Str("url_prefix", dbURL[:min(12, len(dbURL))]+"...").
		Msg("🔌 Connecting to database")

	db, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("✅ Database connection established")
	return db, nil
}

// Migrate is idempotent; every statement can run against an existing schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			reported_at TIMESTAMP NOT NULL,
			reporter_name TEXT NOT NULL CHECK (reporter_name <> ''),
			category TEXT NOT NULL,
			description TEXT NOT NULL CHECK (description <> ''),
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL
		)`,

		// Columns added after the first deployments
		`ALTER TABLE reports ADD COLUMN IF NOT EXISTS photo_ref TEXT`,
		`ALTER TABLE reports ADD COLUMN IF NOT EXISTS channel TEXT NOT NULL DEFAULT 'telegram'`,

		`CREATE INDEX IF NOT EXISTS idx_reports_reported_at ON reports(reported_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_category ON reports(category)`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Int("statements", len(migrations)).Msg("✅ Database migrations applied")
	return nil
}
