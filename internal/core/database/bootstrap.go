package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// schemaVersion is the contexta_meta row written by scripts/initdb.sql.
// Version 2 adds the per-conversation indexes used by conversation deletes.
const schemaVersion = 2

// EnsureBootstrapped applies the embedded schema unless the meta table already
// records the current version. The script itself is idempotent.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'contexta_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if !exists {
		logger.Info("bootstrapping database schema", "version", schemaVersion)
		return runBootstrap(ctxBoot, db)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, `SELECT EXISTS (SELECT 1 FROM contexta_meta WHERE version = $1)`, schemaVersion).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		logger.Info("upgrading database schema", "version", schemaVersion)
		return runBootstrap(ctxBoot, db)
	}

	logger.Debug("database schema up to date", "version", schemaVersion)
	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB) error {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

// checkEmbeddingColumn compares the declared width of document_chunks.embedding
// with the configured embedding size, so a mismatch fails at startup instead of
// on the first insert. pgvector stores the width as the column's type modifier.
func checkEmbeddingColumn(ctx context.Context, db *sql.DB, want int) error {
	var width int
	err := db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'document_chunks'::regclass AND attname = 'embedding'`).
		Scan(&width)
	if err != nil {
		return fmt.Errorf("embedding column check failed: %w", err)
	}
	if width != want {
		return fmt.Errorf("embedding column holds %d dimensions, EMBED_DIM is %d", width, want)
	}
	return nil
}
