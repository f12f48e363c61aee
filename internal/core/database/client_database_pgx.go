package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/contexta-loader/internal/config"
	"github.com/markdave123-py/contexta-loader/internal/core"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

// ErrNotFound is returned when a row addressed by id does not exist for the user.
var ErrNotFound = errors.New("db: not found")

// ErrConflict is returned when an insert hits a unique constraint.
var ErrConflict = errors.New("db: already exists")

const (
	uniqueViolation  = "23505"
	invalidTextValue = "22P02"
)

// isPgCode reports whether err carries the given Postgres error code.
func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(max(cfg.DBMaxOpenConns/2, 1))
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if cfg.EmbedDim > 0 {
		if err := checkEmbeddingColumn(ctx, db, cfg.EmbedDim); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	now := time.Now().UTC()
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, orNow(user.CreatedAt, now), orNow(user.UpdatedAt, now))
	if isPgCode(err, uniqueViolation) {
		return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Document status

const statusColumns = `id, user_id, conversation_id, file_name, status, created_at, updated_at`

func (c *DatabaseClient) CreateDocumentStatus(ctx context.Context, doc *models.DocumentStatus) error {
	if doc == nil {
		return errors.New("nil document status")
	}
	const q = `
		INSERT INTO document_status (` + statusColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = orNow(doc.CreatedAt, now), orNow(doc.UpdatedAt, now)
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.ConversationID, doc.FileName, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document status: %w", err)
	}
	return nil
}

func (c *DatabaseClient) GetDocumentStatuses(ctx context.Context, userID string, ids []string) ([]models.DocumentStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
		SELECT ` + statusColumns + `
		FROM document_status
		WHERE user_id = $1 AND id::text = ANY($2)
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("query document statuses: %w", err)
	}
	return scanStatuses(rows)
}

func (c *DatabaseClient) ListDocumentStatuses(ctx context.Context, userID string, limit, offset int) ([]models.DocumentStatus, error) {
	const q = `
		SELECT ` + statusColumns + `
		FROM document_status
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := c.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list document statuses: %w", err)
	}
	return scanStatuses(rows)
}

func scanStatuses(rows *sql.Rows) ([]models.DocumentStatus, error) {
	defer rows.Close()

	var out []models.DocumentStatus
	for rows.Next() {
		var d models.DocumentStatus
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.ConversationID, &d.FileName, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, userID, id, status string) error {
	const q = `
		UPDATE document_status
		SET status = $3, updated_at = now()
		WHERE user_id = $1 AND id = $2
	`
	res, err := c.db.ExecContext(ctx, q, userID, id, status)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes the status row and its chunks in one transaction.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, userID, id string) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM document_status WHERE user_id = $1 AND id = $2`, userID, id)
	if isPgCode(err, invalidTextValue) {
		// an id that is not a UUID cannot name a row
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	rows, err := tx.QueryContext(ctx,
		`DELETE FROM document_chunks WHERE user_id = $1 AND master_document_id = $2 RETURNING id`, userID, id)
	if err != nil {
		return nil, fmt.Errorf("delete document chunks: %w", err)
	}
	var deleted []string
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			rows.Close()
			return nil, err
		}
		deleted = append(deleted, chunkID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, nil
}

// DeleteDocumentsByConversation removes every document the user uploaded to
// the conversation, status rows and chunks together, and returns the ids of the
// removed documents. A conversation without documents is not an error.
func (c *DatabaseClient) DeleteDocumentsByConversation(ctx context.Context, userID, conversationID string) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`DELETE FROM document_status WHERE user_id = $1 AND conversation_id = $2 RETURNING id`, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("delete conversation documents: %w", err)
	}
	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		deleted = append(deleted, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE user_id = $1 AND conversation_id = $2`, userID, conversationID); err != nil {
		return nil, fmt.Errorf("delete conversation chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, nil
}

// Document chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, master_document_id, user_id, conversation_id, file_name, author,
			 page_number, position, text, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)

		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.MasterDocumentID, ch.UserID, ch.ConversationID, ch.FileName, ch.Author,
			ch.PageNumber, ch.Position, ch.Text, ch.TokenCount, vec, orNow(ch.CreatedAt, now),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.Position, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, userID, masterDocumentID string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE user_id = $1 AND master_document_id = $2`, userID, masterDocumentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
