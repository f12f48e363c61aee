package core

import (
	"context"
	"io"

	"github.com/markdave123-py/contexta-loader/internal/models"
)

// DbClient defines all persistence operations the loader needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
// Every document query is scoped to the owning user.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocumentStatus(ctx context.Context, doc *models.DocumentStatus) error
	GetDocumentStatuses(ctx context.Context, userID string, ids []string) ([]models.DocumentStatus, error)
	ListDocumentStatuses(ctx context.Context, userID string, limit, offset int) ([]models.DocumentStatus, error)
	UpdateDocumentStatus(ctx context.Context, userID, id, status string) error
	// DeleteDocument removes the status row and every chunk of the master
	// document together and returns the ids of the removed chunks.
	DeleteDocument(ctx context.Context, userID, id string) ([]string, error)
	// DeleteDocumentsByConversation removes every document of the conversation
	// and returns the ids of the removed documents.
	DeleteDocumentsByConversation(ctx context.Context, userID, conversationID string) ([]string, error)

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, userID, masterDocumentID string) (int64, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any S3-compatible object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string, metadata map[string]string) (url string, err error)
	GetObjectInfo(ctx context.Context, bucket, key string) (*models.ObjectInfo, error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
