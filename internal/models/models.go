package models

import (
	"time"
)

// Document processing states, in the order a healthy upload walks through them.
const (
	StatusUploaded    = "Uploaded"
	StatusIndexing    = "Indexing"
	StatusIndexed     = "Indexed"
	StatusPIIDetected = "PII Detected"
	StatusFailed      = "Failed"
)

// Object metadata keys attached to every staged blob.
const (
	MetaAuthor           = "author"
	MetaUserPrincipalID  = "user_principal_id"
	MetaConversationID   = "conversation_id"
	MetaMasterDocumentID = "master_document_id"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentStatus tracks one uploaded file through the loader.
type DocumentStatus struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"userId"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	FileName       string    `db:"file_name" json:"fileName"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// DocumentChunk is one indexed section of a master document.
type DocumentChunk struct {
	ID               string    `db:"id" json:"id"`
	MasterDocumentID string    `db:"master_document_id" json:"master_document_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	ConversationID   string    `db:"conversation_id" json:"conversation_id"`
	FileName         string    `db:"file_name" json:"file_name"`
	Author           string    `db:"author" json:"author"`
	PageNumber       int       `db:"page_number" json:"page_number"`
	Position         int       `db:"position" json:"position"`
	Text             string    `db:"text" json:"text"`
	TokenCount       int       `db:"token_count" json:"token_count"`
	Embedding        []float32 `db:"embedding" json:"-"` // pgvector column
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ObjectInfo is what the loader needs to know about a staged blob before downloading it.
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}
