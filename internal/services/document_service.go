package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-loader/internal/core"
	db "github.com/markdave123-py/contexta-loader/internal/core/database"
	"github.com/markdave123-py/contexta-loader/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-loader/internal/core/layout"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

// ListPageSize is how many documents one list call returns.
const ListPageSize = 25

// BlobEnqueuer hands a staged upload to the loader.
type BlobEnqueuer interface {
	Enqueue(ctx context.Context, evt ingestion_engine.BlobCreated) error
}

type DocumentService struct {
	db         core.DbClient
	storage    core.ObjectClient
	queue      BlobEnqueuer
	bucket     string
	imageTypes []string
	logger     *slog.Logger
}

func NewDocumentService(dbClient core.DbClient, storage core.ObjectClient, queue BlobEnqueuer, bucket string, imageTypes []string, logger *slog.Logger) *DocumentService {
	return &DocumentService{db: dbClient, storage: storage, queue: queue, bucket: bucket, imageTypes: imageTypes, logger: logger}
}

// UploadRequest is one file handed over by an authenticated user.
type UploadRequest struct {
	UserID         string
	Author         string
	ConversationID string
	FileName       string
	ContentType    string
	Body           io.Reader
}

// Upload records the document, stages the blob under
// {conversationID}/{documentID}/{fileName} with its ownership metadata and
// queues it for loading. The document id in the key keeps two uploads of the
// same file name in one conversation from sharing a blob. The returned status is the freshly created "Uploaded" row.
func (s *DocumentService) Upload(ctx context.Context, req UploadRequest) (*models.DocumentStatus, error) {
	fileName := path.Base(strings.ReplaceAll(strings.TrimSpace(req.FileName), "\\", "/"))
	if req.UserID == "" || strings.TrimSpace(req.ConversationID) == "" || fileName == "." || fileName == "/" {
		return nil, fmt.Errorf("%w: user, conversation and file name are required", ErrInvalidInput)
	}
	if !s.supported(fileName, req.ContentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, fileName)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc := &models.DocumentStatus{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		FileName:       fileName,
		Status:         models.StatusUploaded,
	}
	if err := s.db.CreateDocumentStatus(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document status: %w", err)
	}

	key := path.Join(req.ConversationID, doc.ID, fileName)
	metadata := map[string]string{
		models.MetaAuthor:           req.Author,
		models.MetaUserPrincipalID:  req.UserID,
		models.MetaConversationID:   req.ConversationID,
		models.MetaMasterDocumentID: doc.ID,
	}
	if _, err := s.storage.UploadFile(ctx, s.bucket, key, req.Body, contentType, metadata); err != nil {
		s.markFailed(ctx, doc)
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	if err := s.queue.Enqueue(ctx, ingestion_engine.BlobCreated{
		Bucket: s.bucket, Key: key, UserID: doc.UserID, DocumentID: doc.ID,
	}); err != nil {
		s.markFailed(ctx, doc)
		return nil, fmt.Errorf("queue upload: %w", err)
	}

	s.logger.Info("document uploaded", "document_id", doc.ID, "user_id", doc.UserID, "key", key)
	return doc, nil
}

func (s *DocumentService) supported(fileName, contentType string) bool {
	if layout.DetectFormat(fileName, contentType) != layout.FormatUnknown {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	return ext != "" && slices.Contains(s.imageTypes, ext)
}

func (s *DocumentService) markFailed(ctx context.Context, doc *models.DocumentStatus) {
	if err := s.db.UpdateDocumentStatus(context.WithoutCancel(ctx), doc.UserID, doc.ID, models.StatusFailed); err != nil {
		s.logger.Error("failed to mark upload failed", "document_id", doc.ID, "error", err)
		return
	}
	doc.Status = models.StatusFailed
}

// List returns one page of the user's documents, newest first.
func (s *DocumentService) List(ctx context.Context, userID string, offset int) ([]models.DocumentStatus, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}
	docs, err := s.db.ListDocumentStatuses(ctx, userID, ListPageSize, offset)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.DocumentStatus{}
	}
	return docs, nil
}

// Statuses returns the current status of the given documents. Ids that do
// not belong to the user are silently left out.
func (s *DocumentService) Statuses(ctx context.Context, userID string, ids []string) ([]models.DocumentStatus, error) {
	if len(ids) == 0 {
		return []models.DocumentStatus{}, nil
	}
	docs, err := s.db.GetDocumentStatuses(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.DocumentStatus{}
	}
	return docs, nil
}

// Delete removes the document and its indexed chunks and returns the ids of
// the removed chunks.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) ([]string, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	deleted, err := s.db.DeleteDocument(ctx, userID, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("document deleted", "document_id", id, "user_id", userID, "chunks", len(deleted))
	if deleted == nil {
		deleted = []string{}
	}
	return deleted, nil
}

// DeleteConversation removes every document the user uploaded to the
// conversation together with its chunks, and returns the removed document ids.
func (s *DocumentService) DeleteConversation(ctx context.Context, userID, conversationID string) ([]string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	deleted, err := s.db.DeleteDocumentsByConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation documents deleted", "conversation_id", conversationID, "user_id", userID, "documents", len(deleted))
	if deleted == nil {
		deleted = []string{}
	}
	return deleted, nil
}
