package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	middleware "github.com/markdave123-py/contexta-loader/internal/api/middlewares"
	"github.com/markdave123-py/contexta-loader/internal/models"
	"github.com/markdave123-py/contexta-loader/internal/services"
)

// maxUploadMemory is how much of a multipart upload is buffered in memory;
// the rest spills to temporary files.
const maxUploadMemory = 32 << 20

// DocumentStore is what the document endpoints need from the document service.
type DocumentStore interface {
	Upload(ctx context.Context, req services.UploadRequest) (*models.DocumentStatus, error)
	List(ctx context.Context, userID string, offset int) ([]models.DocumentStatus, error)
	Statuses(ctx context.Context, userID string, ids []string) ([]models.DocumentStatus, error)
	Delete(ctx context.Context, userID, id string) ([]string, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) ([]string, error)
}

type DocumentHandler struct {
	docs          DocumentStore
	maxUploadSize int64
	logger        *slog.Logger
}

func NewDocumentHandler(docs DocumentStore, maxUploadSize int64, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxUploadSize: maxUploadSize, logger: logger}
}

type uploadForm struct {
	ConversationID string `validate:"required,max=200"`
}

type uploadResponse struct {
	Message        string                 `json:"message"`
	IsUploaded     bool                   `json:"isUploaded"`
	DocumentStatus *models.DocumentStatus `json:"document_status,omitempty"`
}

type statusesRequest struct {
	DocumentIDs []string `json:"documentIds" validate:"required,min=1,max=100,dive,required,uuid"`
}

type deleteRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type deleteConversationRequest struct {
	ConversationID string `json:"conversationId" validate:"required,max=200"`
}

// UploadDocument stages the multipart "file" for the conversation named by
// the "conversationId" form field.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	form := uploadForm{ConversationID: r.FormValue("conversationId")}
	if err := validate.Struct(form); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversationId is required"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file part"})
		return
	}
	defer file.Close()

	doc, err := h.docs.Upload(r.Context(), services.UploadRequest{
		UserID:         userID,
		Author:         middleware.UserNameFromContext(r.Context()),
		ConversationID: form.ConversationID,
		FileName:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Body:           file,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:        "File uploaded successfully",
		IsUploaded:     true,
		DocumentStatus: doc,
	})
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
			return
		}
		offset = n
	}

	docs, err := h.docs.List(r.Context(), userID, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) DocumentStatuses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req statusesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	docs, err := h.docs.Statuses(r.Context(), userID, req.DocumentIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	deleted, err := h.docs.Delete(r.Context(), userID, req.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

// DeleteConversationDocuments removes every document of a conversation, for
// use when the conversation itself is deleted. It answers with the ids of the
// removed documents, an empty list when there were none.
func (h *DocumentHandler) DeleteConversationDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req deleteConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	deleted, err := h.docs.DeleteConversation(r.Context(), userID, req.ConversationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}
