package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	middleware "github.com/markdave123-py/contexta-loader/internal/api/middlewares"
	"github.com/markdave123-py/contexta-loader/internal/models"
	"github.com/markdave123-py/contexta-loader/internal/services"
)

const testSecret = "handler-secret"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubUsers struct {
	created *models.User
	err     error
}

func (s *stubUsers) Create(_ context.Context, firstName, email, _ string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = &models.User{ID: "user-1", FirstName: firstName, Email: email}
	return s.created, nil
}

func (s *stubUsers) Authenticate(_ context.Context, email, password string) (*models.User, error) {
	if password != "correct-horse" {
		return nil, services.ErrUnauthorized
	}
	return &models.User{ID: "user-1", Email: email}, nil
}

type stubDocs struct {
	upload     services.UploadRequest
	body       string
	listOffset int
	ids        []string
	deleteErr  error
	uploadErr  error
	deletedIn  string
}

func (s *stubDocs) Upload(_ context.Context, req services.UploadRequest) (*models.DocumentStatus, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	b, _ := io.ReadAll(req.Body)
	s.upload, s.body = req, string(b)
	return &models.DocumentStatus{ID: docA, UserID: req.UserID, ConversationID: req.ConversationID,
		FileName: req.FileName, Status: models.StatusUploaded}, nil
}

func (s *stubDocs) List(_ context.Context, _ string, offset int) ([]models.DocumentStatus, error) {
	s.listOffset = offset
	return []models.DocumentStatus{{ID: docA}}, nil
}

func (s *stubDocs) Statuses(_ context.Context, _ string, ids []string) ([]models.DocumentStatus, error) {
	s.ids = ids
	return []models.DocumentStatus{{ID: ids[0], Status: models.StatusIndexing}}, nil
}

func (s *stubDocs) Delete(_ context.Context, _, id string) ([]string, error) {
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	return []string{"chunk-a"}, nil
}

func (s *stubDocs) DeleteConversation(_ context.Context, _, conversationID string) ([]string, error) {
	s.deletedIn = conversationID
	return []string{docA, docB}, nil
}

const (
	docA = "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f"
	docB = "0b9e8d7c-6a5f-4e3d-9c2b-1a0f9e8d7c6b"
)

func withUser(r *http.Request) *http.Request {
	token, _ := middleware.NewToken(testSecret, "user-1", "Ada", time.Hour)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// serve runs the handler behind the JWT middleware as the router does.
func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	middleware.JWTMiddleware(testSecret)(h).ServeHTTP(rec, r)
	return rec
}

func TestSignupAndLogin(t *testing.T) {
	users := &stubUsers{}
	h := NewAuthHandler(users, testSecret, discard)

	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"first_name":"Ada","email":"ada@example.com","password":"correct-horse"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rec.Code, rec.Body)
	}
	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Token == "" {
		t.Fatalf("signup response: %v %#v", err, resp)
	}

	// the issued token must pass the middleware and carry the author name
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	var author string
	mw := middleware.JWTMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		author = middleware.UserNameFromContext(r.Context())
	}))
	mw.ServeHTTP(httptest.NewRecorder(), req)
	if author != "Ada" {
		t.Errorf("token author %q", author)
	}

	cases := []struct {
		name string
		call http.HandlerFunc
		body string
		want int
	}{
		{"signup bad json", h.Signup, `{`, http.StatusBadRequest},
		{"signup bad email", h.Signup, `{"email":"nope","password":"correct-horse"}`, http.StatusBadRequest},
		{"signup short password", h.Signup, `{"email":"a@b.co","password":"short"}`, http.StatusBadRequest},
		{"login ok", h.Login, `{"email":"ada@example.com","password":"correct-horse"}`, http.StatusOK},
		{"login wrong password", h.Login, `{"email":"ada@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"login missing password", h.Login, `{"email":"ada@example.com"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.call(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestSignupConflict(t *testing.T) {
	h := NewAuthHandler(&stubUsers{err: services.ErrUserExists}, testSecret, discard)
	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`)))
	if rec.Code != http.StatusConflict {
		t.Errorf("status %d", rec.Code)
	}
}

func multipartUpload(t *testing.T, conversationID, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if conversationID != "" {
		_ = mw.WriteField("conversationId", conversationID)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.WriteString(fw, content)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return withUser(req)
}

func TestUploadDocument(t *testing.T) {
	docs := &stubDocs{}
	h := NewDocumentHandler(docs, 1<<20, discard)

	rec := serve(h.UploadDocument, multipartUpload(t, "conv-1", "notes.txt", "hello"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.IsUploaded || resp.DocumentStatus == nil || resp.DocumentStatus.ID != docA {
		t.Errorf("unexpected response %#v", resp)
	}
	if docs.upload.UserID != "user-1" || docs.upload.Author != "Ada" || docs.upload.ConversationID != "conv-1" ||
		docs.upload.FileName != "notes.txt" || docs.body != "hello" {
		t.Errorf("unexpected upload %#v body %q", docs.upload, docs.body)
	}

	if rec := serve(h.UploadDocument, multipartUpload(t, "", "notes.txt", "x")); rec.Code != http.StatusBadRequest {
		t.Errorf("missing conversation: status %d", rec.Code)
	}
	if rec := serve(h.UploadDocument, multipartUpload(t, "conv-1", "", "")); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status %d", rec.Code)
	}

	docs.uploadErr = services.ErrUnsupportedFile
	if rec := serve(h.UploadDocument, multipartUpload(t, "conv-1", "a.exe", "x")); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("unsupported file: status %d", rec.Code)
	}

	noAuth := httptest.NewRecorder()
	h.UploadDocument(noAuth, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	if noAuth.Code != http.StatusUnauthorized {
		t.Errorf("no user: status %d", noAuth.Code)
	}
}

func TestListDocuments(t *testing.T) {
	docs := &stubDocs{}
	h := NewDocumentHandler(docs, 0, discard)

	rec := serve(h.ListDocuments, withUser(httptest.NewRequest(http.MethodGet, "/api/documents/list?offset=25", nil)))
	if rec.Code != http.StatusOK || docs.listOffset != 25 {
		t.Fatalf("status %d offset %d", rec.Code, docs.listOffset)
	}
	rec = serve(h.ListDocuments, withUser(httptest.NewRequest(http.MethodGet, "/api/documents/list?offset=abc", nil)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad offset: status %d", rec.Code)
	}
}

func TestDocumentStatuses(t *testing.T) {
	docs := &stubDocs{}
	h := NewDocumentHandler(docs, 0, discard)

	rec := serve(h.DocumentStatuses, withUser(httptest.NewRequest(http.MethodPost, "/api/documents/statuses",
		strings.NewReader(`{"documentIds":["`+docA+`","`+docB+`"]}`))))
	if rec.Code != http.StatusOK || len(docs.ids) != 2 {
		t.Fatalf("status %d ids %v", rec.Code, docs.ids)
	}
	var got []models.DocumentStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil || got[0].Status != models.StatusIndexing {
		t.Errorf("response: %v %#v", err, got)
	}

	for _, body := range []string{`{}`, `{"documentIds":[]}`, `{"documentIds":[""]}`, `{"documentIds":["doc-1"]}`} {
		rec := serve(h.DocumentStatuses, withUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d", body, rec.Code)
		}
	}
}

func TestDeleteDocument(t *testing.T) {
	docs := &stubDocs{}
	h := NewDocumentHandler(docs, 0, discard)

	rec := serve(h.DeleteDocument, withUser(httptest.NewRequest(http.MethodDelete, "/api/document/delete",
		strings.NewReader(`{"id":"`+docA+`"}`))))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "chunk-a") {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}

	if rec := serve(h.DeleteDocument, withUser(httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(`{}`)))); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: status %d", rec.Code)
	}

	// a malformed id never reaches the store
	if rec := serve(h.DeleteDocument, withUser(httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(`{"id":"not-a-uuid"}`)))); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status %d", rec.Code)
	}

	docs.deleteErr = services.ErrNotFound
	if rec := serve(h.DeleteDocument, withUser(httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(`{"id":"`+docB+`"}`)))); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d", rec.Code)
	}
}

func TestDeleteConversationDocuments(t *testing.T) {
	docs := &stubDocs{}
	h := NewDocumentHandler(docs, 0, discard)

	rec := serve(h.DeleteConversationDocuments, withUser(httptest.NewRequest(http.MethodDelete, "/api/conversation/documents",
		strings.NewReader(`{"conversationId":"conv-1"}`))))
	if rec.Code != http.StatusOK || docs.deletedIn != "conv-1" {
		t.Fatalf("status %d conversation %q: %s", rec.Code, docs.deletedIn, rec.Body)
	}
	var got []string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil || len(got) != 2 {
		t.Errorf("response: %v %v", err, got)
	}

	if rec := serve(h.DeleteConversationDocuments, withUser(httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(`{}`)))); rec.Code != http.StatusBadRequest {
		t.Errorf("missing conversation: status %d", rec.Code)
	}
}
