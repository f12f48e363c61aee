package ingestion_engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/markdave123-py/contexta-loader/internal/core"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

var errBoom = errors.New("boom")

type fakeDB struct {
	mu            sync.Mutex
	statuses      map[string][]string // document id -> every status written
	chunks        []models.DocumentChunk
	deletedChunks []string
	insertErr     error
	indexed       chan string
}

func newFakeDB() *fakeDB {
	return &fakeDB{statuses: map[string][]string{}, indexed: make(chan string, 8)}
}

func (f *fakeDB) CreateUser(context.Context, *models.User) error { return nil }
func (f *fakeDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeDB) CreateDocumentStatus(context.Context, *models.DocumentStatus) error { return nil }
func (f *fakeDB) GetDocumentStatuses(context.Context, string, []string) ([]models.DocumentStatus, error) {
	return nil, nil
}
func (f *fakeDB) ListDocumentStatuses(context.Context, string, int, int) ([]models.DocumentStatus, error) {
	return nil, nil
}
func (f *fakeDB) DeleteDocument(context.Context, string, string) ([]string, error) { return nil, nil }
func (f *fakeDB) DeleteDocumentsByConversation(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, _ string, id, status string) error {
	f.mu.Lock()
	f.statuses[id] = append(f.statuses[id], status)
	f.mu.Unlock()
	if status == models.StatusIndexed {
		f.indexed <- id
	}
	return nil
}

func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeDB) DeleteChunksByDocument(_ context.Context, _ string, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedChunks = append(f.deletedChunks, id)
	return 0, nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) history(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses[id]...)
}

type fakeObjects struct {
	mu      sync.Mutex
	infos   map[string]*models.ObjectInfo
	data    map[string][]byte
	deleted []string
}

func (f *fakeObjects) put(key, contentType string, data []byte, meta map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infos == nil {
		f.infos, f.data = map[string]*models.ObjectInfo{}, map[string][]byte{}
	}
	f.infos[key] = &models.ObjectInfo{Bucket: "docs", Key: key, Size: int64(len(data)), ContentType: contentType, Metadata: meta}
	f.data[key] = data
}

func (f *fakeObjects) UploadFile(context.Context, string, string, io.Reader, string, map[string]string) (string, error) {
	return "", nil
}

func (f *fakeObjects) GetObjectInfo(_ context.Context, _, key string) (*models.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return info, nil
}

func (f *fakeObjects) GetFile(_ context.Context, _, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeObjects) DeleteFile(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
	// when set, every call announces itself and then blocks until ctx ends
	started chan struct{}
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.started != nil {
		f.started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

type fakeVision struct{ description string }

func (f fakeVision) DescribeImage(context.Context, []byte, string) (string, error) {
	return f.description, nil
}

type fakePII struct {
	entities []core.PIIEntity
	pages    int
}

func (f *fakePII) DetectPII(context.Context, string, []string) ([]core.PIIEntity, error) {
	f.pages++
	return f.entities, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
