package objectclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	cfg "github.com/markdave123-py/contexta-loader/internal/config"
)

type storedObject struct {
	body        []byte
	contentType string
	meta        map[string]string
}

// fakeS3 is a path-style S3 endpoint keeping objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]storedObject
	deleted []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		meta := map[string]string{}
		for k, v := range r.Header {
			if lk := strings.ToLower(k); strings.HasPrefix(lk, "x-amz-meta-") {
				meta[strings.TrimPrefix(lk, "x-amz-meta-")] = v[0]
			}
		}
		f.objects[path] = storedObject{body: body, contentType: r.Header.Get("Content-Type"), meta: meta}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		for k, v := range obj.meta {
			w.Header().Set("X-Amz-Meta-"+k, v)
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(obj.body)
		}
	case http.MethodDelete:
		delete(f.objects, path)
		f.deleted = append(f.deleted, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeClient(t *testing.T) (*S3Client, *fakeS3) {
	t.Helper()
	// keep request bodies plain so the fake can store them verbatim
	t.Setenv("AWS_REQUEST_CHECKSUM_CALCULATION", "when_required")
	t.Setenv("AWS_RESPONSE_CHECKSUM_VALIDATION", "when_required")

	fake := &fakeS3{objects: map[string]storedObject{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewS3Client(context.Background(), &cfg.Config{
		AwsAccessKey: "test",
		AwsSecretKey: "test",
		AwsRegion:    "us-east-1",
		BucketName:   "docs",
		S3Endpoint:   srv.URL + "/",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}
	return c, fake
}

func TestS3Client_UploadHeadGetDelete(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	meta := map[string]string{
		"author":             "Ada",
		"user_principal_id":  "user-1",
		"conversation_id":    "conv-1",
		"master_document_id": "doc-1",
	}
	url, err := c.UploadFile(ctx, "docs", "conv-1/report.txt", bytes.NewReader([]byte("hello world")), "text/plain", meta)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if !strings.HasSuffix(url, "/docs/conv-1/report.txt") {
		t.Errorf("unexpected url %q", url)
	}
	if got := fake.objects["docs/conv-1/report.txt"].meta["user_principal_id"]; got != "user-1" {
		t.Errorf("metadata not sent, got %q", got)
	}

	info, err := c.GetObjectInfo(ctx, "docs", "conv-1/report.txt")
	if err != nil {
		t.Fatalf("GetObjectInfo: %v", err)
	}
	if info.Size != 11 || info.ContentType != "text/plain" {
		t.Errorf("unexpected info %#v", info)
	}
	for k, want := range meta {
		if info.Metadata[k] != want {
			t.Errorf("metadata %s: got %q, want %q", k, info.Metadata[k], want)
		}
	}

	body, err := c.GetFile(ctx, "docs", "conv-1/report.txt")
	if err != nil || string(body) != "hello world" {
		t.Fatalf("GetFile: %q %v", body, err)
	}

	if err := c.DeleteFile(ctx, "docs", "conv-1/report.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if len(fake.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", fake.deleted)
	}
}

func TestS3Client_Missing(t *testing.T) {
	c, _ := newFakeClient(t)
	ctx := context.Background()

	if _, err := c.GetObjectInfo(ctx, "docs", "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("GetObjectInfo: expected ErrObjectNotFound, got %v", err)
	}
	if _, err := c.GetFile(ctx, "docs", "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("GetFile: expected ErrObjectNotFound, got %v", err)
	}
}

func TestObjectURL(t *testing.T) {
	aws := &S3Client{region: "eu-west-1"}
	if got := aws.objectURL("b", "dir/my file.pdf"); got != "https://b.s3.eu-west-1.amazonaws.com/dir/my%20file.pdf" {
		t.Errorf("aws url: got %q", got)
	}
	minio := &S3Client{endpoint: "http://localhost:9000"}
	if got := minio.objectURL("b", "k"); got != "http://localhost:9000/b/k" {
		t.Errorf("endpoint url: got %q", got)
	}
}
