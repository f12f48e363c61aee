package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-loader/internal/core/layout"
	"github.com/markdave123-py/contexta-loader/internal/core/splitter"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

// ErrMissingMetadata marks a staged blob that was not uploaded by the loader.
var ErrMissingMetadata = errors.New("ingestion: blob metadata incomplete")

// Ingestor is the loading pipeline as seen by the rest of the service.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int) error
	Enqueue(ctx context.Context, evt BlobCreated) error
	ProcessBlob(ctx context.Context, evt BlobCreated) error
}

var _ Ingestor = (*DocumentIngestor)(nil)

// BlobMetadata is the ownership information stamped on every staged upload.
type BlobMetadata struct {
	Author           string
	UserID           string
	ConversationID   string
	MasterDocumentID string
}

func readMetadata(info *models.ObjectInfo) (BlobMetadata, error) {
	meta := BlobMetadata{
		Author:           info.Metadata[models.MetaAuthor],
		UserID:           info.Metadata[models.MetaUserPrincipalID],
		ConversationID:   info.Metadata[models.MetaConversationID],
		MasterDocumentID: info.Metadata[models.MetaMasterDocumentID],
	}
	if meta.UserID == "" || meta.MasterDocumentID == "" {
		return meta, fmt.Errorf("%s: %w", info.Key, ErrMissingMetadata)
	}
	return meta, nil
}

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(p Providers, pub message.Publisher, sub message.Subscriber, cfg *IngestConfig, logger *slog.Logger) *DocumentIngestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 10 * time.Minute
	}
	tokens := p.Tokens
	if tokens == nil {
		tokens = ApproxCounter{}
	}
	return &DocumentIngestor{
		db: p.DB, obj: p.Objects, embedder: p.Embedder, analyzer: p.Analyzer,
		vision: p.Vision, pii: p.PII, tokens: tokens,
		pub: pub, sub: sub, cfg: cfg, logger: logger,
		jobs: make(chan BlobCreated, 64),
	}
}

// Start subscribes to the blob topic and runs numWorkers goroutines over the
// job queue. Workers stop when ctx is cancelled; Wait blocks until they have
// and until every job still queued at that point has been marked Failed.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) error {
	msgs, err := i.sub.Subscribe(ctx, i.cfg.Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", i.cfg.Topic, err)
	}

	var running sync.WaitGroup
	for w := 1; w <= numWorkers; w++ {
		running.Add(1)
		go func(w int) {
			defer running.Done()
			for {
				select {
				case <-ctx.Done():
					i.logger.Debug("ingest worker shutting down", "worker", w)
					return
				case evt := <-i.jobs:
					if ctx.Err() != nil {
						i.abandon(evt)
						continue
					}
					i.logger.Info("processing blob", "worker", w, "key", evt.Key)
					if err := i.ProcessBlob(ctx, evt); err != nil {
						i.logger.Error("blob processing failed", "worker", w, "key", evt.Key, "error", err)
					}
				}
			}
		}(w)
	}

	running.Add(1)
	go func() {
		defer running.Done()
		i.dispatch(ctx, msgs)
	}()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		running.Wait()
		i.drain()
	}()
	return nil
}

// dispatch moves events from the transport onto the bounded job queue. An
// event is acked once queued; the queue owns it from then on.
func (i *DocumentIngestor) dispatch(ctx context.Context, msgs <-chan *message.Message) {
	for msg := range msgs {
		evt, err := decodeEvent(msg)
		if err != nil {
			// a malformed event will never succeed; drop it
			i.logger.Error("dropping blob event", "error", err)
			msg.Ack()
			continue
		}
		select {
		case i.jobs <- evt:
		case <-ctx.Done():
			i.abandon(evt)
		}
		msg.Ack()
	}
}

// drain fails whatever is left on the queue once workers and dispatcher have
// stopped.
func (i *DocumentIngestor) drain() {
	for {
		select {
		case evt := <-i.jobs:
			i.abandon(evt)
		default:
			return
		}
	}
}

// abandon marks a document that will not be processed in this run as Failed
// so it does not sit in Uploaded forever, and removes its staged blob.
func (i *DocumentIngestor) abandon(evt BlobCreated) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := i.logger.With("bucket", evt.Bucket, "key", evt.Key, "document_id", evt.DocumentID)
	logger.Warn("abandoning queued blob on shutdown")
	i.failDocument(ctx, logger, evt.UserID, evt.DocumentID)
	if i.cfg.DeleteStaged && evt.DocumentID != "" {
		if err := i.obj.DeleteFile(ctx, evt.Bucket, evt.Key); err != nil {
			logger.Error("failed to delete staged blob", "error", err)
		}
	}
}

func (i *DocumentIngestor) failDocument(ctx context.Context, logger *slog.Logger, userID, documentID string) {
	if userID == "" || documentID == "" {
		return
	}
	if err := i.db.UpdateDocumentStatus(ctx, userID, documentID, models.StatusFailed); err != nil {
		logger.Error("failed to record failed status", "error", err)
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() {
	i.wg.Wait()
}

// Enqueue publishes a BlobCreated event for the workers.
func (i *DocumentIngestor) Enqueue(ctx context.Context, evt BlobCreated) error {
	msg, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	if err := i.pub.Publish(i.cfg.Topic, msg); err != nil {
		return fmt.Errorf("publish blob event: %w", err)
	}
	return nil
}

// ProcessBlob loads one staged upload end to end: metadata, content
// extraction, PII check, splitting, embedding and persistence. The document
// status row tracks progress and the staged blob is removed afterwards when
// the ingestor is configured to do so.
func (i *DocumentIngestor) ProcessBlob(ctx context.Context, evt BlobCreated) error {
	proctx, cancel := context.WithTimeout(ctx, i.cfg.ProcessTimeout)
	defer cancel()

	logger := i.logger.With("bucket", evt.Bucket, "key", evt.Key)

	// cleanup must survive the processing deadline
	cleanupCtx, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancelCleanup()

	info, err := i.obj.GetObjectInfo(proctx, evt.Bucket, evt.Key)
	if err != nil {
		i.failDocument(cleanupCtx, logger, evt.UserID, evt.DocumentID)
		return fmt.Errorf("head blob: %w", err)
	}
	meta, err := readMetadata(info)
	if err != nil {
		return err
	}
	logger = logger.With("document_id", meta.MasterDocumentID, "user_id", meta.UserID)

	if i.cfg.DeleteStaged {
		defer func() {
			if err := i.obj.DeleteFile(cleanupCtx, evt.Bucket, evt.Key); err != nil {
				logger.Error("failed to delete staged blob", "error", err)
			}
		}()
	}

	err = i.index(proctx, info, meta)
	if err == nil {
		logger.Info("document indexed")
		return nil
	}

	var piiErr *PIIDetectionError
	if errors.As(err, &piiErr) {
		for _, e := range piiErr.Entities {
			logger.Warn("pii detected",
				"author", meta.Author, "page", piiErr.PageNumber,
				"category", e.Category, "confidence", e.Confidence)
		}
		if serr := i.db.UpdateDocumentStatus(cleanupCtx, meta.UserID, meta.MasterDocumentID, models.StatusPIIDetected); serr != nil {
			logger.Error("failed to record pii status", "error", serr)
		}
		return err
	}

	if _, derr := i.db.DeleteChunksByDocument(cleanupCtx, meta.UserID, meta.MasterDocumentID); derr != nil {
		logger.Error("failed to remove partial chunks", "error", derr)
	}
	i.failDocument(cleanupCtx, logger, meta.UserID, meta.MasterDocumentID)
	return err
}

func (i *DocumentIngestor) index(ctx context.Context, info *models.ObjectInfo, meta BlobMetadata) error {
	data, err := i.obj.GetFile(ctx, info.Bucket, info.Key)
	if err != nil {
		return fmt.Errorf("download blob: %w", err)
	}
	fileName := path.Base(info.Key)

	pm, err := i.extract(ctx, data, fileName, info.ContentType)
	if err != nil {
		return err
	}
	if pm.Empty() {
		return fmt.Errorf("%s: %w", fileName, layout.ErrNoContent)
	}

	if err := i.checkPII(ctx, pm, meta, fileName); err != nil {
		return err
	}

	if err := i.db.UpdateDocumentStatus(ctx, meta.UserID, meta.MasterDocumentID, models.StatusIndexing); err != nil {
		return fmt.Errorf("set indexing status: %w", err)
	}

	sections, err := splitter.Split(pm, i.cfg.Splitter)
	if err != nil {
		return err
	}

	// Build an errgroup to tie the pipeline stages together.
	g, gctx := errgroup.WithContext(ctx)

	// sections -> documents (receive-only channel).
	docs := i.streamSections(gctx, g, sections, meta, fileName)

	// documents -> embed + persist.
	g.Go(func() error {
		return i.embedAndPersist(gctx, docs, i.cfg.BatchSize)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if err := i.db.UpdateDocumentStatus(ctx, meta.UserID, meta.MasterDocumentID, models.StatusIndexed); err != nil {
		return fmt.Errorf("set indexed status: %w", err)
	}
	return nil
}

// extract builds the page map: images are described by the vision model as a
// single page, everything else goes through layout analysis.
func (i *DocumentIngestor) extract(ctx context.Context, data []byte, fileName, contentType string) (splitter.PageMap, error) {
	if ext, ok := i.imageType(fileName, contentType); ok {
		if i.vision == nil {
			return splitter.PageMap{}, fmt.Errorf("%s: no image model configured: %w", fileName, layout.ErrUnsupportedFormat)
		}
		text, err := i.vision.DescribeImage(ctx, data, "image/"+ext)
		if err != nil {
			return splitter.PageMap{}, fmt.Errorf("describe image: %w", err)
		}
		return splitter.NewPageMap(text), nil
	}

	res, err := i.analyzer.Analyze(ctx, data, fileName, contentType)
	if err != nil {
		return splitter.PageMap{}, fmt.Errorf("analyze layout: %w", err)
	}
	return layout.BuildPageMap(res), nil
}

// imageType reports whether the file is one of the configured image types and
// returns its extension.
func (i *DocumentIngestor) imageType(fileName, contentType string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if ext == "" && strings.HasPrefix(contentType, "image/") {
		ext = strings.TrimPrefix(contentType, "image/")
	}
	if ext == "" {
		return "", false
	}
	return ext, slices.Contains(i.cfg.ImageTypes, ext)
}
