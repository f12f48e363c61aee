package ingestion_engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/markdave123-py/contexta-loader/internal/core"
	"github.com/markdave123-py/contexta-loader/internal/core/splitter"
)

// IngestConfig tunes the loading pipeline.
//
// Bucket:           bucket staged uploads land in.
// Topic:            watermill topic carrying BlobCreated events.
// Splitter:         section window sizes.
// BatchSize:        how many sections to embed/write in one batch (e.g., 16).
// EmbedDim:         expected vector length (0 = not checked); must match the vector column.
// PIIEnabled:       run the PII check before indexing.
// PIICategories:    restrict the PII check to these categories (empty = all).
// PIIMinConfidence: entities must score strictly above this to count.
// ImageTypes:       extensions routed to the vision model instead of layout analysis.
// DeleteStaged:     remove the staged blob once processing ends, success or not.
// ProcessTimeout:   upper bound for one document.
type IngestConfig struct {
	Bucket           string
	Topic            string
	Splitter         splitter.Options
	BatchSize        int
	EmbedDim         int
	PIIEnabled       bool
	PIICategories    []string
	PIIMinConfidence float64
	ImageTypes       []string
	DeleteStaged     bool
	ProcessTimeout   time.Duration
}

// Providers are the collaborators the ingestor drives. Vision and PII may be
// nil when those stages are not wanted.
type Providers struct {
	DB       core.DbClient
	Objects  core.ObjectClient
	Embedder core.EmbeddingProvider
	Analyzer core.DocumentAnalyzer
	Vision   core.ImageDescriber
	PII      core.PIIDetector
	Tokens   TokenCounter
}

// DocumentIngestor orchestrates the background loading pipeline:
//
// pub/sub: watermill transport for BlobCreated events.
// jobs:    bounded in-memory queue feeding the worker pool.
// wg:      tracks workers and the shutdown drain of the queue.
type DocumentIngestor struct {
	db       core.DbClient
	obj      core.ObjectClient
	embedder core.EmbeddingProvider
	analyzer core.DocumentAnalyzer
	vision   core.ImageDescriber
	pii      core.PIIDetector
	tokens   TokenCounter

	pub    message.Publisher
	sub    message.Subscriber
	cfg    *IngestConfig
	logger *slog.Logger
	jobs   chan BlobCreated
	wg     sync.WaitGroup
}
