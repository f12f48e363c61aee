package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"

	"github.com/markdave123-py/contexta-loader/internal/models"
)

// embedAndPersist consumes section documents, embeds them in batches, and
// writes each batch to the DB.
func (i *DocumentIngestor) embedAndPersist(ctx context.Context, in <-chan schema.Document, batchSize int) error {
	batch := make([]schema.Document, 0, batchSize)

	// flush embeds the current batch and inserts it into the database.
	flush := func(items []schema.Document) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].PageContent
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		rows := make([]models.DocumentChunk, len(items))
		for k := range items {
			if i.cfg.EmbedDim > 0 && len(vecs[k]) != i.cfg.EmbedDim {
				return fmt.Errorf("embedding has %d dimensions, want %d", len(vecs[k]), i.cfg.EmbedDim)
			}
			rows[k] = chunkFromDocument(items[k])
			rows[k].ID = uuid.NewString()
			rows[k].Embedding = vecs[k]
			rows[k].TokenCount = i.tokens.Count(items[k].PageContent)
		}
		if err := i.db.InsertDocumentChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	}

	for doc := range in {
		batch = append(batch, doc)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}
