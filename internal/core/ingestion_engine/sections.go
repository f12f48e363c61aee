package ingestion_engine

import (
	"context"
	"iter"

	"github.com/tmc/langchaingo/schema"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-loader/internal/core/splitter"
	"github.com/markdave123-py/contexta-loader/internal/models"
)

// Metadata keys carried by every indexed section.
const (
	MetaPageNumber = "page_number"
	MetaPosition   = "position"
	MetaFileName   = "file_name"
)

// streamSections pulls sections lazily from the splitter and emits them as
// documents; the channel applies backpressure to the splitter.
func (i *DocumentIngestor) streamSections(
	ctx context.Context,
	g *errgroup.Group,
	sections iter.Seq[splitter.Section],
	meta BlobMetadata,
	fileName string,
) <-chan schema.Document {
	out := make(chan schema.Document, 8)

	g.Go(func() error {
		defer close(out)

		pos := 0
		for s := range sections {
			doc := sectionDocument(s, pos, meta, fileName)
			pos++
			select {
			case out <- doc:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return out
}

func sectionDocument(s splitter.Section, pos int, meta BlobMetadata, fileName string) schema.Document {
	return schema.Document{
		PageContent: s.Text,
		Metadata: map[string]any{
			MetaPageNumber:              s.PageNumber,
			MetaPosition:                pos,
			MetaFileName:                fileName,
			models.MetaAuthor:           meta.Author,
			models.MetaUserPrincipalID:  meta.UserID,
			models.MetaConversationID:   meta.ConversationID,
			models.MetaMasterDocumentID: meta.MasterDocumentID,
		},
	}
}

// chunkFromDocument maps an indexed section onto its persistence row.
func chunkFromDocument(doc schema.Document) models.DocumentChunk {
	str := func(k string) string { s, _ := doc.Metadata[k].(string); return s }
	num := func(k string) int { n, _ := doc.Metadata[k].(int); return n }
	return models.DocumentChunk{
		MasterDocumentID: str(models.MetaMasterDocumentID),
		UserID:           str(models.MetaUserPrincipalID),
		ConversationID:   str(models.MetaConversationID),
		Author:           str(models.MetaAuthor),
		FileName:         str(MetaFileName),
		PageNumber:       num(MetaPageNumber),
		Position:         num(MetaPosition),
		Text:             doc.PageContent,
	}
}
