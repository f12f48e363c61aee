package ingestion_engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/markdave123-py/contexta-loader/internal/core"
	"github.com/markdave123-py/contexta-loader/internal/core/splitter"
)

// PIIDetectionError stops indexing of a document that contains personal data.
type PIIDetectionError struct {
	DocumentID string
	FileName   string
	PageNumber int
	Entities   []core.PIIEntity
}

func (e *PIIDetectionError) Error() string {
	cats := make([]string, 0, len(e.Entities))
	for _, ent := range e.Entities {
		if !slices.Contains(cats, ent.Category) {
			cats = append(cats, ent.Category)
		}
	}
	return fmt.Sprintf("pii detected in %s (document %s, page %d): %s",
		e.FileName, e.DocumentID, e.PageNumber, strings.Join(cats, ", "))
}

// checkPII runs the detector over every page and fails on the first page with
// a qualifying entity.
func (i *DocumentIngestor) checkPII(ctx context.Context, pm splitter.PageMap, meta BlobMetadata, fileName string) error {
	if !i.cfg.PIIEnabled || i.pii == nil {
		return nil
	}
	for _, p := range pm.Pages() {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		found, err := i.pii.DetectPII(ctx, p.Text, i.cfg.PIICategories)
		if err != nil {
			return fmt.Errorf("pii check page %d: %w", p.Number, err)
		}
		if hits := filterEntities(found, i.cfg.PIIMinConfidence, i.cfg.PIICategories); len(hits) > 0 {
			return &PIIDetectionError{
				DocumentID: meta.MasterDocumentID,
				FileName:   fileName,
				PageNumber: p.Number,
				Entities:   hits,
			}
		}
	}
	return nil
}

// filterEntities keeps entities scoring strictly above minConfidence and, when
// categories is not empty, only those categories (case-insensitive).
func filterEntities(in []core.PIIEntity, minConfidence float64, categories []string) []core.PIIEntity {
	var out []core.PIIEntity
	for _, e := range in {
		if e.Confidence <= minConfidence {
			continue
		}
		if len(categories) > 0 && !slices.ContainsFunc(categories, func(c string) bool {
			return strings.EqualFold(c, e.Category)
		}) {
			continue
		}
		out = append(out, e)
	}
	return out
}
