package core

import (
	"context"

	"github.com/markdave123-py/contexta-loader/internal/core/layout"
)

// DocumentAnalyzer extracts the page and table layout of a document.
// The fileName and contentType hints select the parsing strategy.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, data []byte, fileName, contentType string) (*layout.Result, error)
}
