package layout

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// PDFAnalyzer reads the text layer of a PDF page by page. Empty pages are kept
// so page numbers line up with the source document.
//
// With DetectTables set, tabula's geometric detector also looks for tables on
// each page. Detection is best effort: when it fails the text layer is still
// returned, only without tables.
type PDFAnalyzer struct {
	DetectTables bool
	Logger       *slog.Logger
}

func (a PDFAnalyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a PDFAnalyzer) Analyze(ctx context.Context, data []byte, fileName, _ string) (res *Result, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("parse pdf %s: %v", fileName, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", fileName, err)
	}

	var pb pageBuilder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		var text string
		if !page.V.IsNull() {
			text, err = page.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("pdf %s page %d: %w", fileName, i, err)
			}
		}
		pb.add(text)
	}
	if pb.offset == 0 {
		return nil, fmt.Errorf("pdf %s: %w", fileName, ErrNoContent)
	}
	res = pb.result()
	if a.DetectTables {
		err := withTempFile(data, "contexta-*.pdf", func(path string) error {
			found, err := detectPDFTables(ctx, path)
			if err != nil {
				return err
			}
			placeTables(res, found)
			return nil
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			a.logger().Warn("pdf table detection failed, keeping text only", "file", fileName, "err", err)
		}
	}
	return res, nil
}
