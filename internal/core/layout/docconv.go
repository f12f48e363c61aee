package layout

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
)

// DocconvAnalyzer extracts office, rich-text and markup documents as a single
// page with docconv. Plain text needs no conversion and is passed through.
type DocconvAnalyzer struct {
	UseReadability bool
}

func (a DocconvAnalyzer) Analyze(ctx context.Context, data []byte, fileName, contentType string) (*Result, error) {
	mime := resolveMime(fileName, contentType)

	var text string
	switch mime {
	case "text/plain", "text/markdown", "text/csv":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s is not valid UTF-8 text: %w", fileName, ErrUnsupportedFormat)
		}
		text = string(data)
	default:
		res, err := docconv.Convert(bytes.NewReader(data), mime, a.UseReadability)
		if err != nil {
			return nil, fmt.Errorf("docconv %s (%s): %w", fileName, mime, err)
		}
		text = res.Body
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoContent)
	}

	var pb pageBuilder
	pb.add(text)
	return pb.result(), nil
}
