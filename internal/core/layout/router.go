package layout

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Format names the analyzer family a file belongs to.
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatSheet   Format = "xlsx"
	FormatODT     Format = "odt"
	FormatDocconv Format = "docconv"
)

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "text/xml",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

func mimeFromName(fileName string) string {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return t
	}
	return "application/octet-stream"
}

// resolveMime prefers the extension over the declared content type, which
// browsers often send as application/octet-stream.
func resolveMime(fileName, contentType string) string {
	if mime := mimeFromName(fileName); mime != "application/octet-stream" {
		return mime
	}
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}

// DetectFormat picks the analyzer family from the file extension, falling back
// to the declared content type.
func DetectFormat(fileName, contentType string) Format {
	mime := resolveMime(fileName, contentType)
	switch mime {
	case "application/pdf":
		return FormatPDF
	case extensionTypes[".xlsx"]:
		return FormatSheet
	case extensionTypes[".odt"]:
		return FormatODT
	}
	for _, t := range extensionTypes {
		if t == mime {
			return FormatDocconv
		}
	}
	return FormatUnknown
}

// Router dispatches each document to the analyzer for its format.
type Router struct {
	analyzers map[Format]Analyzer
}

func NewRouter(useReadability bool) *Router {
	return &Router{analyzers: map[Format]Analyzer{
		FormatPDF:     PDFAnalyzer{DetectTables: true},
		FormatSheet:   XLSXAnalyzer{},
		FormatODT:     ODTAnalyzer{},
		FormatDocconv: DocconvAnalyzer{UseReadability: useReadability},
	}}
}

func (r *Router) Analyze(ctx context.Context, data []byte, fileName, contentType string) (*Result, error) {
	a, ok := r.analyzers[DetectFormat(fileName, contentType)]
	if !ok {
		return nil, fmt.Errorf("%s (%s): %w", fileName, contentType, ErrUnsupportedFormat)
	}
	return a.Analyze(ctx, data, fileName, contentType)
}
