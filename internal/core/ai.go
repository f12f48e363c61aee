package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageDescriber turns an image into indexable text.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// PIIEntity is one piece of personal data found in a text.
type PIIEntity struct {
	Category   string  `json:"category"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// PIIDetector finds personal data. An empty categories list means every category.
type PIIDetector interface {
	DetectPII(ctx context.Context, text string, categories []string) ([]PIIEntity, error)
}
