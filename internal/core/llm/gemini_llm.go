package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-loader/internal/core"
)

const imagePrompt = `Describe what is in this image as a summary of what you see.
Also provide all of the exact text contained within or extracted from the image.
Finally, provide a guess at what the image is attempting to communicate, using the information you've gathered.`

const piiSystemPrompt = `You detect personally identifiable information in documents.
Return every entity you find as a JSON array of objects with the fields
"category" (for example Person, Email, PhoneNumber, Address, USSocialSecurityNumber,
CreditCardNumber, IPAddress, DateOfBirth), "text" (the exact matched text) and
"confidence" (a number between 0 and 1). Return [] when there is none.`

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// model returns a generative model configured with the system prompt.
func (g *GeminiLLM) model(systemPrompt string) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	return m
}

// DescribeImage asks the model for a summary, the literal text and the intent
// of an image, which together become the indexable content of the file.
func (g *GeminiLLM) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	m := g.model("You are a helpful assistant.")
	m.SetMaxOutputTokens(2000)

	resp, err := m.GenerateContent(ctx, genai.ImageData(imageFormat(mimeType), data), genai.Text(imagePrompt))
	if err != nil {
		return "", fmt.Errorf("gemini describe image: %w", err)
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini describe image: empty response")
	}
	return text, nil
}

// DetectPII runs the model in JSON mode and returns every entity it reports.
// Confidence filtering is left to the caller.
func (g *GeminiLLM) DetectPII(ctx context.Context, text string, categories []string) ([]core.PIIEntity, error) {
	m := g.model(piiSystemPrompt)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category":   {Type: genai.TypeString},
				"text":       {Type: genai.TypeString},
				"confidence": {Type: genai.TypeNumber},
			},
			Required: []string{"category", "text", "confidence"},
		},
	}

	prompt := text
	if len(categories) > 0 {
		prompt = "Only report these categories: " + strings.Join(categories, ", ") + "\n\n" + text
	}
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini detect pii: %w", err)
	}
	return parsePIIResponse(responseText(resp))
}

func parsePIIResponse(raw string) ([]core.PIIEntity, error) {
	raw = strings.TrimSpace(raw)
	// some models still fence JSON output
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var entities []core.PIIEntity
	if err := json.Unmarshal([]byte(raw), &entities); err != nil {
		return nil, fmt.Errorf("decode pii response: %w", err)
	}
	return entities, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// imageFormat turns a MIME type or extension into the short form genai.ImageData expects.
func imageFormat(mimeType string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(mimeType, "image/"), "."))
	if f == "jpg" {
		return "jpeg"
	}
	return f
}

var (
	_ core.ImageDescriber = (*GeminiLLM)(nil)
	_ core.PIIDetector    = (*GeminiLLM)(nil)
)
