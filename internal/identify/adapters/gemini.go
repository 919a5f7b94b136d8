package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hoshi42/phonox/internal/identify"
)

// GeminiVisionClient implements identify.VisionClient over Gemini's
// multimodal GenerateContent API, grounded on the teacher's
// internal/embedding/genai.go client-construction pattern.
type GeminiVisionClient struct {
	client *genai.Client
	model  string
}

// NewGeminiVisionClient builds a GeminiVisionClient. model is typically
// config.ModelsConfig.Vision (e.g. "gemini-2.5-flash").
func NewGeminiVisionClient(ctx context.Context, apiKey, model string) (*GeminiVisionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiVisionClient{client: client, model: model}, nil
}

// Extract issues one GenerateContent call per image, asking the model to
// return the MetadataProposal fields as a fixed JSON object, exactly as C3
// requires (§4.3: one multimodal call per image, variant-specific prompt).
func (c *GeminiVisionClient) Extract(ctx context.Context, imageBytes []byte, contentType string, variant identify.PromptVariant, priorProposals []identify.MetadataProposal) (identify.MetadataProposal, error) {
	prompt := visionPrompt(variant, priorProposals)

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		{InlineData: &genai.Blob{MIMEType: contentType, Data: imageBytes}},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return identify.MetadataProposal{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return identify.MetadataProposal{}, fmt.Errorf("gemini: empty response")
	}

	var raw visionJSON
	if err := json.Unmarshal([]byte(extractJSONObject(text)), &raw); err != nil {
		return identify.MetadataProposal{}, fmt.Errorf("gemini: parse response: %w", err)
	}
	return raw.toProposal(), nil
}

// visionJSON mirrors the fixed JSON schema the vision prompt asks the model
// to emit. Every field is optional; absence means the model saw nothing.
type visionJSON struct {
	Artist         *string  `json:"artist"`
	Title          *string  `json:"title"`
	Year           *int     `json:"year"`
	Label          *string  `json:"label"`
	CatalogNumber  *string  `json:"catalog_number"`
	Barcode        *string  `json:"barcode"`
	Genres         []string `json:"genres"`
	Confidence     float64  `json:"confidence"`
	Condition      *string  `json:"condition"`
	ConditionNotes string   `json:"condition_notes"`
}

func (r visionJSON) toProposal() identify.MetadataProposal {
	p := identify.MetadataProposal{
		Artist:         r.Artist,
		Title:          r.Title,
		Year:           r.Year,
		Label:          r.Label,
		CatalogNumber:  r.CatalogNumber,
		Barcode:        r.Barcode,
		Genres:         r.Genres,
		Confidence:     r.Confidence,
		ConditionNotes: r.ConditionNotes,
	}
	if r.Condition != nil {
		if c, err := identify.ParseCondition(*r.Condition); err == nil {
			p.Condition = &c
		}
	}
	return p
}

func visionPrompt(variant identify.PromptVariant, priors []identify.MetadataProposal) string {
	var sb strings.Builder
	switch variant {
	case identify.PromptVariantFrontCover:
		sb.WriteString("This is the front cover of a vinyl record. Identify the artist, title, year, label, catalog number, barcode, genres, and visible condition.\n")
	default:
		sb.WriteString("This is the back cover, spine, or label of a vinyl record. Identify the same fields as for a front cover, focusing on catalog number, barcode, and label text.\n")
	}
	if len(priors) > 0 {
		sb.WriteString("Prior images of the same record proposed:\n")
		for _, p := range priors {
			if p.Artist != nil {
				fmt.Fprintf(&sb, "- artist: %s\n", *p.Artist)
			}
			if p.Title != nil {
				fmt.Fprintf(&sb, "- title: %s\n", *p.Title)
			}
		}
	}
	sb.WriteString("Respond with exactly one JSON object with keys: artist, title, year, label, catalog_number, barcode, genres, confidence, condition, condition_notes. Use null for anything not visible.")
	return sb.String()
}

func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
