package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"recipelens/pkg/imageprep"
)

// GeminiEngine is a neural recogniser backed by a Gemini vision model.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine dials the Gemini API. Call Close when done.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key not set")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: model}, nil
}

func (g *GeminiEngine) Name() string     { return "gemini" }
func (g *GeminiEngine) Kind() EngineKind { return Neural }

// Close releases the underlying client.
func (g *GeminiEngine) Close() error {
	return g.client.Close()
}

// Extract sends the variant as PNG and returns one fragment per transcribed line.
func (g *GeminiEngine) Extract(ctx context.Context, v imageprep.Variant) ([]Fragment, error) {
	data, err := imageprep.EncodePNG(v.Image)
	if err != nil {
		return nil, err
	}
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.ImageData("png", data), genai.Text(transcribePrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
			sb.WriteByte('\n')
		}
	}
	return linesToFragments(sb.String(), g.Name(), v.ID), nil
}
