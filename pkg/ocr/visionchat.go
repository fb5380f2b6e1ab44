package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"recipelens/pkg/imageprep"
)

// VisionChatEngine is a neural recogniser speaking the OpenAI-compatible
// chat completions protocol (OpenAI, Ollama, vLLM and friends).
type VisionChatEngine struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// NewVisionChatEngine returns an engine posting to baseURL/chat/completions.
func NewVisionChatEngine(baseURL, apiKey, model string) *VisionChatEngine {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &VisionChatEngine{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{},
	}
}

func (o *VisionChatEngine) Name() string     { return "vision-chat" }
func (o *VisionChatEngine) Kind() EngineKind { return Neural }

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Extract posts the variant as a data URI and splits the reply into line fragments.
func (o *VisionChatEngine) Extract(ctx context.Context, v imageprep.Variant) ([]Fragment, error) {
	data, err := imageprep.EncodePNG(v.Image)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(chatRequest{
		Model: o.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: transcribePrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)}},
			},
		}},
		MaxTokens: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	client := o.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(msg))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, nil
	}
	return linesToFragments(response.Choices[0].Message.Content, o.Name(), v.ID), nil
}
