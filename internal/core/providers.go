package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"simpleblog/internal/config"
)

// ErrProviderUnavailable marks an image provider that cannot serve the
// request: down, misconfigured, out of quota. The chain moves on to the
// next provider.
var ErrProviderUnavailable = errors.New("image provider unavailable")

// ImageProvider is one strategy in the ordered thumbnail chain. All
// providers expose the same capability; priority lives in the slice
// order, not in the providers themselves.
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, postID, prompt string) (string, error)
}

// DalleProvider is the primary provider, calling the OpenAI image API.
type DalleProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewDalleProvider(apiKey string, timeout time.Duration) *DalleProvider {
	return &DalleProvider{
		BaseURL: "https://api.openai.com",
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *DalleProvider) Name() string { return "dalle" }

func (p *DalleProvider) Generate(ctx context.Context, postID, prompt string) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("%w: no OpenAI API key configured", ErrProviderUnavailable)
	}

	body, err := json.Marshal(map[string]any{
		"model":  "dall-e-3",
		"prompt": prompt,
		"n":      1,
		"size":   "1024x1024",
	})
	if err != nil {
		return "", fmt.Errorf("marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.BaseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// Bad credentials, quota exhaustion and server errors all mean
		// the same thing to the chain.
		return "", fmt.Errorf("%w: openai http %d: %s", ErrProviderUnavailable, resp.StatusCode, raw)
	}

	var out struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode openai response: %v", ErrProviderUnavailable, err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("%w: openai returned no image", ErrProviderUnavailable)
	}
	return out.Data[0].URL, nil
}

// GeminiProvider is the secondary provider, backed by the GenAI client.
type GeminiProvider struct {
	client *genai.Client
}

const geminiImageModel = "gemini-2.0-flash-preview-image-generation"

func NewGeminiProvider() *GeminiProvider {
	if config.AppConfig.GeminiAPIKey == "" {
		return &GeminiProvider{}
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Printf("Failed to create GenAI client, gemini provider disabled: %v", err)
		return &GeminiProvider{}
	}
	return &GeminiProvider{client: client}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Close() {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, postID, prompt string) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("%w: no Gemini API key configured", ErrProviderUnavailable)
	}

	model := p.client.GenerativeModel(geminiImageModel)
	resp, err := model.GenerateContent(ctx, genai.Text("Generate a single illustrative blog thumbnail image for: "+prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", ErrProviderUnavailable, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrProviderUnavailable)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			return fmt.Sprintf("data:%s;base64,%s", blob.MIMEType, base64.StdEncoding.EncodeToString(blob.Data)), nil
		}
	}
	return "", fmt.Errorf("%w: gemini response had no image part", ErrProviderUnavailable)
}

// PlaceholderProvider terminates the chain. It synthesizes an inline
// SVG keyed off the post id and never fails, which is what guarantees
// every post ends up with a thumbnail reference.
type PlaceholderProvider struct{}

func (PlaceholderProvider) Name() string { return "placeholder" }

func (PlaceholderProvider) Generate(ctx context.Context, postID, prompt string) (string, error) {
	return PlaceholderImage(postID), nil
}

// PlaceholderImage builds a deterministic data URI for a post id: same
// id, same image, across processes and restarts.
func PlaceholderImage(postID string) string {
	var sum int
	for _, b := range []byte(postID) {
		sum += int(b)
	}
	hue := sum % 360

	initial := "?"
	if postID != "" {
		initial = string(postID[0])
	}

	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="1024" height="1024">`+
			`<rect width="1024" height="1024" fill="hsl(%d, 55%%, 45%%)"/>`+
			`<text x="512" y="580" font-size="400" font-family="sans-serif" fill="#fff" text-anchor="middle">%s</text>`+
			`</svg>`,
		hue, initial,
	)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
