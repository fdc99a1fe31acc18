package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultGeminiModel      = "text-embedding-004"
	DefaultGeminiDimensions = 768
)

// GeminiProvider embeds text with a Gemini embedding model
type GeminiProvider struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGeminiProvider opens a Gemini client. apiKey falls back to GEMINI_API_KEY.
func NewGeminiProvider(ctx context.Context, apiKey, model string, dims int) (*GeminiProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if dims == 0 {
		dims = DefaultGeminiDimensions
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, dims: dims}, nil
}

// Close closes the underlying client
func (g *GeminiProvider) Close() error { return g.client.Close() }

// Dimensions implements Provider
func (g *GeminiProvider) Dimensions() int { return g.dims }

// Embed implements Provider
func (g *GeminiProvider) Embed(ctx context.Context, text string) (*Result, error) {
	em := g.client.EmbeddingModel(g.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, &ProviderError{Provider: "gemini", StatusCode: gerr.Code, Body: gerr.Body, Err: err}
		}
		return nil, &ProviderError{Provider: "gemini", Err: err}
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding")
	}
	return &Result{Vector: res.Embedding.Values, Model: g.model}, nil
}
