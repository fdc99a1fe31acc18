package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is fast and cheap enough for per-signal classification
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures a GeminiCompleter
type GeminiConfig struct {
	APIKey      string // falls back to GEMINI_API_KEY
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// GeminiCompleter calls Google's Gemini models
type GeminiCompleter struct {
	client  *genai.Client
	model   string
	temp    float32
	timeout time.Duration
}

// NewGeminiCompleter opens a Gemini client. Close releases it.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model, temp: cfg.Temperature, timeout: cfg.Timeout}, nil
}

// Close closes the underlying client
func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

// Complete implements Completer
func (g *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := g.client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	model.Temperature = genai.Ptr(g.temp)
	if req.MaxTokens > 0 {
		model.MaxOutputTokens = genai.Ptr(int32(req.MaxTokens))
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return nil, geminiError(err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	out := &Completion{Text: text.String(), Model: g.model, Duration: time.Since(start)}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func geminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &ProviderError{Provider: "gemini", StatusCode: gerr.Code, Body: gerr.Body, Err: err}
	}
	return &ProviderError{Provider: "gemini", Err: err}
}
