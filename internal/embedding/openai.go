package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/painscout/painscout/internal/credential"
)

const (
	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultOpenAIDimensions = 1536
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"

	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4096
)

// ProviderError is a non-2xx reply or transport failure from an embedding provider.
// StatusCode is 0 when no response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s embedding request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s embedding request: http %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *ProviderError) Unwrap() error { return e.Err }

// OpenAIConfig configures the OpenAI-compatible provider
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint
type OpenAIProvider struct {
	cfg        OpenAIConfig
	creds      credential.Source
	httpClient *http.Client
}

// OpenAIOption customizes the provider
type OpenAIOption func(*OpenAIProvider)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewOpenAIProvider builds a provider that authenticates with creds
func NewOpenAIProvider(cfg OpenAIConfig, creds credential.Source, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}
	p := &OpenAIProvider{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Dimensions implements Provider
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int64 `json:"prompt_tokens"`
	} `json:"usage"`
}

// Embed implements Provider
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (*Result, error) {
	token, err := p.creds.Token(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}

	body, err := json.Marshal(embeddingRequest{Model: p.cfg.Model, Input: text, Dimensions: p.cfg.Dimensions})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusUnauthorized {
			if c, ok := p.creds.(*credential.Cache); ok {
				c.Invalidate()
			}
		}
		return nil, &ProviderError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}

	model := decoded.Model
	if model == "" {
		model = p.cfg.Model
	}
	return &Result{
		Vector:      decoded.Data[0].Embedding,
		Model:       model,
		InputTokens: decoded.Usage.PromptTokens,
	}, nil
}
