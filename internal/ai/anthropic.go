package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ModelHaiku is the cost-efficient default for per-signal classification.
// PAINSCOUT_ANTHROPIC_MODEL overrides it.
const ModelHaiku = "claude-3-5-haiku-20241022"

// DefaultAnthropicModel returns the classification model, checking the environment first
func DefaultAnthropicModel() string {
	if model := os.Getenv("PAINSCOUT_ANTHROPIC_MODEL"); model != "" {
		return model
	}
	return ModelHaiku
}

// AnthropicConfig configures an AnthropicCompleter
type AnthropicConfig struct {
	APIKey  string // falls back to ANTHROPIC_API_KEY
	Model   string
	BaseURL string
	Timeout time.Duration
}

// AnthropicCompleter calls the Anthropic Messages API
type AnthropicCompleter struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

// NewAnthropicCompleter builds a completer from cfg
func NewAnthropicCompleter(cfg AnthropicConfig) (*AnthropicCompleter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicCompleter{client: &client, model: model, timeout: cfg.Timeout}, nil
}

// Complete implements Completer
func (c *AnthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError(err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:         text.String(),
		Model:        c.model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		Duration:     time.Since(start),
	}, nil
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.RawJSON(),
			Err:        err,
		}
	}
	return &ProviderError{Provider: "anthropic", Err: err}
}
