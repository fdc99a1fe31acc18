package ai

import (
	"context"
	"time"
)

// CompletionRequest is one system+user exchange
type CompletionRequest struct {
	System    string
	User      string
	MaxTokens int
	// JSON asks the provider to constrain output to JSON when it can
	JSON bool
}

// Completion is a provider reply
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
}

// Completer sends one prompt to a text-generation model.
// Failures are *ProviderError.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// UsageRecorder receives token counts for completed calls. Implementations
// must not block and must not report errors back to the caller.
type UsageRecorder interface {
	RecordUsage(operation, model, subjectID string, inputTokens, outputTokens int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordUsage(string, string, string, int64, int64) {}
