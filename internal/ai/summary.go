package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// OperationSummarize labels summary calls in usage records
const OperationSummarize = "summarize_opportunity"

const maxSummaryExamples = 5

// SummaryInput is what the summarizer knows about one opportunity
type SummaryInput struct {
	OpportunityID string
	Title         string
	PainCategory  string
	Verdict       string
	Score         float64
	Explanation   string
	Examples      []string
}

// Summarizer writes a short plain-text pitch for an opportunity
type Summarizer struct {
	completer Completer
	usage     UsageRecorder
	logger    *zap.Logger
}

// NewSummarizer builds a summarizer. usage may be nil.
func NewSummarizer(completer Completer, usage UsageRecorder, logger *zap.Logger) (*Summarizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if usage == nil {
		usage = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{completer: completer, usage: usage, logger: logger}, nil
}

const summarySystemPrompt = `You write two or three sentence summaries of product opportunities for a founder scanning a list. State who has the problem, what it costs them, and what a product would need to do. Plain text only, no markdown, no preamble.`

// Summarize returns the model's summary text
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Opportunity: %s\n", in.Title)
	if in.PainCategory != "" {
		fmt.Fprintf(&b, "Category: %s\n", in.PainCategory)
	}
	fmt.Fprintf(&b, "Score: %.2f (%s)\n", in.Score, in.Verdict)
	if in.Explanation != "" {
		fmt.Fprintf(&b, "Scoring notes: %s\n", in.Explanation)
	}
	examples := in.Examples
	if len(examples) > maxSummaryExamples {
		examples = examples[:maxSummaryExamples]
	}
	if len(examples) > 0 {
		b.WriteString("\nExample posts:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "- %s\n", truncate(strings.Join(strings.Fields(ex), " "), 400))
		}
	}

	completion, err := s.completer.Complete(ctx, CompletionRequest{
		System:    summarySystemPrompt,
		User:      b.String(),
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("summarize opportunity %s: %w", in.OpportunityID, err)
	}
	s.usage.RecordUsage(OperationSummarize, completion.Model, in.OpportunityID, completion.InputTokens, completion.OutputTokens)

	summary := strings.TrimSpace(completion.Text)
	if summary == "" {
		return "", fmt.Errorf("summarize opportunity %s: empty reply", in.OpportunityID)
	}
	return summary, nil
}
