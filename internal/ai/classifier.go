package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/types"
)

// ContextSeparator joins thread title, parent context and signal text
const ContextSeparator = " — "

// OperationClassify labels classification calls in usage records
const OperationClassify = "classify"

// RawClassification is the model's parsed reply before defaulting.
// Fields holds whatever keys the model produced.
type RawClassification struct {
	Fields       map[string]any
	Raw          string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// ClassifierConfig configures a Classifier
type ClassifierConfig struct {
	MaxTokens int
	Breaker   BreakerConfig
}

// Classifier asks a model to judge one signal
type Classifier struct {
	completer Completer
	breaker   *CircuitBreaker
	usage     UsageRecorder
	maxTokens int
	logger    *zap.Logger
}

// NewClassifier builds a classifier. usage may be nil.
func NewClassifier(completer Completer, cfg ClassifierConfig, usage UsageRecorder, logger *zap.Logger) (*Classifier, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if usage == nil {
		usage = nopRecorder{}
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	c := &Classifier{completer: completer, usage: usage, maxTokens: maxTokens, logger: logger}
	if cfg.Breaker.Enabled {
		c.breaker = NewCircuitBreaker(cfg.Breaker, logger)
	}
	return c, nil
}

// BuildContext joins the non-empty thread title and parent context
func BuildContext(threadTitle, parentContext string) string {
	var parts []string
	for _, p := range []string{threadTitle, parentContext} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ContextSeparator)
}

// UserMessage is the text sent alongside the system prompt
func UserMessage(text, threadContext string) string {
	if threadContext == "" {
		return text
	}
	return threadContext + ContextSeparator + text
}

// Classify sends one signal to the model and parses its JSON reply.
// It returns *ProviderError, *ParseError or ErrCircuitOpen on failure and
// never retries.
func (c *Classifier) Classify(ctx context.Context, text, threadContext string) (*RawClassification, error) {
	return c.classify(ctx, "", text, threadContext)
}

// ClassifySignal classifies s and attributes usage to its id
func (c *Classifier) ClassifySignal(ctx context.Context, s *types.RawSignal) (*RawClassification, error) {
	return c.classify(ctx, s.ID, s.RawText, BuildContext(s.ThreadTitle, s.ParentContext))
}

func (c *Classifier) classify(ctx context.Context, subjectID, text, threadContext string) (*RawClassification, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			state, failures, _ := c.breaker.GetMetrics()
			c.logger.Warn("classification blocked by circuit breaker",
				zap.Stringer("state", state), zap.Int("failures", failures))
			return nil, err
		}
	}

	completion, err := c.completer.Complete(ctx, CompletionRequest{
		System:    ClassificationSystemPrompt,
		User:      UserMessage(text, threadContext),
		MaxTokens: c.maxTokens,
		JSON:      true,
	})
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Provider: "completer", Err: err}
		}
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		return nil, err
	}
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	c.usage.RecordUsage(OperationClassify, completion.Model, subjectID, completion.InputTokens, completion.OutputTokens)

	parsed := Parse[map[string]any](completion.Text, ParseOptions{Context: "classification"})
	if !parsed.Success {
		return nil, &ParseError{Raw: completion.Text, Reason: parsed.Error}
	}
	if parsed.Data == nil {
		return nil, &ParseError{Raw: completion.Text, Reason: "reply is not a JSON object"}
	}

	c.logger.Debug("classified signal",
		zap.String("signal_id", subjectID),
		zap.String("model", completion.Model),
		zap.Int64("input_tokens", completion.InputTokens),
		zap.Int64("output_tokens", completion.OutputTokens))

	return &RawClassification{
		Fields:       parsed.Data,
		Raw:          completion.Text,
		Model:        completion.Model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
	}, nil
}

// ClassificationSystemPrompt defines the 11-field JSON contract
var ClassificationSystemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	categories := make([]string, len(types.PainCategories))
	for i, c := range types.PainCategories {
		categories[i] = string(c)
	}

	return `You analyze posts from founder and developer communities and decide whether each one expresses a real, actionable pain point that a software product could solve.

Respond with ONE JSON object and nothing else. It must have exactly these 11 fields:

{
  "pain_category": one of [` + strings.Join(categories, ", ") + `],
  "intensity": integer 1-10, how much the problem hurts (10 = losing money or customers),
  "specificity": integer 1-10, how concretely the problem is described,
  "wtp": one of [none, implicit, explicit, proven] (willingness to pay: none = no sign, implicit = time or money already lost, explicit = says they would pay, proven = already paying for a workaround),
  "budget_mentioned": number in USD or null,
  "tools_mentioned": array of product or tool names mentioned,
  "existing_workarounds": short description of how they cope today, or "",
  "target_persona": who has this problem, e.g. "agency owner",
  "suggested_niche": snake_case product niche, e.g. "invoice_reconciliation",
  "is_noise": true for spam, self-promotion, memes, pure venting or off-topic posts,
  "confidence": number 0-1, your confidence in this classification
}

Judge only the text you are given. A post is usually a few paragraphs at most. Use "uncategorized" when no category fits. Do not wrap the JSON in markdown.`
}
