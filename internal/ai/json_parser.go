// Package ai wraps text-generation providers behind a small Completer
// interface and turns their replies into typed classification results.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Compiled once; model replies are parsed on every classification.
var (
	// Matches ```json\n{...}\n```, ```{...}```, ``` json{...}``` and friends
	codeFenceWholeRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// DefaultMaxInputSize bounds how much model output Parse will look at
const DefaultMaxInputSize = 1 << 20

// ParseResult is the outcome of a Parse call
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// ParseOptions configures Parse. Nil pointers keep the default.
type ParseOptions struct {
	Context       string // prefixed to error messages
	EnableCleanup *bool  // default true
	MaxInputSize  int    // 0 keeps DefaultMaxInputSize, negative disables the limit
}

// Parse decodes model output into T, trying progressively looser strategies:
//
//  1. direct decode
//  2. strip code fences
//  3. fix trailing commas, unquoted keys and comments
//  4. extract the outermost object or array from mixed text
func Parse[T any](text string, opts ...ParseOptions) ParseResult[T] {
	cleanup := true
	maxSize := DefaultMaxInputSize
	context := ""
	if len(opts) > 0 {
		o := opts[0]
		context = o.Context
		if o.EnableCleanup != nil {
			cleanup = *o.EnableCleanup
		}
		if o.MaxInputSize != 0 {
			maxSize = o.MaxInputSize
		}
	}

	if maxSize > 0 && len(text) > maxSize {
		return parseFailure[T](fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxSize),
			truncate(text, 1000), context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseFailure[T]("empty input", text, context)
	}

	data, err := decode[T](trimmed)
	if err == nil {
		return ParseResult[T]{Success: true, Data: data, OriginalText: text}
	}
	if !cleanup {
		return parseFailure[T](err.Error(), text, context)
	}

	unfenced := StripCodeFences(trimmed)
	if unfenced != trimmed {
		if data, err := decode[T](unfenced); err == nil {
			return ParseResult[T]{Success: true, Data: data, OriginalText: text}
		}
	}

	cleaned := cleanupJSON(unfenced)
	if data, err := decode[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: data, OriginalText: text}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if data, err := decode[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: data, OriginalText: text}
		}
	}

	return parseFailure[T]("all JSON parsing strategies failed", text, context)
}

func decode[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(text), &out)
	return out, err
}

// StripCodeFences removes markdown fences (```json ... ```) around a payload
func StripCodeFences(text string) string {
	cleaned := codeFenceWholeRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = codeFenceAnyRegex.ReplaceAllString(text, "$1")
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.Trim(cleaned, "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON repairs the usual model slips. Single quotes are left alone
// since converting them breaks apostrophes inside strings.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the first JSON-looking span out of mixed content.
// The leading character picks object vs array so [{...},{...}] is not cut short.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		switch trimmed[0] {
		case '[':
			if m := arrayRegex.FindString(trimmed); m != "" {
				return m
			}
		case '{':
			if m := objectRegex.FindString(trimmed); m != "" {
				return m
			}
		}
	}
	if m := objectRegex.FindString(trimmed); m != "" {
		return m
	}
	return arrayRegex.FindString(trimmed)
}

func parseFailure[T any](message, text, context string) ParseResult[T] {
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{Error: message, OriginalText: text}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
