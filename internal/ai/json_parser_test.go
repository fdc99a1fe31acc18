package ai

import (
	"strings"
	"testing"
)

type testPayload struct {
	Category string   `json:"pain_category"`
	Tools    []string `json:"tools_mentioned"`
}

func TestParse_DirectJSON(t *testing.T) {
	result := Parse[testPayload](`{"pain_category": "integration_gap", "tools_mentioned": ["zapier"]}`)

	if !result.Success {
		t.Fatalf("Expected successful parse, got error: %s", result.Error)
	}
	if result.Data.Category != "integration_gap" {
		t.Errorf("Expected integration_gap, got %q", result.Data.Category)
	}
	if len(result.Data.Tools) != 1 || result.Data.Tools[0] != "zapier" {
		t.Errorf("Unexpected tools: %v", result.Data.Tools)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	result := Parse[testPayload]("   \n")
	if result.Success {
		t.Error("Expected parse to fail on empty input")
	}
	if result.Error != "empty input" {
		t.Errorf("Expected 'empty input' error, got: %s", result.Error)
	}
}

func TestParse_WithCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "json fence",
			input: "```json\n" + `{"pain_category": "pricing_cost"}` + "\n```",
		},
		{
			name:  "generic fence",
			input: "```\n" + `{"pain_category": "pricing_cost"}` + "\n```",
		},
		{
			name:  "fence without newlines",
			input: "```json" + `{"pain_category": "pricing_cost"}` + "```",
		},
		{
			name:  "with preamble",
			input: "Here is the classification:\n```json\n" + `{"pain_category": "pricing_cost"}` + "\n```\nDone.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[testPayload](tt.input)
			if !result.Success {
				t.Fatalf("Expected success, got error: %s", result.Error)
			}
			if result.Data.Category != "pricing_cost" {
				t.Errorf("Expected pricing_cost, got %q", result.Data.Category)
			}
		})
	}
}

func TestParse_Cleanup(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"trailing comma", `{"pain_category": "collaboration", "tools_mentioned": ["slack",],}`},
		{"unquoted keys", `{pain_category: "collaboration", tools_mentioned: ["slack"]}`},
		{"line comment", "{\n// model note\n\"pain_category\": \"collaboration\", \"tools_mentioned\": [\"slack\"]\n}"},
		{"block comment", `{"pain_category": /* best guess */ "collaboration", "tools_mentioned": ["slack"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[testPayload](tt.input)
			if !result.Success {
				t.Fatalf("Expected success, got error: %s", result.Error)
			}
			if result.Data.Category != "collaboration" {
				t.Errorf("Expected collaboration, got %q", result.Data.Category)
			}
		})
	}
}

func TestParse_KeepsURLsInStrings(t *testing.T) {
	result := Parse[map[string]any](`{"existing_workarounds": "see https://example.com/fix", "x": 1,}`)
	if !result.Success {
		t.Fatalf("Expected success, got error: %s", result.Error)
	}
	if got := result.Data["existing_workarounds"]; got != "see https://example.com/fix" {
		t.Errorf("URL was mangled: %v", got)
	}
}

func TestParse_CleanupDisabled(t *testing.T) {
	off := false
	result := Parse[testPayload]("```json\n{\"pain_category\": \"x\"}\n```", ParseOptions{EnableCleanup: &off})
	if result.Success {
		t.Error("Expected failure with cleanup disabled")
	}
}

func TestParse_NotJSON(t *testing.T) {
	result := Parse[map[string]any]("I cannot classify this post.", ParseOptions{Context: "classify"})
	if result.Success {
		t.Fatal("Expected failure")
	}
	if !strings.HasPrefix(result.Error, "classify: ") {
		t.Errorf("Expected context prefix, got %q", result.Error)
	}
	if result.OriginalText != "I cannot classify this post." {
		t.Errorf("Original text not preserved: %q", result.OriginalText)
	}
}

func TestParse_SizeLimit(t *testing.T) {
	big := `{"pain_category": "` + strings.Repeat("a", 200) + `"}`
	result := Parse[testPayload](big, ParseOptions{MaxInputSize: 100})
	if result.Success {
		t.Fatal("Expected size limit failure")
	}
	if !strings.Contains(result.Error, "exceeds size limit") {
		t.Errorf("Unexpected error: %s", result.Error)
	}
}

func TestExtractJSON_PrefersLeadingType(t *testing.T) {
	got := extractJSON(`[{"id": 1}, {"id": 2}]`)
	if got != `[{"id": 1}, {"id": 2}]` {
		t.Errorf("Expected whole array, got %s", got)
	}
	got = extractJSON(`The answer is {"id": 3} as requested`)
	if got != `{"id": 3}` {
		t.Errorf("Expected embedded object, got %s", got)
	}
}
