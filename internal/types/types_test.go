package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestRawSignalValidate(t *testing.T) {
	valid := func() RawSignal {
		return RawSignal{
			Source:          SourceReddit,
			SourceID:        "t3_abc",
			RawText:         "Our invoicing takes hours every month",
			EngagementScore: 12,
			Status:          SignalNew,
		}
	}

	tests := []struct {
		name     string
		mutate   func(s *RawSignal)
		errorMsg string
	}{
		{name: "valid", mutate: func(s *RawSignal) {}},
		{name: "unknown source", mutate: func(s *RawSignal) { s.Source = "myspace" }, errorMsg: "invalid source"},
		{name: "missing source id", mutate: func(s *RawSignal) { s.SourceID = "  " }, errorMsg: "source_id is required"},
		{name: "empty text", mutate: func(s *RawSignal) { s.RawText = "" }, errorMsg: "raw_text is required"},
		{name: "text too long", mutate: func(s *RawSignal) { s.RawText = strings.Repeat("a", MaxRawTextLength+1) }, errorMsg: "raw_text must be"},
		{name: "text at limit", mutate: func(s *RawSignal) { s.RawText = strings.Repeat("é", MaxRawTextLength) }},
		{name: "negative engagement", mutate: func(s *RawSignal) { s.EngagementScore = -1 }, errorMsg: "engagement_score cannot be negative"},
		{name: "bad status", mutate: func(s *RawSignal) { s.Status = "done" }, errorMsg: "invalid status"},
		{name: "empty status allowed", mutate: func(s *RawSignal) { s.Status = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestRawSignalIsProcessed(t *testing.T) {
	for status, want := range map[SignalStatus]bool{
		SignalNew:        false,
		SignalProcessing: false,
		SignalClassified: true,
		SignalNoise:      true,
	} {
		s := RawSignal{Status: status}
		if got := s.IsProcessed(); got != want {
			t.Errorf("status %s: IsProcessed() = %v, want %v", status, got, want)
		}
	}
}

func TestClassificationValidate(t *testing.T) {
	c := Classification{
		PainCategory: CategoryIntegrationGap,
		Intensity:    intPtr(7),
		Specificity:  intPtr(4),
		WTP:          WTPExplicit,
		Confidence:   0.8,
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Intensity = intPtr(11)
	if err := c.Validate(); err == nil {
		t.Error("expected error for intensity 11")
	}
	c.Intensity = nil
	c.WTP = "maybe"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown wtp")
	}
}

func TestForcedNoise(t *testing.T) {
	c := ForcedNoise("malformed model response: all JSON parsing strategies failed")
	if !c.IsNoise || c.PainCategory != CategoryUncategorized || c.WTP != WTPNone {
		t.Fatalf("unexpected forced noise classification: %+v", c)
	}
	if c.ToolsMentioned == nil || len(c.ToolsMentioned) != 0 {
		t.Errorf("expected empty tools, got %v", c.ToolsMentioned)
	}
	if !strings.Contains(c.Error, "malformed model response") {
		t.Errorf("reason not recorded: %q", c.Error)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("forced noise must validate: %v", err)
	}
}

func TestPainCategoriesHasThirteenValues(t *testing.T) {
	if len(PainCategories) != 13 {
		t.Fatalf("expected 13 categories, got %d", len(PainCategories))
	}
	if !CategoryUncategorized.IsValid() {
		t.Error("uncategorized must be valid")
	}
	if PainCategory("astrology").IsValid() {
		t.Error("unknown category must be invalid")
	}
}

func TestWTPWeightIsOrdinal(t *testing.T) {
	tiers := []WTP{WTPNone, WTPImplicit, WTPExplicit, WTPProven}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Weight() <= tiers[i-1].Weight() {
			t.Errorf("%s weight should exceed %s", tiers[i], tiers[i-1])
		}
	}
	if WTP("bogus").Weight() != 0 {
		t.Error("unknown tier should weigh 0")
	}
}

func TestScoringSnapshotValidate(t *testing.T) {
	s := ScoringSnapshot{
		OpportunityID: "opp-1",
		SnapshotDate:  "2026-10-16",
		ScoreTotal:    56,
		Verdict:       VerdictMonitor,
		Confidence:    0.85,
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.SnapshotDate = "2026-10-16T00:00:00Z"
	if err := s.Validate(); err == nil {
		t.Error("expected error for timestamp-granular snapshot date")
	}
}

func TestSnapshotDateUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	ts := time.Date(2026, 10, 17, 5, 0, 0, 0, loc) // 2026-10-16 19:00 UTC
	if got := SnapshotDate(ts); got != "2026-10-16" {
		t.Errorf("SnapshotDate() = %s, want 2026-10-16", got)
	}
}

func TestMergeExplanationsKeepsUnrelatedKeys(t *testing.T) {
	artifacts := json.RawMessage(`{"landing_page": "v1",   "spacing":"kept"}`)
	base := map[string]json.RawMessage{ExplanationArtifacts: artifacts}
	patch := map[string]json.RawMessage{ExplanationAISummary: json.RawMessage(`"short summary"`)}

	merged := MergeExplanations(base, patch)

	if string(merged[ExplanationArtifacts]) != string(artifacts) {
		t.Errorf("artifacts changed: %s", merged[ExplanationArtifacts])
	}
	if string(merged[ExplanationAISummary]) != `"short summary"` {
		t.Errorf("summary not merged: %s", merged[ExplanationAISummary])
	}
	if len(base) != 1 {
		t.Error("MergeExplanations must not mutate base")
	}
}

func TestRunSummaryFinish(t *testing.T) {
	start := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	r := RunSummary{StartedAt: start}
	r.Finish(start.Add(90 * time.Second))
	if r.Status != RunCompleted {
		t.Errorf("expected completed, got %s", r.Status)
	}
	if r.DurationSeconds != 90 {
		t.Errorf("expected 90s, got %v", r.DurationSeconds)
	}

	r.AddError("signal %s: %s", "sig-1", "boom")
	r.Finish(start.Add(time.Minute))
	if r.Status != RunCompletedWithErrors {
		t.Errorf("expected completed_with_errors, got %s", r.Status)
	}
	if r.Errors[0] != "signal sig-1: boom" {
		t.Errorf("unexpected error text %q", r.Errors[0])
	}
}
