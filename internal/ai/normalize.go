package ai

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/painscout/painscout/internal/types"
)

var nonSnakeRegex = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeClassification defaults and coerces a raw model reply into a
// complete Classification. It never fails: anything unusable becomes the
// field's zero value.
func NormalizeClassification(raw *RawClassification) types.Classification {
	var fields map[string]any
	if raw != nil {
		fields = raw.Fields
	}

	c := types.Classification{
		PainCategory:        types.CategoryUncategorized,
		WTP:                 types.WTPNone,
		ToolsMentioned:      []string{},
		ExistingWorkarounds: stringField(fields, "existing_workarounds"),
		TargetPersona:       stringField(fields, "target_persona"),
		SuggestedNiche:      SnakeCase(stringField(fields, "suggested_niche")),
		IsNoise:             boolField(fields, "is_noise"),
	}

	if cat := types.PainCategory(strings.ToLower(stringField(fields, "pain_category"))); cat.IsValid() {
		c.PainCategory = cat
	}
	if wtp := types.WTP(strings.ToLower(stringField(fields, "wtp"))); wtp.IsValid() {
		c.WTP = wtp
	}
	c.Intensity = scaleField(fields, "intensity")
	c.Specificity = scaleField(fields, "specificity")

	if budget, ok := numberField(fields, "budget_mentioned"); ok && budget >= 0 {
		c.BudgetMentioned = &budget
	}
	if tools, ok := fields["tools_mentioned"].([]any); ok {
		seen := make(map[string]bool)
		for _, t := range tools {
			s, ok := t.(string)
			s = strings.TrimSpace(s)
			if !ok || s == "" || seen[strings.ToLower(s)] {
				continue
			}
			seen[strings.ToLower(s)] = true
			c.ToolsMentioned = append(c.ToolsMentioned, s)
		}
	}
	if conf, ok := numberField(fields, "confidence"); ok {
		c.Confidence = math.Max(0, math.Min(1, conf))
	}
	return c
}

// SnakeCase lowercases s and joins its alphanumeric runs with underscores
func SnakeCase(s string) string {
	return strings.Trim(nonSnakeRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_"), "_")
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func boolField(fields map[string]any, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	return false
}

func numberField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$")), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

// scaleField accepts only whole numbers in 1..10
func scaleField(fields map[string]any, key string) *int {
	f, ok := numberField(fields, key)
	if !ok || f != math.Trunc(f) || f < 1 || f > 10 {
		return nil
	}
	n := int(f)
	return &n
}
