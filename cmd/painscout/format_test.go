package main

import (
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/painscout/painscout/internal/types"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a much longer title", 8, "a much …"},
		{"héllo wörld", 6, "héllo…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n), tt.in)
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", shortID("0123abcd-ffff-4444"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestFormatHelpers(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	assert.Equal(t, "BUILD", verdictColor(types.VerdictBuild))
	assert.Equal(t, "-", verdictColor(""))

	v := 33.256
	assert.Equal(t, "33.26", formatOptionalFloat(&v))
	assert.Equal(t, "-", formatOptionalFloat(nil))

	assert.Equal(t, "never", formatAgo(nil))
	past := time.Now().Add(-3 * time.Hour)
	assert.Equal(t, "3 hours ago", formatAgo(&past))
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Score"}, [][]string{{"a", "1.00"}, {"b"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "1.00")
	assert.True(t, strings.HasPrefix(out, "╭"), out)
	assert.Empty(t, renderTable(nil, nil, nil))
}
