package clustering

import (
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

// PlaceholderTitle names clusters whose first signal suggested no niche
const PlaceholderTitle = "Unlabeled Pain Point"

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	slugSeq      atomic.Uint64
)

// TitleFromNiche turns "project_management" into "Project Management"
func TitleFromNiche(niche string) string {
	words := strings.FieldsFunc(niche, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Slugify lowercases title and joins its alphanumeric runs with hyphens
func Slugify(title string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "cluster"
	}
	return slug
}

// UniqueSlug appends a suffix that differs on every call in this process and
// across processes started at different nanoseconds
func UniqueSlug(title string) string {
	return Slugify(title) + "-" + slugSuffix(time.Now())
}

func slugSuffix(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 36) + strconv.FormatUint(slugSeq.Add(1), 36)
}
