// Package signature computes deterministic keyword fingerprints of raw text.
//
// A signature is the alphabetically sorted set of the first eight distinct
// keywords in a text, joined with "-". Texts sharing a vocabulary get the same
// signature regardless of word order, which makes signatures usable as coarse
// grouping keys without calling a model.
package signature

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxKeywords is how many keywords a signature keeps
const MaxKeywords = 8

// minTokenLength drops single-character tokens
const minTokenLength = 2

// nonAlphanumeric matches everything but ASCII letters and digits. Accented and
// non-Latin letters are separators, so signatures stay plain ASCII slugs.
var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Signature fingerprints a title and optional body text.
// An empty result means the text is unsignable and must not be used as a group key.
func Signature(title string, body ...string) string {
	parts := append([]string{title}, body...)
	keywords := Keywords(strings.Join(parts, " "))
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}
	if len(keywords) == 0 {
		return ""
	}
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Strings(sorted)
	return strings.Join(sorted, "-")
}

// Keywords returns the distinct non-stop-word tokens of text in first-occurrence order
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range tokenize(text) {
		if utf8.RuneCountInString(tok) < minTokenLength || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// tokenize lowercases text and splits it on every run of non-alphanumerics
func tokenize(text string) []string {
	return strings.Fields(nonAlphanumeric.ReplaceAllString(strings.ToLower(text), " "))
}

// IsStopWord reports whether word is excluded from signatures
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// Signable is anything that can be grouped by signature
type Signable interface {
	SignatureText() (title string, body string)
}

// GroupBySignature buckets items by signature. Unsignable items are skipped.
func GroupBySignature[T Signable](items []T) map[string][]T {
	groups := make(map[string][]T)
	for _, item := range items {
		title, body := item.SignatureText()
		sig := Signature(title, body)
		if sig == "" {
			continue
		}
		groups[sig] = append(groups[sig], item)
	}
	return groups
}

var stopWords = toSet(
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
	"and", "any", "are", "aren", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "cannot", "could", "couldn",
	"did", "didn", "do", "does", "doesn", "doing", "don", "down", "during", "each",
	"even", "ever", "every", "few", "for", "from", "further", "get", "gets", "getting",
	"got", "had", "hadn", "has", "hasn", "have", "haven", "having", "he", "her",
	"here", "hers", "herself", "him", "himself", "his", "how", "however", "if", "in",
	"into", "is", "isn", "it", "its", "itself", "just", "let", "like", "ll",
	"me", "might", "more", "most", "much", "must", "my", "myself", "no", "nor",
	"not", "now", "of", "off", "on", "once", "one", "only", "or", "other",
	"our", "ours", "ourselves", "out", "over", "own", "really", "same", "she", "should",
	"shouldn", "so", "some", "still", "such", "than", "that", "the", "their", "theirs",
	"them", "themselves", "then", "there", "these", "they", "this", "those", "through", "to",
	"too", "under", "until", "up", "us", "ve", "very", "was", "wasn", "we",
	"were", "weren", "what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "won", "would", "wouldn", "you", "your", "yours", "yourself", "yourselves",
)

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
