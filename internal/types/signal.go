package types

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxRawTextLength is the largest raw text a signal may carry
const MaxRawTextLength = 10000

// RawSignal is one captured post or comment
type RawSignal struct {
	ID              string          `json:"id"`
	Source          Source          `json:"source"`
	SourceID        string          `json:"source_id"`
	RawText         string          `json:"raw_text"`
	ThreadTitle     string          `json:"thread_title,omitempty"`
	ParentContext   string          `json:"parent_context,omitempty"`
	URL             string          `json:"url,omitempty"`
	EngagementScore int             `json:"engagement_score"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Status          SignalStatus    `json:"status"`
	Classification  *Classification `json:"classification,omitempty"`
	IsNoise         bool            `json:"is_noise"`
	ClusterID       *string         `json:"cluster_id,omitempty"`
	Embedding       []float32       `json:"-"`
}

// Validate checks if the signal has valid field values
func (s *RawSignal) Validate() error {
	if !s.Source.IsValid() {
		return fmt.Errorf("invalid source: %q", s.Source)
	}
	if strings.TrimSpace(s.SourceID) == "" {
		return fmt.Errorf("source_id is required")
	}
	if strings.TrimSpace(s.RawText) == "" {
		return fmt.Errorf("raw_text is required")
	}
	if n := utf8.RuneCountInString(s.RawText); n > MaxRawTextLength {
		return fmt.Errorf("raw_text must be %d characters or less (got %d)", MaxRawTextLength, n)
	}
	if s.EngagementScore < 0 {
		return fmt.Errorf("engagement_score cannot be negative (got %d)", s.EngagementScore)
	}
	if s.Status != "" && !s.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", s.Status)
	}
	return nil
}

// IsProcessed reports whether classification reached a terminal state
func (s *RawSignal) IsProcessed() bool {
	return s.Status == SignalClassified || s.Status == SignalNoise
}

// SignatureText returns the text a keyword signature is built from
func (s *RawSignal) SignatureText() (title, body string) {
	return s.ThreadTitle, s.RawText
}

// Source identifies where a signal was captured
type Source string

const (
	SourceReddit       Source = "reddit"
	SourceProductHunt  Source = "product_hunt"
	SourceHackerNews   Source = "hacker_news"
	SourceIndieHackers Source = "indie_hackers"
	SourceManual       Source = "manual"
)

// IsValid checks if the source value is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceReddit, SourceProductHunt, SourceHackerNews, SourceIndieHackers, SourceManual:
		return true
	}
	return false
}

// SignalStatus is the processing state of a signal.
//
//	new → processing → classified | noise
type SignalStatus string

const (
	SignalNew        SignalStatus = "new"
	SignalProcessing SignalStatus = "processing"
	SignalClassified SignalStatus = "classified"
	SignalNoise      SignalStatus = "noise"
)

// IsValid checks if the status value is valid
func (s SignalStatus) IsValid() bool {
	switch s {
	case SignalNew, SignalProcessing, SignalClassified, SignalNoise:
		return true
	}
	return false
}

// SimilarityMatch is one ranked result of a vector search
type SimilarityMatch struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	ClusterID  string  `json:"cluster_id,omitempty"`
	// ClusterCreatedAt orders ties; zero when the match has no cluster
	ClusterCreatedAt time.Time `json:"cluster_created_at,omitempty"`
}

// HasCluster reports whether the match is linked to a cluster
func (m SimilarityMatch) HasCluster() bool {
	return m.ClusterID != ""
}
