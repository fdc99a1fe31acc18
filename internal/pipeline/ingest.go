package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/painscout/painscout/internal/types"
)

const (
	// AgentIngest names ingest runs in the run log
	AgentIngest = "ingest"

	// ingestConcurrency bounds the number of files read at once
	ingestConcurrency = 10

	maxLineBytes = 1 << 20
)

// IngestRecord is one JSONL line accepted by the ingester
type IngestRecord struct {
	Source          types.Source `json:"source"`
	SourceID        string       `json:"source_id"`
	RawText         string       `json:"raw_text"`
	ThreadTitle     string       `json:"thread_title,omitempty"`
	ParentContext   string       `json:"parent_context,omitempty"`
	URL             string       `json:"url,omitempty"`
	EngagementScore int          `json:"engagement_score"`
	PostedAt        *time.Time   `json:"posted_at,omitempty"`
}

// Signal converts the record into a new, unprocessed signal
func (r IngestRecord) Signal() *types.RawSignal {
	return &types.RawSignal{
		Source:          r.Source,
		SourceID:        strings.TrimSpace(r.SourceID),
		RawText:         r.RawText,
		ThreadTitle:     r.ThreadTitle,
		ParentContext:   r.ParentContext,
		URL:             r.URL,
		EngagementScore: r.EngagementScore,
		PostedAt:        r.PostedAt,
		Status:          types.SignalNew,
	}
}

// IngestStore is the persistence the ingester needs
type IngestStore interface {
	InsertSignal(ctx context.Context, signal *types.RawSignal) (bool, error)
	RecordRun(ctx context.Context, run *types.RunSummary) error
}

// IngestResult counts what one ingest run did
type IngestResult struct {
	Files    int      `json:"files"`
	Lines    int      `json:"lines"`
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Invalid  int      `json:"invalid"`
	Errors   []string `json:"errors,omitempty"`
}

// Ingester loads signals from JSONL files
type Ingester struct {
	store  IngestStore
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	result *IngestResult
}

// NewIngester creates an ingester
func NewIngester(store IngestStore, logger *zap.Logger) (*Ingester, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// IngestFiles reads every file concurrently and inserts each valid record.
// Duplicates (same source and source_id) are skipped. A file that cannot be
// opened is an error in the result, not a failure of the run.
func (in *Ingester) IngestFiles(ctx context.Context, paths []string) (*IngestResult, error) {
	started := in.now()
	in.result = &IngestResult{Files: len(paths)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				in.addError("%s: %v", path, err)
				return nil
			}
			defer f.Close()
			return in.ingest(gctx, path, f)
		})
	}
	err := g.Wait()

	in.mu.Lock()
	res := in.result
	in.mu.Unlock()

	run := &types.RunSummary{
		ID:           uuid.New().String(),
		AgentName:    AgentIngest,
		Source:       "jsonl",
		SignalsFound: res.Lines,
		SignalsNew:   res.Inserted,
		StartedAt:    started,
		Errors:       append([]string{}, res.Errors...),
	}
	if err != nil {
		run.AddError("ingest aborted: %v", err)
	}
	run.Finish(in.now())
	if rerr := in.store.RecordRun(context.WithoutCancel(ctx), run); rerr != nil {
		in.logger.Error("failed to record run summary", zap.Error(rerr))
	}

	if err != nil {
		return res, fmt.Errorf("ingest aborted: %w", err)
	}
	return res, nil
}

// ingest reads one JSONL stream. It only returns an error when ctx ends.
func (in *Ingester) ingest(ctx context.Context, name string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		in.count(func(res *IngestResult) { res.Lines++ })

		var rec IngestRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			in.invalid("%s:%d: invalid JSON: %v", name, lineNo, err)
			continue
		}
		sig := rec.Signal()
		if err := sig.Validate(); err != nil {
			in.invalid("%s:%d: %v", name, lineNo, err)
			continue
		}

		inserted, err := in.store.InsertSignal(ctx, sig)
		if err != nil {
			in.addError("%s:%d: insert failed: %v", name, lineNo, err)
			continue
		}
		if inserted {
			in.count(func(res *IngestResult) { res.Inserted++ })
		} else {
			in.count(func(res *IngestResult) { res.Skipped++ })
		}
	}
	if err := scanner.Err(); err != nil {
		in.addError("%s: read failed: %v", name, err)
	}

	in.logger.Debug("ingested file", zap.String("file", name), zap.Int("lines", lineNo))
	return nil
}

func (in *Ingester) count(fn func(*IngestResult)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	fn(in.result)
}

func (in *Ingester) invalid(format string, args ...interface{}) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.result.Invalid++
	in.result.Errors = append(in.result.Errors, fmt.Sprintf(format, args...))
}

func (in *Ingester) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	in.logger.Warn("ingest error", zap.String("error", msg))
	in.mu.Lock()
	defer in.mu.Unlock()
	in.result.Errors = append(in.result.Errors, msg)
}
