package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/painscout/painscout/internal/ai"
	"github.com/painscout/painscout/internal/clustering"
	"github.com/painscout/painscout/internal/types"
)

type fakeSignalStore struct {
	mu          sync.Mutex
	signals     []*types.RawSignal
	saved       map[string]*types.Classification
	forced      map[string]string
	embeddings  map[string][]float32
	runs        []*types.RunSummary
	listCalls   int
	listErrOn   map[int]error // call number (1-based) → error
	saveErr     error
	recordErr   error
	excludeSeen [][]string
}

func newFakeSignalStore(signals ...*types.RawSignal) *fakeSignalStore {
	return &fakeSignalStore{
		signals:    signals,
		saved:      map[string]*types.Classification{},
		forced:     map[string]string{},
		embeddings: map[string][]float32{},
		listErrOn:  map[int]error{},
	}
}

func (f *fakeSignalStore) ListUnprocessedSignals(_ context.Context, limit int, exclude []string) ([]*types.RawSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.excludeSeen = append(f.excludeSeen, append([]string{}, exclude...))
	if err := f.listErrOn[f.listCalls]; err != nil {
		return nil, err
	}
	skip := map[string]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*types.RawSignal
	for _, s := range f.signals {
		if s.IsProcessed() || skip[s.ID] {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSignalStore) ListUnclusteredSignals(context.Context) ([]*types.RawSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.RawSignal
	for _, s := range f.signals {
		if s.Status == types.SignalClassified && !s.IsNoise && s.ClusterID == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) find(id string) *types.RawSignal {
	for _, s := range f.signals {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (f *fakeSignalStore) SaveClassification(_ context.Context, id string, c *types.Classification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[id] = c
	s := f.find(id)
	s.Classification = c
	s.IsNoise = c.IsNoise
	if c.IsNoise {
		s.Status = types.SignalNoise
	} else {
		s.Status = types.SignalClassified
	}
	return nil
}

func (f *fakeSignalStore) MarkForcedNoise(ctx context.Context, id, reason string) error {
	f.mu.Lock()
	f.forced[id] = reason
	f.mu.Unlock()
	c := types.ForcedNoise(reason)
	return f.SaveClassification(ctx, id, &c)
}

func (f *fakeSignalStore) SaveSignalEmbedding(_ context.Context, id string, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[id] = vec
	f.find(id).Embedding = vec
	return nil
}

func (f *fakeSignalStore) RecordRun(_ context.Context, run *types.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.recordErr
}

type fakeClassifier struct {
	replies map[string]map[string]any
	errs    map[string]error
	calls   []string
}

func (f *fakeClassifier) ClassifySignal(_ context.Context, s *types.RawSignal) (*ai.RawClassification, error) {
	f.calls = append(f.calls, s.ID)
	if err := f.errs[s.ID]; err != nil {
		return nil, err
	}
	fields, ok := f.replies[s.ID]
	if !ok {
		fields = map[string]any{"pain_category": "workflow_inefficiency", "is_noise": false}
	}
	return &ai.RawClassification{Fields: fields}, nil
}

type fakeEmbedder struct {
	texts map[string]string
	err   error
}

func (f *fakeEmbedder) EmbedFor(_ context.Context, id, text string) ([]float32, error) {
	if f.texts == nil {
		f.texts = map[string]string{}
	}
	f.texts[id] = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.6, 0.8}, nil
}

type fakeAssigner struct {
	store   *fakeSignalStore
	actions map[string]clustering.Assignment
	calls   []string
}

func (f *fakeAssigner) Assign(_ context.Context, id string, _ []float32, _ *types.Classification) clustering.Assignment {
	f.calls = append(f.calls, id)
	a, ok := f.actions[id]
	if !ok {
		a = clustering.Assignment{Action: clustering.ActionAssigned, ClusterID: "c1"}
	}
	if a.Action != clustering.ActionFailed && f.store != nil {
		f.store.mu.Lock()
		clusterID := a.ClusterID
		f.store.find(id).ClusterID = &clusterID
		f.store.mu.Unlock()
	}
	return a
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

type fakeBudget struct {
	allow int
	calls int
}

func (b *fakeBudget) CanProceed() (bool, string) {
	b.calls++
	if b.calls > b.allow {
		return false, "run budget exceeded ($2.0100/$2.00 used)"
	}
	return true, ""
}

func signal(id string, engagement int) *types.RawSignal {
	return &types.RawSignal{
		ID:              id,
		Source:          types.SourceReddit,
		SourceID:        "t3_" + id,
		RawText:         "text of " + id,
		EngagementScore: engagement,
		Status:          types.SignalNew,
	}
}

type harness struct {
	store      *fakeSignalStore
	classifier *fakeClassifier
	embedder   *fakeEmbedder
	assigner   *fakeAssigner
	pacer      *countingPacer
}

func newHarness(signals ...*types.RawSignal) *harness {
	store := newFakeSignalStore(signals...)
	return &harness{
		store:      store,
		classifier: &fakeClassifier{replies: map[string]map[string]any{}, errs: map[string]error{}},
		embedder:   &fakeEmbedder{},
		assigner:   &fakeAssigner{store: store, actions: map[string]clustering.Assignment{}},
		pacer:      &countingPacer{},
	}
}

// classifiedSignal is a signal an earlier run classified but never clustered
func classifiedSignal(id string, vec []float32) *types.RawSignal {
	s := signal(id, 1)
	s.Status = types.SignalClassified
	s.Classification = &types.Classification{PainCategory: types.CategoryWorkflowInefficiency}
	s.Embedding = vec
	return s
}

func (h *harness) orchestrator(t *testing.T, mutate func(*OrchestratorConfig)) *Orchestrator {
	t.Helper()
	cfg := &OrchestratorConfig{
		Store:      h.store,
		Classifier: h.classifier,
		Embedder:   h.embedder,
		Assigner:   h.assigner,
		Pacer:      h.pacer,
		Settings:   DefaultConfig(),
		Logger:     zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(cfg)
	}
	o, err := NewOrchestrator(cfg)
	require.NoError(t, err)
	return o
}

func TestRunClassifiesEmbedsAndClusters(t *testing.T) {
	h := newHarness(signal("a", 50), signal("b", 10))
	h.store.signals[0].ThreadTitle = "Invoices"
	h.assigner.actions["b"] = clustering.Assignment{Action: clustering.ActionCreated, ClusterID: "c2"}

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, AgentClassifier, summary.AgentName)
	assert.Equal(t, 2, summary.SignalsFound)
	assert.Equal(t, 2, summary.SignalsNew)
	assert.Equal(t, 0, summary.SignalsNoise)
	assert.Equal(t, 2, summary.SignalsClustered)
	assert.Equal(t, 1, summary.ClustersCreated)
	assert.Equal(t, types.RunCompleted, summary.Status)
	assert.Empty(t, summary.Errors)

	assert.Equal(t, []string{"a", "b"}, h.classifier.calls)
	assert.Equal(t, "Invoices\ntext of a", h.embedder.texts["a"])
	assert.Equal(t, "text of b", h.embedder.texts["b"])
	assert.Len(t, h.store.embeddings, 2)
	assert.Equal(t, 2, h.pacer.waits)
	require.Len(t, h.store.runs, 1)
	assert.Same(t, summary, h.store.runs[0])
}

func TestRunNoiseNeverReachesEmbeddingOrClustering(t *testing.T) {
	h := newHarness(signal("spam", 100))
	h.classifier.replies["spam"] = map[string]any{
		"is_noise":        true,
		"pain_category":   "integration_gap",
		"intensity":       9,
		"wtp":             "proven",
		"suggested_niche": "crm",
	}

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SignalsNoise)
	assert.Equal(t, 0, summary.SignalsNew)
	assert.Empty(t, h.embedder.texts)
	assert.Empty(t, h.assigner.calls)
	assert.Equal(t, types.SignalNoise, h.store.signals[0].Status)
}

func TestRunForcesNoiseOnClassificationFailure(t *testing.T) {
	h := newHarness(signal("bad", 9), signal("good", 1))
	h.classifier.errs["bad"] = &ai.ParseError{Raw: "not json", Reason: "all JSON parsing strategies failed"}

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, h.store.forced["bad"], "malformed model response")
	assert.Equal(t, types.SignalNoise, h.store.find("bad").Status)
	assert.Equal(t, 1, summary.SignalsNoise)
	assert.Equal(t, 1, summary.SignalsNew, "the batch continues past the failure")
	assert.Equal(t, types.RunCompletedWithErrors, summary.Status)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "signal bad")
}

func TestRunRetryTransientLeavesProviderFailuresUnprocessed(t *testing.T) {
	h := newHarness(signal("down", 9), signal("garbled", 5), signal("fine", 1))
	h.classifier.errs["down"] = &ai.ProviderError{Provider: "anthropic", StatusCode: 529, Body: "overloaded"}
	h.classifier.errs["garbled"] = &ai.ParseError{Raw: "??", Reason: "no JSON"}

	settings := DefaultConfig()
	settings.FailurePolicy = PolicyRetryTransient
	settings.BatchSize = 1
	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Settings = settings }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.SignalNew, h.store.find("down").Status)
	assert.NotContains(t, h.store.forced, "down")
	assert.Contains(t, h.store.forced, "garbled")
	assert.Equal(t, types.SignalClassified, h.store.find("fine").Status)

	// only the unadvanced row is excluded from later batches in the same run
	assert.Equal(t, []string{"down", "garbled", "fine"}, h.classifier.calls)
	assert.Empty(t, h.store.excludeSeen[0])
	for _, exclude := range h.store.excludeSeen[1:] {
		assert.Equal(t, []string{"down"}, exclude)
	}
	assert.Len(t, summary.Errors, 2)
}

func TestRunExcludesOnlyUnadvancedSignals(t *testing.T) {
	h := newHarness(signal("a", 3), signal("b", 2), signal("c", 1))
	h.embedder.err = errors.New("embedding provider returned status 503")

	settings := DefaultConfig()
	settings.BatchSize = 1
	_, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Settings = settings }).Run(context.Background())
	require.NoError(t, err)

	// classified rows leave the unprocessed set on their own
	require.Len(t, h.store.excludeSeen, 4)
	for _, exclude := range h.store.excludeSeen {
		assert.Empty(t, exclude)
	}
}

func TestRunExcludesSignalsWhoseSaveFailed(t *testing.T) {
	h := newHarness(signal("a", 2), signal("b", 1))
	h.store.saveErr = errors.New("database is locked")

	settings := DefaultConfig()
	settings.BatchSize = 1
	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Settings = settings }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, h.classifier.calls)
	assert.Equal(t, []string{"a", "b"}, h.store.excludeSeen[len(h.store.excludeSeen)-1])
	assert.Len(t, summary.Errors, 2)
}

func TestRunStopsWhenCircuitOpens(t *testing.T) {
	h := newHarness(signal("a", 3), signal("b", 2), signal("c", 1))
	h.classifier.errs["b"] = ai.ErrCircuitOpen

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, h.classifier.calls)
	assert.Equal(t, types.SignalNew, h.store.find("b").Status, "open circuit does not force noise")
	assert.Equal(t, types.SignalNew, h.store.find("c").Status)
	assert.Equal(t, types.RunCompletedWithErrors, summary.Status)
	require.Len(t, h.store.runs, 1)
}

func TestRunFirstBatchFetchFailureIsFatal(t *testing.T) {
	h := newHarness(signal("a", 1))
	h.store.listErrOn[1] = errors.New("database is locked")

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, h.store.runs, "no summary before any batch")
}

func TestRunLaterFetchFailureIsRecorded(t *testing.T) {
	h := newHarness(signal("a", 2), signal("b", 1))
	h.store.listErrOn[2] = errors.New("disk I/O error")

	settings := DefaultConfig()
	settings.BatchSize = 1
	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Settings = settings }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SignalsFound)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "disk I/O error")
	require.Len(t, h.store.runs, 1)
}

func TestRunRespectsBatchBounds(t *testing.T) {
	var signals []*types.RawSignal
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		signals = append(signals, signal(id, 1))
	}
	h := newHarness(signals...)

	settings := DefaultConfig()
	settings.BatchSize = 2
	settings.MaxBatches = 2
	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Settings = settings }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.SignalsFound)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, h.classifier.calls)
	assert.Equal(t, 4, h.pacer.waits)
	assert.Equal(t, types.SignalNew, h.store.find("s5").Status)
}

func TestRunStopsWhenBudgetSpent(t *testing.T) {
	h := newHarness(signal("a", 2), signal("b", 1))
	budget := &fakeBudget{allow: 1}

	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Budget = budget }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, h.classifier.calls)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "run budget exceeded")
}

func TestRunRecordsItemErrors(t *testing.T) {
	h := newHarness(signal("a", 2), signal("b", 1))
	h.embedder.err = errors.New("embedding provider returned status 500")
	h.store.recordErr = errors.New("readonly database")

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err, "run summary write failures are only logged")

	assert.Equal(t, 2, summary.SignalsNew)
	assert.Equal(t, 0, summary.SignalsClustered)
	assert.Len(t, summary.Errors, 2)
	assert.Empty(t, h.assigner.calls)
}

func TestRunResumesSignalsLeftUnclustered(t *testing.T) {
	h := newHarness(signal("a", 1))
	h.embedder.err = errors.New("embedding provider returned HTTP 503")
	o := h.orchestrator(t, nil)

	first, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.SignalsNew)
	assert.Equal(t, 0, first.SignalsClustered)
	assert.Empty(t, h.assigner.calls)
	assert.Equal(t, types.SignalClassified, h.store.find("a").Status)
	assert.Nil(t, h.store.find("a").ClusterID)

	h.embedder.err = nil
	second, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.SignalsFound)
	assert.Equal(t, 1, second.SignalsClustered)
	assert.Empty(t, second.Errors)
	assert.Equal(t, []string{"a"}, h.assigner.calls)
	assert.Equal(t, []float32{0.6, 0.8}, h.store.embeddings["a"])
	require.NotNil(t, h.store.find("a").ClusterID)

	third, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.SignalsClustered)
	assert.Equal(t, []string{"a"}, h.assigner.calls, "clustered signals are not resumed")
}

func TestRunResumeReusesStoredEmbedding(t *testing.T) {
	h := newHarness(classifiedSignal("kept", []float32{1, 0}))
	h.assigner.actions["kept"] = clustering.Assignment{Action: clustering.ActionCreated, ClusterID: "c9"}

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.embedder.texts, "stored vectors are not re-embedded")
	assert.Equal(t, []string{"kept"}, h.assigner.calls)
	assert.Equal(t, 1, summary.ClustersCreated)
	assert.Equal(t, 1, summary.SignalsClustered)
	assert.Empty(t, h.classifier.calls)
}

func TestRunResumeFailureStaysEligible(t *testing.T) {
	h := newHarness(classifiedSignal("stuck", nil))
	h.assigner.actions["stuck"] = clustering.Assignment{Action: clustering.ActionFailed, Reason: "cluster insert failed"}
	o := h.orchestrator(t, nil)

	for range 2 {
		summary, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], "cluster insert failed")
	}
	assert.Equal(t, []string{"stuck", "stuck"}, h.assigner.calls)
	assert.Len(t, h.embedder.texts, 1, "the vector saved by the first attempt is reused")
}

func TestRunResumeIsBoundedByBatchSize(t *testing.T) {
	h := newHarness(
		classifiedSignal("r1", []float32{1, 0}),
		classifiedSignal("r2", []float32{1, 0}),
		classifiedSignal("r3", []float32{1, 0}),
	)
	settings := DefaultConfig()
	settings.BatchSize = 2

	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Settings = settings }).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, h.assigner.calls)
	assert.Equal(t, 2, summary.SignalsClustered)
}

func TestRunSkipsResumeWhenStopped(t *testing.T) {
	h := newHarness(signal("new", 1), classifiedSignal("old", []float32{1, 0}))
	budget := &fakeBudget{allow: 0}

	summary, err := h.orchestrator(t, func(c *OrchestratorConfig) { c.Budget = budget }).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.classifier.calls)
	assert.Empty(t, h.assigner.calls)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "run budget exceeded")
}

func TestRunRecordsFailedAssignment(t *testing.T) {
	h := newHarness(signal("a", 1))
	h.assigner.actions["a"] = clustering.Assignment{Action: clustering.ActionFailed, Reason: "signal already linked"}

	summary, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "signal already linked")
}

func TestNewOrchestratorValidates(t *testing.T) {
	h := newHarness()
	_, err := NewOrchestrator(&OrchestratorConfig{Classifier: h.classifier, Embedder: h.embedder, Assigner: h.assigner, Settings: DefaultConfig()})
	assert.ErrorContains(t, err, "storage is required")

	settings := DefaultConfig()
	settings.ClassifyDelay = 100 * time.Millisecond
	_, err = NewOrchestrator(&OrchestratorConfig{
		Store: h.store, Classifier: h.classifier, Embedder: h.embedder, Assigner: h.assigner, Settings: settings,
	})
	assert.ErrorContains(t, err, "classify_delay")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"batch size", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"max batches", func(c *Config) { c.MaxBatches = 0 }, "max_batches"},
		{"delay", func(c *Config) { c.ClassifyDelay = 499 * time.Millisecond }, "classify_delay"},
		{"policy", func(c *Config) { c.FailurePolicy = "ignore" }, "failure_policy"},
		{"min signals", func(c *Config) { c.MinSignals = 0 }, "min_signals"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestPacerSpacesCalls(t *testing.T) {
	p := NewPacer(MinClassifyDelay)
	ctx := context.Background()
	require.NoError(t, p.Wait(ctx))
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}
