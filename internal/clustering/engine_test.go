package clustering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/painscout/painscout/internal/types"
)

type fakeStore struct {
	mu        sync.Mutex
	clusters  map[string]*types.PainCluster
	links     map[string]string
	touched   []string
	createErr error
	linkErr   error
	signals   []*types.RawSignal
	seq       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{clusters: map[string]*types.PainCluster{}, links: map[string]string{}}
}

func (f *fakeStore) CreateCluster(_ context.Context, c *types.PainCluster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.clusters {
		if existing.Slug == c.Slug {
			return fmt.Errorf("duplicate slug %s", c.Slug)
		}
	}
	f.seq++
	c.ID = fmt.Sprintf("c%d", f.seq)
	f.clusters[c.ID] = c
	return nil
}

func (f *fakeStore) GetCluster(_ context.Context, id string) (*types.PainCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clusters[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) LinkSignalToCluster(_ context.Context, signalID, clusterID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return false, f.linkErr
	}
	if _, ok := f.links[signalID]; ok {
		return false, nil
	}
	f.links[signalID] = clusterID
	return true, nil
}

func (f *fakeStore) TouchCluster(_ context.Context, clusterID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, clusterID)
	return nil
}

func (f *fakeStore) ListUnclusteredSignals(context.Context) ([]*types.RawSignal, error) {
	return f.signals, nil
}

type fakeSearcher struct {
	signals  []types.SimilarityMatch
	clusters []types.SimilarityMatch
	calls    []string
}

func (f *fakeSearcher) SimilarSignals(context.Context, []float32, string) []types.SimilarityMatch {
	f.calls = append(f.calls, "signals")
	return f.signals
}

func (f *fakeSearcher) SimilarClusters(context.Context, []float32) []types.SimilarityMatch {
	f.calls = append(f.calls, "clusters")
	return f.clusters
}

func newEngine(t *testing.T, store *fakeStore, search *fakeSearcher) *Engine {
	t.Helper()
	e, err := NewEngine(store, search, DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func seedCluster(store *fakeStore, id, title string, created time.Time) {
	store.clusters[id] = &types.PainCluster{ID: id, Title: title, Slug: id, CreatedAt: created}
}

func TestAssignPrefersSignalNeighbourOverCentroid(t *testing.T) {
	store := newFakeStore()
	seedCluster(store, "neighbour-cluster", "Invoice Reconciliation", time.Now())
	seedCluster(store, "centroid-cluster", "Accounting Sync", time.Now())
	search := &fakeSearcher{
		signals:  []types.SimilarityMatch{{ID: "s-old", Similarity: 0.91, ClusterID: "neighbour-cluster"}},
		clusters: []types.SimilarityMatch{{ID: "centroid-cluster", ClusterID: "centroid-cluster", Similarity: 0.97}},
	}

	got := newEngine(t, store, search).Assign(context.Background(), "s-new", []float32{1}, &types.Classification{})

	assert.Equal(t, ActionAssigned, got.Action)
	assert.Equal(t, "neighbour-cluster", got.ClusterID)
	assert.Equal(t, "Invoice Reconciliation", got.ClusterTitle)
	assert.Equal(t, "neighbour-cluster", store.links["s-new"])
	assert.Equal(t, []string{"signals"}, search.calls, "centroid search must not run")
	assert.Equal(t, []string{"neighbour-cluster"}, store.touched)
}

func TestAssignFallsThroughWhenTopSignalUnclustered(t *testing.T) {
	store := newFakeStore()
	seedCluster(store, "c-x", "X", time.Now())
	search := &fakeSearcher{
		// only the top match counts, even if a lower one has a cluster
		signals: []types.SimilarityMatch{
			{ID: "lower", Similarity: 0.88, ClusterID: "c-x"},
			{ID: "top", Similarity: 0.95},
		},
		clusters: []types.SimilarityMatch{{ID: "c-x", ClusterID: "c-x", Similarity: 0.83}},
	}

	got := newEngine(t, store, search).Assign(context.Background(), "s1", []float32{1}, nil)
	assert.Equal(t, ActionAssigned, got.Action)
	assert.Equal(t, "nearest centroid", got.Reason)
	assert.Equal(t, []string{"signals", "clusters"}, search.calls)
}

func TestAssignIgnoresMatchesBelowThreshold(t *testing.T) {
	store := newFakeStore()
	seedCluster(store, "weak", "Weak", time.Now())
	search := &fakeSearcher{
		signals:  []types.SimilarityMatch{{ID: "n", Similarity: 0.5, ClusterID: "weak"}},
		clusters: []types.SimilarityMatch{{ID: "weak", ClusterID: "weak", Similarity: 0.81}},
	}

	got := newEngine(t, store, search).Assign(context.Background(), "s1", []float32{1}, &types.Classification{
		SuggestedNiche: "freelance_invoicing",
		PainCategory:   types.CategoryPricingCost,
	})
	assert.Equal(t, ActionCreated, got.Action)
	assert.Equal(t, "Freelance Invoicing", got.ClusterTitle)
}

func TestAssignTieBreaksByEarliestCluster(t *testing.T) {
	store := newFakeStore()
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	seedCluster(store, "b-early", "Early", early)
	seedCluster(store, "a-late", "Late", late)

	search := &fakeSearcher{clusters: []types.SimilarityMatch{
		{ID: "a-late", ClusterID: "a-late", Similarity: 0.9, ClusterCreatedAt: late},
		{ID: "b-early", ClusterID: "b-early", Similarity: 0.9, ClusterCreatedAt: early},
	}}

	got := newEngine(t, store, search).Assign(context.Background(), "s1", []float32{1}, nil)
	assert.Equal(t, "b-early", got.ClusterID)
}

func TestAssignCreatesCluster(t *testing.T) {
	store := newFakeStore()
	vec := []float32{0.1, 0.9}

	got := newEngine(t, store, &fakeSearcher{}).Assign(context.Background(), "s1", vec, &types.Classification{
		SuggestedNiche: "project_management",
		PainCategory:   types.CategoryCollaboration,
	})

	require.Equal(t, ActionCreated, got.Action)
	c := store.clusters[got.ClusterID]
	require.NotNil(t, c)
	assert.Equal(t, "Project Management", c.Title)
	assert.True(t, strings.HasPrefix(c.Slug, "project-management-"), c.Slug)
	assert.Equal(t, types.CategoryCollaboration, c.PainCategory)
	assert.Equal(t, vec, c.Centroid)
	assert.Equal(t, types.OriginEmbedding, c.Origin)
	assert.Equal(t, c.FirstSeen, c.LastSeen)
	assert.Equal(t, got.ClusterID, store.links["s1"])
}

func TestAssignPlaceholderTitle(t *testing.T) {
	store := newFakeStore()
	got := newEngine(t, store, &fakeSearcher{}).Assign(context.Background(), "s1", []float32{1}, &types.Classification{})
	assert.Equal(t, PlaceholderTitle, got.ClusterTitle)
	assert.True(t, strings.HasPrefix(store.clusters[got.ClusterID].Slug, "unlabeled-pain-point-"))
	assert.Equal(t, types.CategoryUncategorized, store.clusters[got.ClusterID].PainCategory)
}

func TestAssignInsertFailureLeavesSignalUnlinked(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("disk full")

	got := newEngine(t, store, &fakeSearcher{}).Assign(context.Background(), "s1", []float32{1}, nil)
	assert.Equal(t, ActionFailed, got.Action)
	assert.Contains(t, got.Reason, "disk full")
	assert.Empty(t, store.links)
}

func TestAssignLostRaceIsFailed(t *testing.T) {
	store := newFakeStore()
	seedCluster(store, "c1", "One", time.Now())
	store.links["s1"] = "other"
	search := &fakeSearcher{signals: []types.SimilarityMatch{{ID: "n", Similarity: 0.99, ClusterID: "c1"}}}

	got := newEngine(t, store, search).Assign(context.Background(), "s1", []float32{1}, nil)
	assert.Equal(t, ActionFailed, got.Action)
	assert.Equal(t, "other", store.links["s1"])
	assert.Empty(t, store.touched)
}

func TestSortMatches(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	matches := []types.SimilarityMatch{
		{ID: "d", Similarity: 0.80},
		{ID: "c", Similarity: 0.90, ClusterCreatedAt: t0.Add(time.Hour)},
		{ID: "b", Similarity: 0.90},
		{ID: "a", Similarity: 0.90, ClusterCreatedAt: t0},
		{ID: "e", Similarity: 0.95},
		{ID: "f", Similarity: 0.90, ClusterCreatedAt: t0},
	}
	got := SortMatches(matches)
	var order []string
	for _, m := range got {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"e", "a", "f", "c", "b", "d"}, order)
}

func TestTitleFromNicheAndSlug(t *testing.T) {
	tests := []struct {
		niche string
		title string
		slug  string
	}{
		{"project_management", "Project Management", "project-management"},
		{"CRM_sync", "Crm Sync", "crm-sync"},
		{"  ", "", "cluster"},
		{"saas-billing tools", "Saas Billing Tools", "saas-billing-tools"},
	}
	for _, tt := range tests {
		t.Run(tt.niche, func(t *testing.T) {
			title := TitleFromNiche(tt.niche)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.slug, Slugify(title))
		})
	}

	assert.Equal(t, "c-net-tools", Slugify("  C# / .NET tools!! "))
}

func TestUniqueSlugNeverRepeats(t *testing.T) {
	seen := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := UniqueSlug("Same Title")
				mu.Lock()
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1600)
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine(nil, &fakeSearcher{}, DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.ClusterThreshold = 0
	_, err = NewEngine(newFakeStore(), &fakeSearcher{}, cfg, nil)
	assert.ErrorContains(t, err, "cluster_threshold")
}
