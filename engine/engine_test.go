package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nbekov/ytscout/anomaly"
	"github.com/nbekov/ytscout/cache"
	"github.com/nbekov/ytscout/discovery"
	"github.com/nbekov/ytscout/engine"
	"github.com/nbekov/ytscout/ledger"
	"github.com/nbekov/ytscout/testutil"
	"github.com/nbekov/ytscout/ytapi"
)

type fixture struct {
	eng   *engine.Engine
	led   *ledger.Ledger
	store *testutil.MemStore
	srv   *testutil.MockUpstreamServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := testutil.NewMockUpstreamServer(t)
	store := testutil.NewMemStore()
	led, err := ledger.New(store, ledger.Options{Max: 5})
	require.NoError(t, err)

	pool, err := ytapi.NewKeyPool([]string{"test-key"})
	require.NoError(t, err)
	client := &ytapi.Client{
		Creds:   pool,
		Cache:   cache.New(nil, cache.DefaultTTLs()),
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}
	pipe := discovery.New(client, discovery.Options{})
	eng := engine.New(led, client, pipe, anomaly.DefaultThresholds())
	return &fixture{eng: eng, led: led, store: store, srv: srv}
}

func TestAnalyzeChargesOnSuccessOnly(t *testing.T) {
	f := newFixture(t)
	f.srv.MockVideoResponse("dQw4w9WgXcQ", "Test Video", "UC1", "Chan", "", "2025-03-01T12:00:00Z", 1000, 50, 20)
	ctx := context.Background()

	a, err := f.eng.Analyze(ctx, 7, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, "Test Video", a.Video.Title)

	balance, err := f.eng.Balance(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 4, balance)
	require.True(t, f.store.Consumed(7, "dQw4w9WgXcQ"))

	// Re-analyzing the same video is free.
	_, err = f.eng.Analyze(ctx, 7, "dQw4w9WgXcQ")
	require.NoError(t, err)
	balance, err = f.eng.Balance(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 4, balance)
}

func TestAnalyzeUnparseableInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Analyze(ctx, 7, "not a video link")
	require.ErrorIs(t, err, engine.ErrNotFound)

	balance, err := f.eng.Balance(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 5, balance)
}

func TestAnalyzeDeadLinkNotBilled(t *testing.T) {
	f := newFixture(t)
	f.srv.MockEmptyVideoResponse()
	ctx := context.Background()

	_, err := f.eng.Analyze(ctx, 7, "gone4567890")
	require.ErrorIs(t, err, engine.ErrNotFound)

	balance, err := f.eng.Balance(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 5, balance)
	require.False(t, f.store.Consumed(7, "gone4567890"))
}

func TestAnalyzeExhaustedSkipsUpstream(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	calls := 0
	f.srv.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		id := r.URL.Query().Get("id")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{
				"id":         id,
				"snippet":    map[string]any{"title": "Video " + id},
				"statistics": map[string]any{"viewCount": "100"},
			}},
		})
	}
	ctx := context.Background()

	ids := []string{"aaaaaaaaaa1", "aaaaaaaaaa2", "aaaaaaaaaa3", "aaaaaaaaaa4", "aaaaaaaaaa5"}
	for _, id := range ids {
		_, err := f.eng.Analyze(ctx, 7, id)
		require.NoError(t, err)
	}
	mu.Lock()
	callsBefore := calls
	mu.Unlock()

	_, err := f.eng.Analyze(ctx, 7, "aaaaaaaaaa6")
	require.ErrorIs(t, err, engine.ErrQuotaExhausted)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, callsBefore, calls, "an exhausted user must not cost an upstream call")
}

func TestAnalyzeCategoryDecoration(t *testing.T) {
	f := newFixture(t)
	f.srv.MockVideoResponse("dQw4w9WgXcQ", "Test Video", "UC1", "Chan", "10", "2025-03-01T12:00:00Z", 1000, 50, 20)
	f.srv.MockCategoriesResponse(map[string]string{"10": "Music"})
	ctx := context.Background()

	a, err := f.eng.Analyze(ctx, 7, "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, "Music", a.CategoryName)
}

func TestAnalyzeTaxonomyFailureDegrades(t *testing.T) {
	f := newFixture(t)
	// Video carries a category id but the taxonomy endpoint is down (404).
	f.srv.MockVideoResponse("dQw4w9WgXcQ", "Test Video", "UC1", "Chan", "10", "2025-03-01T12:00:00Z", 1000, 50, 20)
	ctx := context.Background()

	a, err := f.eng.Analyze(ctx, 7, "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Empty(t, a.CategoryName)

	// The successful resolve is still billed.
	balance, err := f.eng.Balance(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 4, balance)
}

func TestClassify(t *testing.T) {
	f := newFixture(t)
	f.srv.MockVideoResponse("dQw4w9WgXcQ", "Test Video", "UC1", "Chan", "", "2025-03-01T00:00:00Z", 1000, 50, 20)
	f.eng.SetClock(func() time.Time { return time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) })

	tier, err := f.eng.Classify(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, anomaly.Normal, tier)
}

func TestClassifyManipulated(t *testing.T) {
	f := newFixture(t)
	f.srv.MockVideoResponse("dQw4w9WgXcQ", "Test Video", "UC1", "Chan", "", "2025-03-01T00:00:00Z", 100, 101, 5)

	tier, err := f.eng.Classify(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, anomaly.LikelyManipulated, tier)
}

func TestTags(t *testing.T) {
	f := newFixture(t)
	f.srv.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{
				"id": "dQw4w9WgXcQ",
				"snippet": map[string]any{
					"title":       "Test Video",
					"channelId":   "UC1",
					"description": "about trucks",
					"tags":        []string{"trucks", "diesel"},
				},
				"statistics": map[string]any{"viewCount": "1000"},
			}},
		})
	}
	f.srv.MockChannelResponse("UC1", "Trucks Daily", "trucks haulage", 100)

	report, err := f.eng.Tags(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, []string{"trucks", "diesel"}, report.VideoTags)
	require.Equal(t, "about trucks", report.Description)
	require.Equal(t, "trucks haulage", report.ChannelKeywords)
}

func TestDiscoverEndToEnd(t *testing.T) {
	f := newFixture(t)
	videos := map[string]map[string]any{
		"seedseedse1": {"title": "Big Flatbed Truck Tour", "views": "50000"},
		"candcandca1": {"title": "Flatbed convoy footage", "views": "9000"},
	}
	f.srv.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		v, ok := videos[id]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{
				"id":         id,
				"snippet":    map[string]any{"title": v["title"], "channelId": "c1", "channelTitle": "Trucks Daily"},
				"statistics": map[string]any{"viewCount": v["views"]},
			}},
		})
	}
	f.srv.MockSearchResponse([]map[string]any{
		testutil.SearchVideoItem("candcandca1", "Flatbed convoy footage", "c1", "Trucks Daily"),
	})

	res, err := f.eng.Discover(context.Background(), "seedseedse1")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, "candcandca1", res.Items[0].VideoID)
	require.Equal(t, int64(9000), res.Items[0].Views)
	require.Len(t, res.Channels, 1)
	require.Equal(t, "c1", res.Channels[0].ChannelID)
}

func TestDiscoverSeedMissing(t *testing.T) {
	f := newFixture(t)
	f.srv.MockEmptyVideoResponse()

	_, err := f.eng.Discover(context.Background(), "gone4567890")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

// brokenUpstream fails every call with a fixed error.
type brokenUpstream struct{ err error }

func (b brokenUpstream) VideoByID(context.Context, string) (*ytapi.Video, error) { return nil, b.err }
func (b brokenUpstream) ChannelByID(context.Context, string) (*ytapi.Channel, error) {
	return nil, b.err
}
func (b brokenUpstream) VideoCategories(context.Context, string) (map[string]string, error) {
	return nil, b.err
}
func (b brokenUpstream) Search(context.Context, ytapi.SearchQuery) ([]ytapi.SearchResult, error) {
	return nil, b.err
}

func TestErrorTaxonomy(t *testing.T) {
	store := testutil.NewMemStore()
	led, err := ledger.New(store, ledger.Options{Max: 5})
	require.NoError(t, err)

	tests := []struct {
		name     string
		upstream error
		want     error
	}{
		{"pool exhausted", ytapi.ErrExhausted, engine.ErrUpstreamUnavailable},
		{"timeout", context.DeadlineExceeded, engine.ErrUpstreamUnavailable},
		{"canceled", context.Canceled, engine.ErrUpstreamUnavailable},
		{"missing", ytapi.ErrNotFound, engine.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng := engine.New(led, brokenUpstream{err: tc.upstream}, nil, anomaly.DefaultThresholds())
			_, err := eng.Analyze(context.Background(), 7, "dQw4w9WgXcQ")
			require.ErrorIs(t, err, tc.want)

			// A failed resolve never bills.
			balance, berr := eng.Balance(context.Background(), 7)
			require.NoError(t, berr)
			require.Equal(t, 5, balance)
		})
	}

	// Unavailability and exhaustion stay distinct errors.
	require.NotErrorIs(t, engine.ErrUpstreamUnavailable, engine.ErrQuotaExhausted)
}
