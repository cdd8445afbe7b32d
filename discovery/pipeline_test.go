package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nbekov/ytscout/ytapi"
)

// fakeSource serves canned search results and video lookups.
type fakeSource struct {
	results   map[string][]ytapi.SearchResult // keyed by query string
	videos    map[string]*ytapi.Video
	failQuery string // queries equal to this return an error

	searchCalls []ytapi.SearchQuery
}

func (f *fakeSource) Search(_ context.Context, q ytapi.SearchQuery) ([]ytapi.SearchResult, error) {
	f.searchCalls = append(f.searchCalls, q)
	if q.Query == f.failQuery {
		return nil, errors.New("upstream gone")
	}
	return f.results[q.Query], nil
}

func (f *fakeSource) VideoByID(_ context.Context, id string) (*ytapi.Video, error) {
	v, ok := f.videos[id]
	if !ok {
		return nil, ytapi.ErrNotFound
	}
	return v, nil
}

func mkResult(id, title, channelID, channelTitle string) ytapi.SearchResult {
	return ytapi.SearchResult{VideoID: id, Title: title, ChannelID: channelID, ChannelTitle: channelTitle}
}

func mkVideo(id, title, channelID string, views int64) *ytapi.Video {
	return &ytapi.Video{ID: id, Title: title, ChannelID: channelID, ChannelTitle: "ch " + channelID, Views: views}
}

func TestRunRanksAndFilters(t *testing.T) {
	seed := "Big Flatbed Truck Tour 2025"
	src := &fakeSource{
		results: map[string][]ytapi.SearchResult{
			"big flatbed truck tour 2025": {
				mkResult("v1", "Flatbed truck highway run", "c1", "Trucks Daily"),
				mkResult("v2", "Big Flatbed Truck Tour 2025", "c2", "Copycat"),       // identical to seed, skipped
				mkResult("v3", "Flatbed truck highway run!!", "c1", "Trucks Daily"), // near-duplicate of v1
				mkResult("v4", "Heavy haul flatbed compilation", "c3", "HaulerTV"),
				mkResult("v5", "Tiny channel flatbed clip", "c4", "Smalltime"), // below the views floor
			},
		},
		videos: map[string]*ytapi.Video{
			"v1": mkVideo("v1", "Flatbed truck highway run", "c1", 5000),
			"v4": mkVideo("v4", "Heavy haul flatbed compilation", "c3", 90000),
			"v5": mkVideo("v5", "Tiny channel flatbed clip", "c4", 200),
		},
	}

	p := New(src, Options{MaxItems: 10, MaxChannels: 5, MinViews: 1000, DedupThreshold: 0.85})
	res, err := p.Run(context.Background(), seed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("items = %+v, want 2", res.Items)
	}
	// Ranked by views descending.
	if res.Items[0].VideoID != "v4" || res.Items[1].VideoID != "v1" {
		t.Fatalf("ranking = [%s %s], want [v4 v1]", res.Items[0].VideoID, res.Items[1].VideoID)
	}

	// The channel tally covers the whole retrieved pool, including candidates
	// pruned from the item list; c1 appeared twice.
	if len(res.Channels) == 0 || res.Channels[0].ChannelID != "c1" || res.Channels[0].Appearances != 2 {
		t.Fatalf("channels = %+v, want c1 first with 2 appearances", res.Channels)
	}
}

func TestRunSearchParameters(t *testing.T) {
	src := &fakeSource{}
	p := New(src, Options{MaxItems: 4, WindowDays: 30})
	now := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return now })

	if _, err := p.Run(context.Background(), "Big Truck"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(src.searchCalls) == 0 {
		t.Fatal("no searches issued")
	}
	q := src.searchCalls[0]
	if q.Order != "viewCount" || q.Type != "video" {
		t.Fatalf("query = %+v", q)
	}
	if q.MaxResults != 8 {
		t.Fatalf("MaxResults = %d, want 2x item budget", q.MaxResults)
	}
	wantAfter := now.Add(-30 * 24 * time.Hour)
	if !q.PublishedAfter.Equal(wantAfter) {
		t.Fatalf("PublishedAfter = %v, want %v", q.PublishedAfter, wantAfter)
	}
}

func TestRunFailedVariantSkipped(t *testing.T) {
	// The full-title variant errors; the fallback variant still yields items.
	src := &fakeSource{
		failQuery: "big flatbed truck tour 2025",
		results: map[string][]ytapi.SearchResult{
			"big flatbed truck": {
				mkResult("v1", "Flatbed convoy footage", "c1", "Trucks Daily"),
			},
		},
		videos: map[string]*ytapi.Video{
			"v1": mkVideo("v1", "Flatbed convoy footage", "c1", 5000),
		},
	}

	p := New(src, Options{})
	res, err := p.Run(context.Background(), "Big Flatbed Truck Tour 2025")
	if err != nil {
		t.Fatalf("a failed variant must not be fatal: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].VideoID != "v1" {
		t.Fatalf("items = %+v, want v1 from the fallback variant", res.Items)
	}
}

func TestRunEmptyIsNotAnError(t *testing.T) {
	src := &fakeSource{}
	p := New(src, Options{})
	res, err := p.Run(context.Background(), "Some Obscure Title")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != 0 || len(res.Channels) != 0 {
		t.Fatalf("result = %+v, want empty", res)
	}
}

func TestRunStopsAtItemBudget(t *testing.T) {
	titles := []string{
		"morning kitchen remodel vlog",
		"desert rally onboard camera",
		"quantum physics explained simply",
		"street food tour bangkok",
		"vintage synth jam session",
		"marathon training week one",
	}
	var results []ytapi.SearchResult
	videos := map[string]*ytapi.Video{}
	for i, title := range titles {
		id := fmt.Sprintf("v%02d", i)
		results = append(results, mkResult(id, title, fmt.Sprintf("c%02d", i), "ch"))
		videos[id] = mkVideo(id, title, fmt.Sprintf("c%02d", i), int64(1000+i))
	}
	src := &fakeSource{
		results: map[string][]ytapi.SearchResult{"lorry showcase": results},
		videos:  videos,
	}

	p := New(src, Options{MaxItems: 3, MaxChannels: 2})
	res, err := p.Run(context.Background(), "Lorry Showcase")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want exactly the budget", len(res.Items))
	}
	if len(res.Channels) != 2 {
		t.Fatalf("channels = %d, want capped at budget", len(res.Channels))
	}
}

func TestRunDeduplicatesAcrossVariants(t *testing.T) {
	shared := mkResult("v1", "Flatbed convoy footage", "c1", "Trucks Daily")
	src := &fakeSource{
		results: map[string][]ytapi.SearchResult{
			"big flatbed truck tour 2025": {shared},
			"big flatbed truck":           {shared},
			"flatbed":                     {shared},
			"truck":                       {shared},
		},
		videos: map[string]*ytapi.Video{
			"v1": mkVideo("v1", "Flatbed convoy footage", "c1", 5000),
		},
	}

	p := New(src, Options{MaxItems: 10})
	res, err := p.Run(context.Background(), "Big Flatbed Truck Tour 2025")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %+v, want one despite repeats across variants", res.Items)
	}
	if res.Channels[0].Appearances != 1 {
		t.Fatalf("appearances = %d, want repeats not double-tallied", res.Channels[0].Appearances)
	}
}
