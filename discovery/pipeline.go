// Package discovery turns one seed title into ranked competitor videos and
// ranked competitor channels: query expansion, popularity-ordered retrieval
// within a recency window, low-signal filtering, near-duplicate suppression,
// and independent channel tallying.
package discovery

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nbekov/ytscout/telemetry"
	"github.com/nbekov/ytscout/ytapi"
)

// Source is the slice of the upstream client the pipeline needs.
type Source interface {
	Search(ctx context.Context, q ytapi.SearchQuery) ([]ytapi.SearchResult, error)
	VideoByID(ctx context.Context, id string) (*ytapi.Video, error)
}

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	MaxItems       int     // K, ranked competitor videos returned
	MaxChannels    int     // M, ranked competitor channels returned
	WindowDays     int     // recency bound for candidate retrieval
	MinViews       int64   // low-signal popularity floor
	DedupThreshold float64 // similarity ratio above which a title is a near-duplicate
}

func (o Options) withDefaults() Options {
	if o.MaxItems <= 0 {
		o.MaxItems = 10
	}
	if o.MaxChannels <= 0 {
		o.MaxChannels = 5
	}
	if o.WindowDays <= 0 {
		o.WindowDays = 30
	}
	if o.MinViews <= 0 {
		o.MinViews = 1000
	}
	if o.DedupThreshold <= 0 {
		o.DedupThreshold = 0.85
	}
	return o
}

// Item is one accepted competitor video.
type Item struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	Views        int64  `json:"views"`
}

// ChannelRank is one competitor channel with its appearance count across the
// retrieved candidate pool.
type ChannelRank struct {
	ChannelID   string `json:"channel_id"`
	Title       string `json:"title"`
	Appearances int    `json:"appearances"`
}

// Result is the ranked output. Both slices empty means "insufficient
// comparable videos", which is a legitimate outcome, not an error.
type Result struct {
	Items    []Item        `json:"items"`
	Channels []ChannelRank `json:"channels"`
}

// Pipeline runs discovery against a Source.
type Pipeline struct {
	Source Source
	Opts   Options
	now    func() time.Time
}

// New builds a pipeline.
func New(src Source, opts Options) *Pipeline {
	return &Pipeline{Source: src, Opts: opts.withDefaults(), now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Run executes the pipeline for one seed title. A variant whose search fails
// is skipped, not fatal; the caller is responsible for having resolved the
// seed video itself before running discovery.
func (p *Pipeline) Run(ctx context.Context, seedTitle string) (Result, error) {
	telemetry.Inc(telemetry.DiscoveryRuns)
	opts := p.Opts.withDefaults()
	publishedAfter := p.now().Add(-time.Duration(opts.WindowDays) * 24 * time.Hour)
	seedNorm := NormalizeTitle(seedTitle)

	accepted := make([]Item, 0, opts.MaxItems)
	acceptedNorms := make([]string, 0, opts.MaxItems)
	tally := map[string]*ChannelRank{}
	seenVideos := map[string]bool{}

	for _, variant := range QueryVariants(seedTitle) {
		if len(accepted) >= opts.MaxItems {
			break
		}
		results, err := p.Source.Search(ctx, ytapi.SearchQuery{
			Query:          variant,
			Type:           "video",
			Order:          "viewCount",
			MaxResults:     opts.MaxItems * 2,
			PublishedAfter: publishedAfter,
		})
		if err != nil {
			slog.Warn("discovery variant failed, skipping", slog.String("variant", variant), slog.Any("err", err))
			continue
		}

		for _, r := range results {
			if r.VideoID == "" || seenVideos[r.VideoID] {
				continue
			}
			seenVideos[r.VideoID] = true

			// Channel tally runs over the whole retrieved pool, before the
			// popularity floor and dedup prune the item list.
			if r.ChannelID != "" {
				if cr, ok := tally[r.ChannelID]; ok {
					cr.Appearances++
				} else {
					tally[r.ChannelID] = &ChannelRank{ChannelID: r.ChannelID, Title: r.ChannelTitle, Appearances: 1}
				}
			}

			if len(accepted) >= opts.MaxItems {
				continue
			}
			norm := NormalizeTitle(r.Title)
			if norm == "" || norm == seedNorm {
				continue
			}
			if nearDuplicate(norm, acceptedNorms, opts.DedupThreshold) {
				continue
			}

			v, err := p.Source.VideoByID(ctx, r.VideoID)
			if err != nil {
				slog.Debug("candidate resolve failed, skipping", slog.String("video", r.VideoID), slog.Any("err", err))
				continue
			}
			if v.Views < opts.MinViews {
				continue
			}

			accepted = append(accepted, Item{
				VideoID:      v.ID,
				Title:        v.Title,
				ChannelID:    v.ChannelID,
				ChannelTitle: v.ChannelTitle,
				Views:        v.Views,
			})
			acceptedNorms = append(acceptedNorms, norm)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Views > accepted[j].Views })

	channels := make([]ChannelRank, 0, len(tally))
	for _, cr := range tally {
		channels = append(channels, *cr)
	}
	sort.SliceStable(channels, func(i, j int) bool {
		if channels[i].Appearances != channels[j].Appearances {
			return channels[i].Appearances > channels[j].Appearances
		}
		return channels[i].Title < channels[j].Title
	})
	if len(channels) > opts.MaxChannels {
		channels = channels[:opts.MaxChannels]
	}

	if len(accepted) == 0 {
		telemetry.Inc(telemetry.DiscoveryEmpty)
	}
	return Result{Items: accepted, Channels: channels}, nil
}

// QueryVariants derives the ordered search variants for a title: the cleaned
// full title, its leading words, and its longest words, deduplicated, most
// specific first.
func QueryVariants(title string) []string {
	norm := NormalizeTitle(title)
	words := strings.Fields(norm)
	if len(words) == 0 {
		return nil
	}

	var variants []string
	seen := map[string]bool{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(norm)
	if len(words) > 3 {
		add(strings.Join(words[:3], " "))
	}

	// Longest words carry the most signal when the full phrase finds nothing.
	longest := append([]string(nil), words...)
	sort.SliceStable(longest, func(i, j int) bool { return len(longest[i]) > len(longest[j]) })
	for i := 0; i < len(longest) && i < 2; i++ {
		if len(longest[i]) >= 4 {
			add(longest[i])
		}
	}

	return variants
}

func nearDuplicate(norm string, accepted []string, threshold float64) bool {
	for _, a := range accepted {
		if Similarity(norm, a) > threshold {
			return true
		}
	}
	return false
}
