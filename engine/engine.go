// Package engine composes the credit ledger, the upstream client, the
// discovery pipeline and the anomaly heuristic into the operations exposed to
// the conversational layer. The engine owns no state of its own.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/nbekov/ytscout/anomaly"
	"github.com/nbekov/ytscout/discovery"
	"github.com/nbekov/ytscout/ledger"
	"github.com/nbekov/ytscout/telemetry"
	"github.com/nbekov/ytscout/ytapi"
)

// Upstream is the slice of the API client the engine consumes.
type Upstream interface {
	VideoByID(ctx context.Context, id string) (*ytapi.Video, error)
	ChannelByID(ctx context.Context, id string) (*ytapi.Channel, error)
	VideoCategories(ctx context.Context, region string) (map[string]string, error)
	Search(ctx context.Context, q ytapi.SearchQuery) ([]ytapi.SearchResult, error)
}

// Analysis is the base result of a paid analyze request.
type Analysis struct {
	Video        *ytapi.Video `json:"video"`
	CategoryName string       `json:"category_name,omitempty"`
}

// TagReport carries the tag/description breakdown for a video and the
// free-text keywords of its channel.
type TagReport struct {
	VideoTags       []string `json:"video_tags"`
	ChannelKeywords string   `json:"channel_keywords"`
	Description     string   `json:"description"`
}

// Engine orchestrates one analysis request at a time; all state lives in the
// injected collaborators.
type Engine struct {
	Ledger     *ledger.Ledger
	Upstream   Upstream
	Pipeline   *discovery.Pipeline
	Thresholds anomaly.Thresholds
	Region     string // taxonomy region, defaults to US

	now func() time.Time
}

// New wires an engine.
func New(l *ledger.Ledger, up Upstream, pipe *discovery.Pipeline, th anomaly.Thresholds) *Engine {
	return &Engine{Ledger: l, Upstream: up, Pipeline: pipe, Thresholds: th, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Analyze resolves the submitted URL or id into base video facts, charging one
// credit on success. The balance is pre-checked so an exhausted user never
// costs an upstream call, and the charge lands only after the video resolved,
// so a dead link is never billed.
func (e *Engine) Analyze(ctx context.Context, userID int64, rawURLOrID string) (*Analysis, error) {
	start := time.Now()
	defer func() {
		if telemetry.AnalyzeDuration != nil {
			telemetry.AnalyzeDuration.Observe(time.Since(start).Seconds())
		}
	}()

	id := ExtractVideoID(rawURLOrID)
	if id == "" {
		return nil, ErrNotFound
	}

	if err := e.Ledger.CanCharge(ctx, userID, id); err != nil {
		return nil, mapLedgerErr(err)
	}

	v, err := e.Upstream.VideoByID(ctx, id)
	if err != nil {
		return nil, mapUpstreamErr(err)
	}

	a := &Analysis{Video: v}
	if v.CategoryID != "" {
		// Taxonomy is decoration; a failed lookup degrades to the bare id.
		if cats, err := e.Upstream.VideoCategories(ctx, e.region()); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("taxonomy lookup failed", slog.Any("err", err))
		} else {
			a.CategoryName = cats[v.CategoryID]
		}
	}

	if err := e.Ledger.Charge(ctx, userID, id); err != nil {
		return nil, mapLedgerErr(err)
	}
	return a, nil
}

// Discover resolves the seed video (fatal when missing) and runs the
// competitor pipeline. An empty result is a legitimate outcome.
func (e *Engine) Discover(ctx context.Context, videoID string) (discovery.Result, error) {
	v, err := e.Upstream.VideoByID(ctx, videoID)
	if err != nil {
		return discovery.Result{}, mapUpstreamErr(err)
	}
	var res discovery.Result
	telemetry.TimeFunc(telemetry.DiscoveryDuration, func() {
		res, err = e.Pipeline.Run(ctx, v.Title)
	})
	if err != nil {
		return discovery.Result{}, mapUpstreamErr(err)
	}
	return res, nil
}

// Classify resolves the video and applies the anomaly heuristic to its
// engagement counters and age.
func (e *Engine) Classify(ctx context.Context, videoID string) (anomaly.Tier, error) {
	v, err := e.Upstream.VideoByID(ctx, videoID)
	if err != nil {
		return anomaly.Insufficient, mapUpstreamErr(err)
	}
	ageHours := 0.0
	if !v.PublishedAt.IsZero() {
		ageHours = e.now().Sub(v.PublishedAt).Hours()
	}
	return anomaly.Classify(v.Views, v.Likes, v.Comments, ageHours, e.Thresholds), nil
}

// Tags reports the video's tags and description together with its channel's
// branding keywords.
func (e *Engine) Tags(ctx context.Context, videoID string) (*TagReport, error) {
	v, err := e.Upstream.VideoByID(ctx, videoID)
	if err != nil {
		return nil, mapUpstreamErr(err)
	}
	report := &TagReport{VideoTags: v.Tags, Description: v.Description}
	if v.ChannelID != "" {
		ch, err := e.Upstream.ChannelByID(ctx, v.ChannelID)
		if err != nil {
			return nil, mapUpstreamErr(err)
		}
		report.ChannelKeywords = ch.Keywords
	}
	return report, nil
}

// Balance returns the user's remaining credits.
func (e *Engine) Balance(ctx context.Context, userID int64) (int, error) {
	return e.Ledger.Balance(ctx, userID)
}

func (e *Engine) region() string {
	if e.Region != "" {
		return e.Region
	}
	return "US"
}
