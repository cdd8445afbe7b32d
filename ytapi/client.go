// Package ytapi contains a minimal client for the YouTube Data API v3: video
// lookup, search, channel lookup, and the video-category taxonomy. Every call
// is cache-checked first; on miss it iterates the credential pool, advancing to
// the next key on any non-200 response, and writes the result through the cache.
package ytapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nbekov/ytscout/cache"
	"github.com/nbekov/ytscout/telemetry"
)

var (
	// ErrExhausted means every credential in the pool failed for one logical call.
	ErrExhausted = errors.New("all api keys exhausted")
	// ErrNotFound means the requested resource does not exist upstream.
	ErrNotFound = errors.New("resource not found")
)

// Client is a thin typed layer over the credential pool and the response cache.
type Client struct {
	Creds      Credentials
	Cache      *cache.Cache
	HTTPClient *http.Client
	BaseURL    string        // defaults to the public API endpoint
	Timeout    time.Duration // per logical call, defaults to 20s
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://www.googleapis.com/youtube/v3"
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 20 * time.Second
}

// VideoByID resolves one video with snippet, contentDetails and statistics.
func (c *Client) VideoByID(ctx context.Context, id string) (*Video, error) {
	if id == "" {
		return nil, fmt.Errorf("video id empty")
	}
	var v Video
	if c.cacheGet(ctx, cache.NSVideo, id, &v) {
		return &v, nil
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", id)
	var body struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title        string   `json:"title"`
				ChannelID    string   `json:"channelId"`
				ChannelTitle string   `json:"channelTitle"`
				CategoryID   string   `json:"categoryId"`
				PublishedAt  string   `json:"publishedAt"`
				Description  string   `json:"description"`
				Tags         []string `json:"tags"`
			} `json:"snippet"`
			Statistics struct {
				ViewCount    string `json:"viewCount"`
				LikeCount    string `json:"likeCount"`
				CommentCount string `json:"commentCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := c.doGet(ctx, "videos", params, &body); err != nil {
		return nil, err
	}
	if len(body.Items) == 0 {
		// Never cached: a later upload of this id must resolve.
		return nil, ErrNotFound
	}
	it := body.Items[0]
	published, _ := time.Parse(time.RFC3339, it.Snippet.PublishedAt)
	v = Video{
		ID:           it.ID,
		Title:        it.Snippet.Title,
		ChannelID:    it.Snippet.ChannelID,
		ChannelTitle: it.Snippet.ChannelTitle,
		CategoryID:   it.Snippet.CategoryID,
		PublishedAt:  published,
		Views:        parseCount(it.Statistics.ViewCount),
		Likes:        parseCount(it.Statistics.LikeCount),
		Comments:     parseCount(it.Statistics.CommentCount),
		Tags:         it.Snippet.Tags,
		Description:  it.Snippet.Description,
	}
	c.cachePut(ctx, cache.NSVideo, id, &v)
	return &v, nil
}

// Search issues one search call. Results are cached under a key derived from
// the full query shape so different windows or orderings do not collide.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	if q.Query == "" {
		return nil, fmt.Errorf("search query empty")
	}
	if q.Type == "" {
		q.Type = "video"
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}
	key := searchKey(q)
	var cached []SearchResult
	if c.cacheGet(ctx, cache.NSSearch, key, &cached) {
		return cached, nil
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", q.Query)
	params.Set("type", q.Type)
	params.Set("maxResults", strconv.Itoa(q.MaxResults))
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	if !q.PublishedAfter.IsZero() {
		params.Set("publishedAfter", q.PublishedAfter.UTC().Format(time.RFC3339))
	}
	var body struct {
		Items []struct {
			ID struct {
				VideoID   string `json:"videoId"`
				ChannelID string `json:"channelId"`
			} `json:"id"`
			Snippet struct {
				Title        string `json:"title"`
				ChannelID    string `json:"channelId"`
				ChannelTitle string `json:"channelTitle"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.doGet(ctx, "search", params, &body); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(body.Items))
	for _, it := range body.Items {
		r := SearchResult{
			VideoID:      it.ID.VideoID,
			ChannelID:    it.Snippet.ChannelID,
			Title:        it.Snippet.Title,
			ChannelTitle: it.Snippet.ChannelTitle,
		}
		if r.ChannelID == "" {
			r.ChannelID = it.ID.ChannelID
		}
		out = append(out, r)
	}
	c.cachePut(ctx, cache.NSSearch, key, out)
	return out, nil
}

// ChannelByID resolves channel metadata including branding keywords.
func (c *Client) ChannelByID(ctx context.Context, id string) (*Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("channel id empty")
	}
	var ch Channel
	if c.cacheGet(ctx, cache.NSChannel, id, &ch) {
		return &ch, nil
	}

	params := url.Values{}
	params.Set("part", "snippet,brandingSettings,statistics")
	params.Set("id", id)
	var body struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
			BrandingSettings struct {
				Channel struct {
					Keywords string `json:"keywords"`
				} `json:"channel"`
			} `json:"brandingSettings"`
			Statistics struct {
				SubscriberCount string `json:"subscriberCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := c.doGet(ctx, "channels", params, &body); err != nil {
		return nil, err
	}
	if len(body.Items) == 0 {
		return nil, ErrNotFound
	}
	it := body.Items[0]
	ch = Channel{
		ID:          it.ID,
		Title:       it.Snippet.Title,
		Keywords:    it.BrandingSettings.Channel.Keywords,
		Subscribers: parseCount(it.Statistics.SubscriberCount),
	}
	c.cachePut(ctx, cache.NSChannel, id, &ch)
	return &ch, nil
}

// VideoCategories resolves the category taxonomy (id -> display name) for a
// region. Reference data: the cache namespace has no TTL.
func (c *Client) VideoCategories(ctx context.Context, region string) (map[string]string, error) {
	if region == "" {
		region = "US"
	}
	var cached map[string]string
	if c.cacheGet(ctx, cache.NSCategory, region, &cached) {
		return cached, nil
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("regionCode", region)
	var body struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.doGet(ctx, "videoCategories", params, &body); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(body.Items))
	for _, it := range body.Items {
		out[it.ID] = it.Snippet.Title
	}
	c.cachePut(ctx, cache.NSCategory, region, out)
	return out, nil
}

// doGet performs one logical call: iterate the credential pool in order,
// retrying the same request with the next key on any non-success response.
func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	start := time.Now()
	defer func() {
		if telemetry.UpstreamDuration != nil {
			telemetry.UpstreamDuration.Observe(time.Since(start).Seconds())
		}
	}()

	var lastErr error
	for attempt := 0; ; attempt++ {
		key, ok := c.Creds.Key(attempt)
		if !ok {
			telemetry.Inc(telemetry.UpstreamFailures)
			if lastErr != nil {
				return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
			}
			return ErrExhausted
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upstream call aborted: %w", err)
		}

		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("key", key)
		reqURL := fmt.Sprintf("%s/%s?%s", c.base(), endpoint, q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}

		telemetry.Inc(telemetry.UpstreamCalls)
		resp, err := c.http().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("upstream call aborted: %w", ctx.Err())
			}
			lastErr = err
			telemetry.Inc(telemetry.UpstreamFailovers)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			closeBody(resp)
			lastErr = fmt.Errorf("%s request failed: %s: %s", endpoint, resp.Status, string(b))
			telemetry.Inc(telemetry.UpstreamFailovers)
			slog.Debug("upstream key failed, advancing", slog.String("endpoint", endpoint), slog.Int("attempt", attempt), slog.String("status", resp.Status))
			continue
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		closeBody(resp)
		if err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
		return nil
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func (c *Client) cacheGet(ctx context.Context, ns cache.Namespace, key string, dest any) bool {
	if c.Cache == nil {
		return false
	}
	raw, ok := c.Cache.Get(ctx, ns, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("corrupt cache payload dropped", slog.String("ns", string(ns)), slog.String("key", key), slog.Any("err", err))
		return false
	}
	return true
}

func (c *Client) cachePut(ctx context.Context, ns cache.Namespace, key string, val any) {
	if c.Cache == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		slog.Warn("cache marshal failed", slog.String("ns", string(ns)), slog.Any("err", err))
		return
	}
	c.Cache.Put(ctx, ns, key, raw)
}

func searchKey(q SearchQuery) string {
	window := ""
	if !q.PublishedAfter.IsZero() {
		window = q.PublishedAfter.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d", q.Query, q.Type, q.Order, window, q.MaxResults)
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
