package ytapi

import "time"

// Video is the resolved metadata and engagement counters for one video.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	CategoryID   string    `json:"category_id"`
	PublishedAt  time.Time `json:"published_at"`
	Views        int64     `json:"views"`
	Likes        int64     `json:"likes"`
	Comments     int64     `json:"comments"`
	Tags         []string  `json:"tags,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// SearchResult is one row of a search call. Engagement counters are not part
// of search responses; resolve the video id for those.
type SearchResult struct {
	VideoID      string `json:"video_id,omitempty"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channel_title"`
}

// Channel is the resolved channel metadata including the free-text branding keywords.
type Channel struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Keywords    string `json:"keywords,omitempty"`
	Subscribers int64  `json:"subscribers"`
}

// SearchQuery describes one search call.
type SearchQuery struct {
	Query          string
	Type           string // "video" or "channel"
	Order          string // e.g. "viewCount", "relevance"
	MaxResults     int
	PublishedAfter time.Time // zero means no recency bound
}
