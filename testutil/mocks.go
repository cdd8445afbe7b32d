package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// MockUpstreamServer creates a test server that mocks YouTube Data API responses.
type MockUpstreamServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockUpstreamServer creates a new mock upstream API server. Handlers are
// keyed by endpoint path ("/videos", "/search", "/channels", "/videoCategories").
func NewMockUpstreamServer(t *testing.T) *MockUpstreamServer {
	t.Helper()
	m := &MockUpstreamServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockVideoResponse adds a /videos handler returning one item with the given
// snippet fields and statistics.
func (m *MockUpstreamServer) MockVideoResponse(id, title, channelID, channelTitle, categoryID, publishedAt string, views, likes, comments int64) {
	m.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"items": []map[string]any{{
				"id": id,
				"snippet": map[string]any{
					"title":        title,
					"channelId":    channelID,
					"channelTitle": channelTitle,
					"categoryId":   categoryID,
					"publishedAt":  publishedAt,
				},
				"statistics": map[string]any{
					"viewCount":    itoa(views),
					"likeCount":    itoa(likes),
					"commentCount": itoa(comments),
				},
			}},
		}
		writeMockJSON(w, response)
	}
}

// MockEmptyVideoResponse adds a /videos handler returning no items.
func (m *MockUpstreamServer) MockEmptyVideoResponse() {
	m.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, map[string]any{"items": []map[string]any{}})
	}
}

// MockSearchResponse adds a /search handler serving the given raw items.
func (m *MockUpstreamServer) MockSearchResponse(items []map[string]any) {
	m.Handlers["/search"] = func(w http.ResponseWriter, r *http.Request) {
		writeMockJSON(w, map[string]any{"items": items})
	}
}

// SearchVideoItem builds one /search response item of type video.
func SearchVideoItem(videoID, title, channelID, channelTitle string) map[string]any {
	return map[string]any{
		"id": map[string]any{"videoId": videoID},
		"snippet": map[string]any{
			"title":        title,
			"channelId":    channelID,
			"channelTitle": channelTitle,
		},
	}
}

// MockChannelResponse adds a /channels handler returning one channel.
func (m *MockUpstreamServer) MockChannelResponse(id, title, keywords string, subscribers int64) {
	m.Handlers["/channels"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"items": []map[string]any{{
				"id":      id,
				"snippet": map[string]any{"title": title},
				"brandingSettings": map[string]any{
					"channel": map[string]any{"keywords": keywords},
				},
				"statistics": map[string]any{"subscriberCount": itoa(subscribers)},
			}},
		}
		writeMockJSON(w, response)
	}
}

// MockCategoriesResponse adds a /videoCategories handler for an id->name map.
func (m *MockUpstreamServer) MockCategoriesResponse(categories map[string]string) {
	m.Handlers["/videoCategories"] = func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0, len(categories))
		for id, name := range categories {
			items = append(items, map[string]any{
				"id":      id,
				"snippet": map[string]any{"title": name},
			})
		}
		writeMockJSON(w, map[string]any{"items": items})
	}
}

func writeMockJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
