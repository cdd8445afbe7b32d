package engine

import (
	"regexp"
	"strings"
)

var (
	urlIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`shorts/([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`embed/([A-Za-z0-9_-]+)`),
	}
	bareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// ExtractVideoID pulls a video id out of a watch URL, a short link, a shorts
// or embed path, or a bare 11-character id. Returns "" when nothing matches.
func ExtractVideoID(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, p := range urlIDPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	if bareIDPattern.MatchString(raw) {
		return raw
	}
	return ""
}
