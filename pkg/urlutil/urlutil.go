// Package urlutil provides video URL parsing and normalization helpers.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// videoIDLen is the fixed length of upstream video identifiers.
const videoIDLen = 11

// NormalizeVideoID extracts the canonical video ID from a watch URL,
// short-link, embed URL, shorts URL, or bare ID.
func NormalizeVideoID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty video reference")
	}

	if isVideoID(s) {
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid video URL %q: %w", input, err)
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	switch host {
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if isVideoID(id) {
			return id, nil
		}
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); isVideoID(id) {
			return id, nil
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				if idx := strings.IndexByte(id, '/'); idx >= 0 {
					id = id[:idx]
				}
				if isVideoID(id) {
					return id, nil
				}
			}
		}
	}

	return "", fmt.Errorf("could not extract video ID from %q", input)
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func isVideoID(s string) bool {
	if len(s) != videoIDLen {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
