package utils

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoVideoID is returned for URLs that do not name a single YouTube video.
var ErrNoVideoID = errors.New("no youtube video id in url")

// ExtractYouTubeID returns the video id of a watch, short-link, embed,
// /v/ or shorts URL.
func ExtractYouTubeID(youtubeURL string) (string, error) {
	u, err := url.Parse(youtubeURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	host := strings.ToLower(u.Host)

	var id string
	switch {
	case strings.Contains(host, "youtu.be"):
		id = strings.TrimPrefix(u.Path, "/")
	case strings.Contains(host, "youtube.com"):
		if strings.HasPrefix(u.Path, "/watch") {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/embed/", "/v/", "/shorts/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id = rest
				break
			}
		}
	}

	id, _, _ = strings.Cut(id, "/")
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNoVideoID, youtubeURL)
	}
	return id, nil
}

func IsYouTubeURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Host)
	return strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be")
}
