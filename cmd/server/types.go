package main

import (
	"errors"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/model"
)

// IndexYouTubeRequest is the request body for POST /api/tracks/youtube
type IndexYouTubeRequest struct {
	YouTubeURL string `json:"youtube_url"`
}

func (r *IndexYouTubeRequest) Validate() error {
	if r.YouTubeURL == "" {
		return errors.New("youtube_url is required")
	}
	return nil
}

// IndexResponse is returned when a track is indexed, or already was.
type IndexResponse struct {
	Message      string       `json:"message"`
	Track        *model.Track `json:"track"`
	Fingerprints int          `json:"fingerprints,omitempty"`
	Duplicate    bool         `json:"duplicate,omitempty"`
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks       []model.Track `json:"tracks"`
	Count        int           `json:"count"`
	Fingerprints int64         `json:"fingerprints"`
}

type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// LookupResponse is the response for GET /api/hashes/{hash}
type LookupResponse struct {
	Hash      uint32         `json:"hash"`
	AnchorBin uint16         `json:"anchor_bin"`
	TargetBin uint16         `json:"target_bin"`
	Delta     uint8          `json:"delta"`
	Couples   []model.Couple `json:"couples"`
}

type SettingsResponse struct {
	Digest  string                `json:"digest"`
	Current []fingerprint.Setting `json:"current"`
	Stored  []fingerprint.Setting `json:"stored"`
	Drift   []model.SettingDrift  `json:"drift"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Tracks       int    `json:"tracks"`
	Fingerprints int64  `json:"fingerprints"`
	Driver       string `json:"driver"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
