package model

import "time"

// Track is a cataloged recording. ID is assigned by storage.
type Track struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"` // file name the track was indexed from
	Title      string    `json:"title,omitempty"`
	Artist     string    `json:"artist,omitempty"`
	Digest     string    `json:"digest"` // content digest of the source file
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Fingerprint is one encoded landmark pair of a track.
// AnchorTimeMs is the time (in ms) of the anchor peak in the source audio.
type Fingerprint struct {
	Hash         uint32 `json:"hash"`
	AnchorTimeMs uint32 `json:"anchor_time_ms"`
}

// Couple is the stored value for a hash bucket entry.
type Couple struct {
	TrackID      string `json:"track_id"`
	AnchorTimeMs uint32 `json:"anchor_time_ms"`
}

// SettingDrift reports a catalog setting that differs from the running configuration.
type SettingDrift struct {
	Key     string `json:"key"`
	Stored  string `json:"stored"`
	Current string `json:"current"`
}
