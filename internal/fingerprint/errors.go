package fingerprint

import "errors"

var (
	// ErrEmptyAudio is returned when silence trimming leaves no samples.
	ErrEmptyAudio = errors.New("fingerprint: audio is silent after trimming")

	// ErrAudioTooShort is returned when the trimmed audio cannot fill a single frame.
	ErrAudioTooShort = errors.New("fingerprint: audio shorter than one frame")

	// ErrNoLandmarks is returned when a track produced no landmark pairs.
	ErrNoLandmarks = errors.New("fingerprint: no landmark pairs found")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("fingerprint: invalid config")
)
