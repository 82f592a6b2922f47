package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
)

// PCM is decoded audio mixed down to one channel.
// Channels and BitDepth describe the source before mixdown.
type PCM struct {
	Channels   int
	BitDepth   int
	SampleRate int
	Samples    []float64 // mono, normalised to [-1, 1]
}

// DurationMs returns the length of the audio in milliseconds.
func (p *PCM) DurationMs() int {
	if p.SampleRate == 0 {
		return 0
	}
	return int(int64(len(p.Samples)) * 1000 / int64(p.SampleRate))
}

// DecodeError reports a file that could not be turned into PCM.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errInvalidWAV = errors.New("not a valid PCM wav file")
	errNoSamples  = errors.New("no samples")
)

// DecodeOptions controls how Decode treats inputs it cannot read natively.
type DecodeOptions struct {
	SampleRate int    // required output rate, 0 keeps the source rate
	TempDir    string // scratch space for ffmpeg conversions
}

// Decode reads path into mono PCM. WAV and MP3 are decoded in-process; any
// other format, or a source at the wrong sample rate, goes through ffmpeg.
// Every failure is a *DecodeError.
func Decode(ctx context.Context, path string, opts DecodeOptions) (*PCM, error) {
	var (
		pcm *PCM
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		pcm, err = decodeFile(path, decodeWAV)
	case ".mp3":
		pcm, err = decodeFile(path, decodeMP3)
	default:
		return convertAndDecode(ctx, path, opts)
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if opts.SampleRate != 0 && pcm.SampleRate != opts.SampleRate {
		return convertAndDecode(ctx, path, opts)
	}
	return pcm, nil
}

func convertAndDecode(ctx context.Context, path string, opts DecodeOptions) (*PCM, error) {
	dir := opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	converted, err := ConvertToMonoWAV(ctx, path, dir, ConvertWAVConfig{SampleRate: opts.SampleRate})
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer os.Remove(converted)

	pcm, err := decodeFile(converted, decodeWAV)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return pcm, nil
}

func decodeFile(path string, decode func(io.ReadSeeker) (*PCM, error)) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f)
}

func decodeWAV(r io.ReadSeeker) (*PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errInvalidWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, errNoSamples
	}

	depth := int(d.BitDepth)
	chans := int(d.NumChans)
	if chans < 1 || depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%w: %d channels, %d-bit", errInvalidWAV, chans, depth)
	}

	offset := 0
	if depth == 8 {
		offset = 128 // 8-bit PCM is unsigned
	}
	scale := 1.0 / float64(int64(1)<<(depth-1))
	raw := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		raw[i] = float64(v-offset) * scale
	}

	return &PCM{
		Channels:   chans,
		BitDepth:   depth,
		SampleRate: int(d.SampleRate),
		Samples:    fingerprint.MixDown(raw, chans),
	}, nil
}

// decodeMP3 relies on go-mp3 always producing 16-bit little-endian stereo.
func decodeMP3(r io.ReadSeeker) (*PCM, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("read mp3 frames: %w", err)
	}
	if len(data) < 4 {
		return nil, errNoSamples
	}

	raw := make([]float64, len(data)/2)
	for i := range raw {
		raw[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768
	}
	return &PCM{
		Channels:   2,
		BitDepth:   16,
		SampleRate: d.SampleRate(),
		Samples:    fingerprint.MixDown(raw, 2),
	}, nil
}
