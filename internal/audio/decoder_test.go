package audio

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV writes interleaved PCM to a new file under t.TempDir.
func writeWAV(t *testing.T, name string, sampleRate, bitDepth, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func TestDecodeWAVMono(t *testing.T) {
	path := writeWAV(t, "mono.wav", 8000, 16, 1, []int{0, 16384, -16384, 32767, -32768})

	pcm, err := Decode(context.Background(), path, DecodeOptions{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.SampleRate != 8000 || pcm.Channels != 1 || pcm.BitDepth != 16 {
		t.Errorf("format = %d Hz, %d ch, %d-bit", pcm.SampleRate, pcm.Channels, pcm.BitDepth)
	}

	want := []float64{0, 0.5, -0.5, 32767.0 / 32768, -1}
	if len(pcm.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(pcm.Samples), len(want))
	}
	for i, w := range want {
		if math.Abs(pcm.Samples[i]-w) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, pcm.Samples[i], w)
		}
	}
}

func TestDecodeWAVStereoMixdown(t *testing.T) {
	path := writeWAV(t, "stereo.wav", 44100, 16, 2, []int{1000, 3000, -2000, 2000, 8192, 8192})

	pcm, err := Decode(context.Background(), path, DecodeOptions{SampleRate: 44100})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Channels != 2 {
		t.Errorf("Channels = %d, want 2", pcm.Channels)
	}

	want := []float64{2000.0 / 32768, 0, 0.25}
	if len(pcm.Samples) != len(want) {
		t.Fatalf("got %d mono samples, want %d", len(pcm.Samples), len(want))
	}
	for i, w := range want {
		if math.Abs(pcm.Samples[i]-w) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, pcm.Samples[i], w)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(garbage, []byte("INVALID HEADER DATA"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Decode(context.Background(), garbage, DecodeOptions{})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if de.Path != garbage {
		t.Errorf("DecodeError.Path = %q, want %q", de.Path, garbage)
	}

	_, err = Decode(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), DecodeOptions{})
	if !errors.As(err, &de) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file err = %v, want *DecodeError wrapping fs.ErrNotExist", err)
	}
}

func TestDecodeResamplesWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	data := make([]int, 22050)
	for i := range data {
		data[i] = int(10000 * math.Sin(2*math.Pi*440*float64(i)/22050))
	}
	path := writeWAV(t, "low.wav", 22050, 16, 1, data)

	pcm, err := Decode(context.Background(), path, DecodeOptions{SampleRate: 44100, TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", pcm.SampleRate)
	}
	if d := pcm.DurationMs(); d < 950 || d > 1050 {
		t.Errorf("DurationMs = %d, want about 1000", d)
	}
}
