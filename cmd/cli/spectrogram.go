package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"path/filepath"
	"strings"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/acousticprint/internal/audio"
	"github.com/himanishpuri/acousticprint/internal/config"
	"github.com/himanishpuri/acousticprint/internal/fingerprint"
)

// handleSpectrogram renders the trimmed signal of a file as a PNG.
func handleSpectrogram(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("spectrogram", flag.ContinueOnError)
	width := fs.Int("width", 2048, "Image width in pixels")
	height := fs.Int("height", 512, "Image height in pixels (frequency bins)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("usage: acousticprint spectrogram [--width w] [--height h] <file> [out.png]")
	}
	in := fs.Arg(0)
	out := fs.Arg(1)
	if out == "" {
		out = strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ".png"
	}

	pcm, err := audio.Decode(ctx, in, audio.DecodeOptions{
		SampleRate: cfg.Fingerprint.SampleRate,
		TempDir:    cfg.Indexer.TempDir,
	})
	if err != nil {
		return err
	}
	start, end, err := fingerprint.Trim(pcm.Samples, cfg.Fingerprint.TrimThreshold)
	if err != nil {
		return err
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, *width, *height))
	draw.Draw(img, img.Bounds(), image.NewUniform(spectrogram.ParseColor("000000")), image.Point{}, draw.Src)
	spectrogram.Drawfft(img, pcm.Samples[start:end], uint32(pcm.SampleRate), uint32(*height),
		false, // hamming window
		false, // fft
		true,  // magnitude
		false, // linear scale
	)
	if err := spectrogram.SavePng(img, out); err != nil {
		return fmt.Errorf("saving %s: %w", out, err)
	}
	fmt.Printf("🖼️  Saved spectrogram of %s to %s\n", filepath.Base(in), out)
	return nil
}
