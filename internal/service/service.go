package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/himanishpuri/acousticprint/internal/audio"
	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/model"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/utils"
)

// ErrDuplicateTrack is returned when a file's content is already cataloged.
var ErrDuplicateTrack = errors.New("track already indexed")

// AcousticService indexes audio files into a fingerprint catalog.
type AcousticService struct {
	store   storage.Storage
	gen     *fingerprint.Generator
	cfg     fingerprint.Config
	log     Logger
	workers int
	queue   int
	tempDir string
	drift   []model.SettingDrift
}

// NewAcousticService validates the configuration, records or checks the
// catalog settings and warns about every drifted one.
func NewAcousticService(ctx context.Context, opts ...Option) (*AcousticService, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Storage == nil {
		return nil, errors.New("service: storage is required")
	}

	gen, err := fingerprint.NewGenerator(cfg.Fingerprint, cfg.FrameWorkers)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	s := &AcousticService{
		store:   cfg.Storage,
		gen:     gen,
		cfg:     cfg.Fingerprint,
		log:     cfg.Logger,
		workers: workers,
		queue:   max(cfg.QueueSize, 0),
		tempDir: cfg.TempDir,
	}

	drift, err := s.store.CheckSettings(ctx, cfg.Fingerprint.Settings())
	if err != nil {
		return nil, fmt.Errorf("checking catalog settings: %w", err)
	}
	for _, d := range drift {
		s.log.Warnf("setting %s differs from catalog: catalog=%q current=%q; new fingerprints will not match existing ones",
			d.Key, d.Stored, d.Current)
	}
	s.drift = drift
	return s, nil
}

// Drift returns the settings that differed from the catalog at start-up.
func (s *AcousticService) Drift() []model.SettingDrift { return s.drift }

// Config returns the fingerprint settings in use.
func (s *AcousticService) Config() fingerprint.Config { return s.cfg }

func (s *AcousticService) Close() error {
	return s.store.Close()
}

// IndexResult describes one indexed file.
type IndexResult struct {
	Track        *model.Track
	Fingerprints int
	Frames       int
	Peaks        int
}

// IndexFile catalogs a single file. A file whose digest is already stored
// returns the existing track and an error wrapping ErrDuplicateTrack.
func (s *AcousticService) IndexFile(ctx context.Context, path string) (*IndexResult, error) {
	digest, err := utils.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	if existing, err := s.lookupDigest(ctx, digest); err != nil {
		return nil, err
	} else if existing != nil {
		return &IndexResult{Track: existing}, fmt.Errorf("%s: %w", path, ErrDuplicateTrack)
	}

	dec, err := s.decode(ctx, path, digest)
	if err != nil {
		return nil, err
	}
	fp, err := s.fingerprint(ctx, dec)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, fp)
}

// IndexYouTube downloads the audio of a video into the temp dir and indexes it.
func (s *AcousticService) IndexYouTube(ctx context.Context, videoURL string) (*IndexResult, error) {
	path, err := audio.DownloadYouTube(ctx, videoURL, filepath.Join(s.tempDir, "youtube"))
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	return s.IndexFile(ctx, path)
}

// Fingerprint runs the pipeline on path without touching the catalog.
func (s *AcousticService) Fingerprint(ctx context.Context, path string) (*fingerprint.Result, error) {
	pcm, err := audio.Decode(ctx, path, s.decodeOptions())
	if err != nil {
		return nil, err
	}
	return s.gen.Fingerprint(ctx, fingerprint.Waveform{Samples: pcm.Samples, SampleRate: pcm.SampleRate})
}

func (s *AcousticService) lookupDigest(ctx context.Context, digest string) (*model.Track, error) {
	t, err := s.store.FindTrackByDigest(ctx, digest)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up digest: %w", err)
	}
	return t, nil
}

func (s *AcousticService) decodeOptions() audio.DecodeOptions {
	return audio.DecodeOptions{SampleRate: s.cfg.SampleRate, TempDir: s.tempDir}
}

// decoded is a track between the I/O and CPU stages.
type decoded struct {
	path   string
	digest string
	pcm    *audio.PCM
	tags   audio.Tags
}

// fingerprinted is a track between the CPU and store stages.
type fingerprinted struct {
	decoded
	result *fingerprint.Result
}

func (s *AcousticService) decode(ctx context.Context, path, digest string) (*decoded, error) {
	pcm, err := audio.Decode(ctx, path, s.decodeOptions())
	if err != nil {
		return nil, err
	}
	tags, err := audio.ReadTags(path)
	if err != nil {
		s.log.Debugf("no tags in %s: %v", filepath.Base(path), err)
	}
	return &decoded{path: path, digest: digest, pcm: pcm, tags: tags}, nil
}

func (s *AcousticService) fingerprint(ctx context.Context, d *decoded) (*fingerprinted, error) {
	res, err := s.gen.Fingerprint(ctx, fingerprint.Waveform{Samples: d.pcm.Samples, SampleRate: d.pcm.SampleRate})
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", d.path, err)
	}
	s.log.Debugf("%s: %d frames, %d peaks, %d pairs, %d fingerprints",
		filepath.Base(d.path), res.Frames, res.Peaks, res.Pairs, len(res.Fingerprints))
	return &fingerprinted{decoded: *d, result: res}, nil
}

func (s *AcousticService) save(ctx context.Context, f *fingerprinted) (*IndexResult, error) {
	name := filepath.Base(f.path)
	title := f.tags.Title
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	track := &model.Track{
		Name:       name,
		Title:      title,
		Artist:     f.tags.Artist,
		Digest:     f.digest,
		DurationMs: f.pcm.DurationMs(),
	}

	if _, err := s.store.SaveTrack(ctx, track, f.result.Fingerprints); err != nil {
		if errors.Is(err, storage.ErrDuplicateDigest) {
			return nil, fmt.Errorf("%s: %w", f.path, ErrDuplicateTrack)
		}
		return nil, fmt.Errorf("saving %s: %w", name, err)
	}
	s.log.Infof("indexed %s as %s (%d fingerprints)", name, track.ID, len(f.result.Fingerprints))

	return &IndexResult{
		Track:        track,
		Fingerprints: len(f.result.Fingerprints),
		Frames:       f.result.Frames,
		Peaks:        f.result.Peaks,
	}, nil
}

// TrackInfo is a catalog entry with its fingerprint count.
type TrackInfo struct {
	model.Track
	Fingerprints int64 `json:"fingerprints"`
}

func (s *AcousticService) ListTracks(ctx context.Context) ([]model.Track, error) {
	return s.store.ListTracks(ctx)
}

func (s *AcousticService) GetTrack(ctx context.Context, id string) (*TrackInfo, error) {
	t, err := s.store.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.store.FingerprintCount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TrackInfo{Track: *t, Fingerprints: n}, nil
}

func (s *AcousticService) DeleteTrack(ctx context.Context, id string) error {
	if err := s.store.DeleteTrack(ctx, id); err != nil {
		return err
	}
	s.log.Infof("deleted track %s", id)
	return nil
}

// Lookup returns every catalog occurrence of hash.
func (s *AcousticService) Lookup(ctx context.Context, hash uint32) ([]model.Couple, error) {
	return s.store.CouplesByHash(ctx, hash)
}

// Stats summarises the catalog.
type Stats struct {
	Tracks       int   `json:"tracks"`
	Fingerprints int64 `json:"fingerprints"`
}

func (s *AcousticService) Stats(ctx context.Context) (*Stats, error) {
	tracks, err := s.store.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.store.FingerprintCount(ctx, "")
	if err != nil {
		return nil, err
	}
	return &Stats{Tracks: len(tracks), Fingerprints: n}, nil
}

// SettingsReport compares the catalog settings with the running ones.
type SettingsReport struct {
	Stored  []fingerprint.Setting `json:"stored"`
	Current []fingerprint.Setting `json:"current"`
	Drift   []model.SettingDrift  `json:"drift"`
	Digest  string                `json:"digest"`
}

func (s *AcousticService) Settings(ctx context.Context) (*SettingsReport, error) {
	stored, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	current := s.cfg.Settings()
	m := make(map[string]string, len(stored))
	for _, st := range stored {
		m[st.Key] = st.Value
	}
	var drift []model.SettingDrift
	for _, c := range current {
		if m[c.Key] != c.Value {
			drift = append(drift, model.SettingDrift{Key: c.Key, Stored: m[c.Key], Current: c.Value})
		}
	}
	return &SettingsReport{Stored: stored, Current: current, Drift: drift, Digest: s.cfg.Digest()}, nil
}
