package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/model"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

// writeSweep writes a 16-bit mono chirp from f0 to f1 Hz.
func writeSweep(t *testing.T, dir, name string, seconds, f0, f1 float64) string {
	t.Helper()
	const rate = 44100
	n := int(seconds * rate)
	k := (f1 - f0) / seconds
	data := make([]int, n)
	for i := range data {
		x := float64(i) / rate
		data[i] = int(0.8 * 32767 * math.Cos(2*math.Pi*(f0*x+k*x*x/2)))
	}
	return writeWAV(t, dir, name, data)
}

func writeWAV(t *testing.T, dir, name string, data []int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func copyFile(t *testing.T, src, dst string) string {
	t.Helper()
	b, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return dst
}

func newService(t *testing.T, store storage.Storage, opts ...Option) *AcousticService {
	t.Helper()
	opts = append([]Option{
		WithStorage(store),
		WithLogger(logger.Nop()),
		WithWorkers(2),
		WithFrameWorkers(2),
		WithTempDir(t.TempDir()),
	}, opts...)
	svc, err := NewAcousticService(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewAcousticService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func sqliteStore(t *testing.T, path string) storage.Storage {
	t.Helper()
	c, err := storage.NewDBClientWithPath(path)
	if err != nil {
		t.Fatalf("NewDBClientWithPath: %v", err)
	}
	return c
}

func memoryStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewInMemoryBadgerStore()
	if err != nil {
		t.Fatalf("NewInMemoryBadgerStore: %v", err)
	}
	return s
}

func TestNewRequiresStorage(t *testing.T) {
	if _, err := NewAcousticService(context.Background(), WithLogger(logger.Nop())); err == nil {
		t.Error("service created without storage")
	}
}

func TestNewRejectsInvalidFingerprintConfig(t *testing.T) {
	cfg := fingerprint.DefaultConfig()
	cfg.WindowOverlap = cfg.WindowSize
	store := memoryStore(t)
	defer store.Close()

	_, err := NewAcousticService(context.Background(), WithStorage(store), WithFingerprintConfig(cfg), WithLogger(logger.Nop()))
	if !errors.Is(err, fingerprint.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestIndexFileAndDuplicate(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, sqliteStore(t, filepath.Join(dir, "catalog.sqlite3")))
	path := writeSweep(t, dir, "sweep.wav", 3, 300, 6000)
	ctx := context.Background()

	res, err := svc.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if res.Track.ID == "" || res.Track.Title != "sweep" || res.Track.Name != "sweep.wav" {
		t.Errorf("track = %+v", res.Track)
	}
	if res.Track.DurationMs != 3000 {
		t.Errorf("DurationMs = %d, want 3000", res.Track.DurationMs)
	}
	if res.Fingerprints == 0 || res.Frames != 5 {
		t.Errorf("fingerprints=%d frames=%d", res.Fingerprints, res.Frames)
	}

	info, err := svc.GetTrack(ctx, res.Track.ID)
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if info.Fingerprints != int64(res.Fingerprints) {
		t.Errorf("stored %d fingerprints, generated %d", info.Fingerprints, res.Fingerprints)
	}

	again, err := svc.IndexFile(ctx, copyFile(t, path, filepath.Join(dir, "renamed.wav")))
	if !errors.Is(err, ErrDuplicateTrack) {
		t.Fatalf("second IndexFile err = %v, want ErrDuplicateTrack", err)
	}
	if again.Track.ID != res.Track.ID {
		t.Errorf("duplicate points at %s, want %s", again.Track.ID, res.Track.ID)
	}
}

func TestIndexFilesBatch(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, memoryStore(t), WithQueueSize(1))

	a := writeSweep(t, dir, "a.wav", 3, 300, 6000)
	b := writeSweep(t, dir, "b.wav", 3, 800, 3000)
	files := []string{
		a,
		b,
		copyFile(t, a, filepath.Join(dir, "a-copy.wav")),
		writeWAV(t, dir, "silent.wav", make([]int, 44100)),
		filepath.Join(dir, "garbage.wav"),
	}
	if err := os.WriteFile(files[4], []byte("not a wave file"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls []int
	report, err := svc.IndexFiles(context.Background(), files, func(done, total int, r FileResult) {
		if total != len(files) {
			t.Errorf("progress total = %d", total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("IndexFiles: %v", err)
	}

	if report.Indexed != 2 || report.Duplicates != 1 || report.Failed != 2 {
		t.Errorf("report = %d indexed, %d duplicates, %d failed", report.Indexed, report.Duplicates, report.Failed)
	}
	if len(calls) != len(files) || calls[len(calls)-1] != len(files) {
		t.Errorf("progress calls = %v", calls)
	}
	for i := 1; i < len(report.Files); i++ {
		if report.Files[i-1].Path > report.Files[i].Path {
			t.Errorf("report files not sorted: %s before %s", report.Files[i-1].Path, report.Files[i].Path)
		}
	}
	byName := make(map[string]FileResult)
	for _, r := range report.Files {
		byName[filepath.Base(r.Path)] = r
	}
	if orig, cp := byName["a.wav"], byName["a-copy.wav"]; orig.Outcome != Indexed || cp.Outcome != Duplicate ||
		cp.Track == nil || cp.Track.ID != orig.Track.ID || !errors.Is(cp.Err, ErrDuplicateTrack) {
		t.Errorf("a.wav = %+v, a-copy.wav = %+v", orig, cp)
	}
	for _, r := range report.Files {
		switch filepath.Base(r.Path) {
		case "silent.wav":
			if r.Outcome != Failed || !errors.Is(r.Err, fingerprint.ErrEmptyAudio) {
				t.Errorf("silent.wav: %v %v", r.Outcome, r.Err)
			}
		case "garbage.wav":
			if r.Outcome != Failed {
				t.Errorf("garbage.wav: %v", r.Outcome)
			}
		}
	}

	tracks, err := svc.ListTracks(context.Background())
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Errorf("catalog holds %d tracks, want 2", len(tracks))
	}
}

func TestIndexFilesCancelled(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, memoryStore(t))
	path := writeSweep(t, dir, "a.wav", 2, 300, 6000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.IndexFiles(ctx, []string{path}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// cancellingStore cancels the batch as the first track reaches the catalog.
type cancellingStore struct {
	storage.Storage
	cancel context.CancelFunc
}

func (c *cancellingStore) SaveTrack(ctx context.Context, track *model.Track, fps []model.Fingerprint) (string, error) {
	c.cancel()
	return c.Storage.SaveTrack(ctx, track, fps)
}

func TestIndexFilesCancelledWhileSaving(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.Storage{
		"sqlite": func(t *testing.T) storage.Storage {
			return sqliteStore(t, filepath.Join(t.TempDir(), "catalog.sqlite3"))
		},
		"badger": memoryStore,
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			files := []string{
				writeSweep(t, dir, "a.wav", 2, 300, 6000),
				writeSweep(t, dir, "b.wav", 2, 800, 3000),
				writeSweep(t, dir, "c.wav", 2, 400, 5000),
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			inner := open(t)
			svc := newService(t, &cancellingStore{Storage: inner, cancel: cancel})

			report, err := svc.IndexFiles(ctx, files, nil)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("err = %v, want context.Canceled", err)
			}
			if report.Indexed != 0 {
				t.Errorf("report claims %d indexed files", report.Indexed)
			}

			bg := context.Background()
			tracks, err := inner.ListTracks(bg)
			if err != nil {
				t.Fatalf("ListTracks: %v", err)
			}
			if len(tracks) != 0 {
				t.Errorf("catalog holds %d tracks after cancel", len(tracks))
			}
			if n, err := inner.FingerprintCount(bg, ""); err != nil || n != 0 {
				t.Errorf("FingerprintCount() = %d, %v after cancel, want 0", n, err)
			}
		})
	}
}

func TestIndexFilesCopiesOfFailedFile(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, memoryStore(t))

	silent := writeWAV(t, dir, "silent.wav", make([]int, 44100))
	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("not a wave file"), 0o644); err != nil {
		t.Fatal(err)
	}
	files := []string{
		silent,
		copyFile(t, silent, filepath.Join(dir, "silent-copy.wav")),
		garbage,
		copyFile(t, garbage, filepath.Join(dir, "garbage-copy.wav")),
	}

	report, err := svc.IndexFiles(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("IndexFiles: %v", err)
	}
	if report.Failed != len(files) || report.Duplicates != 0 || len(report.Files) != len(files) {
		t.Fatalf("report = %d failed, %d duplicates over %d files", report.Failed, report.Duplicates, len(report.Files))
	}
	for _, r := range report.Files {
		if r.Outcome != Failed || r.Err == nil {
			t.Errorf("%s: %v %v", filepath.Base(r.Path), r.Outcome, r.Err)
		}
		if strings.HasPrefix(filepath.Base(r.Path), "silent") && !errors.Is(r.Err, fingerprint.ErrEmptyAudio) {
			t.Errorf("%s: err = %v, want ErrEmptyAudio", filepath.Base(r.Path), r.Err)
		}
	}
}

func TestLookupAndDelete(t *testing.T) {
	dir := t.TempDir()
	svc := newService(t, memoryStore(t))
	path := writeSweep(t, dir, "a.wav", 2, 300, 6000)
	ctx := context.Background()

	res, err := svc.IndexFile(ctx, path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	dry, err := svc.Fingerprint(ctx, path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fp := dry.Fingerprints[0]

	couples, err := svc.Lookup(ctx, fp.Hash)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(couples) != 1 || couples[0].TrackID != res.Track.ID || couples[0].AnchorTimeMs != fp.AnchorTimeMs {
		t.Errorf("couples = %+v, want one at %d ms of %s", couples, fp.AnchorTimeMs, res.Track.ID)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Tracks != 1 || stats.Fingerprints != int64(len(dry.Fingerprints)) {
		t.Errorf("stats = %+v", stats)
	}

	if err := svc.DeleteTrack(ctx, res.Track.ID); err != nil {
		t.Fatalf("DeleteTrack: %v", err)
	}
	if couples, _ := svc.Lookup(ctx, fp.Hash); len(couples) != 0 {
		t.Errorf("deleted track still referenced: %+v", couples)
	}
	if _, err := svc.GetTrack(ctx, res.Track.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTrack after delete: %v", err)
	}
}

func TestSettingsDrift(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.sqlite3")
	ctx := context.Background()

	first, err := NewAcousticService(ctx, WithStorage(sqliteStore(t, db)), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("NewAcousticService: %v", err)
	}
	if len(first.Drift()) != 0 {
		t.Errorf("fresh catalog reported drift: %+v", first.Drift())
	}
	first.Close()

	cfg := fingerprint.DefaultConfig()
	cfg.MinPeakDB = -60
	svc := newService(t, sqliteStore(t, db), WithFingerprintConfig(cfg))

	drift := svc.Drift()
	if len(drift) != 1 || drift[0].Key != "min_peak_db" || drift[0].Stored != "-70" || drift[0].Current != "-60" {
		t.Errorf("drift = %+v", drift)
	}

	report, err := svc.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if len(report.Drift) != 1 || report.Digest != cfg.Digest() {
		t.Errorf("settings report = %+v", report)
	}
}

func TestIndexPathsWalksDirectories(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "album")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSweep(t, sub, "one.wav", 2, 400, 5000)
	writeSweep(t, root, "two.wav", 2, 700, 2500)
	if err := os.WriteFile(filepath.Join(root, "cover.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newService(t, memoryStore(t))
	report, err := svc.IndexPaths(context.Background(), []string{root}, nil)
	if err != nil {
		t.Fatalf("IndexPaths: %v", err)
	}
	if report.Indexed != 2 || len(report.Files) != 2 {
		t.Errorf("report = %+v", report)
	}
}
