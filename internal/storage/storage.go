package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/model"
)

var (
	// ErrNotFound is returned when a track does not exist.
	ErrNotFound = errors.New("storage: track not found")

	// ErrDuplicateDigest is returned when a track with the same content digest is already stored.
	ErrDuplicateDigest = errors.New("storage: track with this digest already exists")

	// ErrNoFingerprints is returned by SaveTrack for an empty fingerprint set.
	ErrNoFingerprints = errors.New("storage: refusing to save a track without fingerprints")
)

// Storage is a fingerprint catalog. SaveTrack is atomic: a track and its
// fingerprints become visible to readers together or not at all.
type Storage interface {
	SaveTrack(ctx context.Context, track *model.Track, fps []model.Fingerprint) (string, error)
	FindTrackByDigest(ctx context.Context, digest string) (*model.Track, error)
	GetTrack(ctx context.Context, id string) (*model.Track, error)
	ListTracks(ctx context.Context) ([]model.Track, error)
	DeleteTrack(ctx context.Context, id string) error

	// Fingerprints returns the fingerprints of one track ordered by hash.
	Fingerprints(ctx context.Context, trackID string) ([]model.Fingerprint, error)
	// FingerprintCount counts the fingerprints of trackID, or of the whole catalog when trackID is empty.
	FingerprintCount(ctx context.Context, trackID string) (int64, error)
	// CouplesByHash returns every (track, anchor time) stored under hash.
	CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error)

	// Settings returns the fingerprint settings recorded with the catalog.
	Settings(ctx context.Context) ([]fingerprint.Setting, error)
	// CheckSettings records current on first use and afterwards reports
	// every setting whose stored value differs. It never overwrites.
	CheckSettings(ctx context.Context, current []fingerprint.Setting) ([]model.SettingDrift, error)

	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Options selects and locates a backend.
type Options struct {
	Driver string
	Path   string // sqlite file or badger directory
	DSN    string // postgres connection string
}

// Open returns the backend named by opts.Driver.
func Open(opts Options) (Storage, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite:
		path := opts.Path
		if path == "" {
			path = DefaultDBFile
		}
		return NewDBClientWithPath(path)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("storage: postgres driver needs a dsn")
		}
		return NewPostgresClient(opts.DSN)
	case DriverBadger:
		path := opts.Path
		if path == "" {
			path = DefaultBadgerDir
		}
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}

// prepareTrack validates a save request and fills the storage-assigned fields.
func prepareTrack(track *model.Track, fps []model.Fingerprint) error {
	if track == nil {
		return errors.New("storage: nil track")
	}
	if len(fps) == 0 {
		return ErrNoFingerprints
	}
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}
	return nil
}

func compareSettings(stored map[string]string, current []fingerprint.Setting) []model.SettingDrift {
	var drift []model.SettingDrift
	for _, s := range current {
		if v := stored[s.Key]; v != s.Value {
			drift = append(drift, model.SettingDrift{Key: s.Key, Stored: v, Current: s.Value})
		}
	}
	return drift
}

func sortedSettings(stored map[string]string) []fingerprint.Setting {
	out := make([]fingerprint.Setting, 0, len(stored))
	for k, v := range stored {
		out = append(out, fingerprint.Setting{Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b fingerprint.Setting) int { return strings.Compare(a.Key, b.Key) })
	return out
}
