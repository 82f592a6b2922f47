package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/model"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

const DefaultBadgerDir = "acousticprint.badger"

// Key layout:
//
//	t/<id>                         -> JSON model.Track
//	d/<digest>                     -> <id>
//	h/<hash:4><id>/<anchor:4>      -> (empty) posting for hash lookups
//	f/<id>/<hash:4><anchor:4>      -> (empty) per-track fingerprint list
//	s/<key>                        -> setting value
var (
	prefixTrack   = []byte("t/")
	prefixDigest  = []byte("d/")
	prefixHash    = []byte("h/")
	prefixFP      = []byte("f/")
	prefixSetting = []byte("s/")
)

// BadgerStore is an embedded key-value catalog. Postings are written before
// the track record and readers ignore postings of unknown tracks, so a track
// becomes visible in one step.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if needed) a catalog in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir))
}

// NewInMemoryBadgerStore returns a catalog that lives only as long as the process.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithLogger(badgerLogger{logger.GetLogger()}))
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// badgerLogger routes badger's own messages through the application logger.
// Badger is chatty at info level, so info is demoted to debug.
type badgerLogger struct{ l *logger.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Errorf("badger: "+f, v...) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warnf("badger: "+f, v...) }
func (b badgerLogger) Infof(f string, v ...any)    { b.l.Debugf("badger: "+f, v...) }
func (b badgerLogger) Debugf(f string, v ...any)   { b.l.Debugf("badger: "+f, v...) }

func (s *BadgerStore) Close() error { return s.db.Close() }

func key(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func be32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func trackKey(id string) []byte      { return key(prefixTrack, []byte(id)) }
func digestKey(digest string) []byte { return key(prefixDigest, []byte(digest)) }
func fpPrefix(id string) []byte      { return key(prefixFP, []byte(id), []byte("/")) }

func postingKey(hash uint32, id string, anchor uint32) []byte {
	return key(prefixHash, be32(hash), []byte(id), []byte("/"), be32(anchor))
}

func fpKey(id string, hash, anchor uint32) []byte {
	return key(fpPrefix(id), be32(hash), be32(anchor))
}

func (s *BadgerStore) SaveTrack(ctx context.Context, track *model.Track, fps []model.Fingerprint) (string, error) {
	if err := prepareTrack(track, fps); err != nil {
		return "", err
	}
	if track.Digest != "" {
		if _, err := s.FindTrackByDigest(ctx, track.Digest); err == nil {
			return "", ErrDuplicateDigest
		} else if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	record, err := json.Marshal(track)
	if err != nil {
		return "", fmt.Errorf("encoding track: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, fp := range fps {
		if err := ctx.Err(); err != nil {
			return "", s.abandon(track.ID, err)
		}
		if err := wb.Set(postingKey(fp.Hash, track.ID, fp.AnchorTimeMs), nil); err != nil {
			return "", s.abandon(track.ID, fmt.Errorf("writing posting: %w", err))
		}
		if err := wb.Set(fpKey(track.ID, fp.Hash, fp.AnchorTimeMs), nil); err != nil {
			return "", s.abandon(track.ID, fmt.Errorf("writing fingerprint: %w", err))
		}
	}
	if err := wb.Flush(); err != nil {
		return "", s.abandon(track.ID, fmt.Errorf("flushing fingerprints: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return "", s.abandon(track.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if track.Digest != "" {
			if _, err := txn.Get(digestKey(track.Digest)); err == nil {
				return ErrDuplicateDigest
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(digestKey(track.Digest), []byte(track.ID)); err != nil {
				return err
			}
		}
		return txn.Set(trackKey(track.ID), record)
	})
	if errors.Is(err, badger.ErrConflict) {
		err = ErrDuplicateDigest
	}
	if err != nil {
		return "", s.abandon(track.ID, err)
	}
	return track.ID, nil
}

// abandon removes the postings of a track whose record was never committed.
func (s *BadgerStore) abandon(id string, cause error) error {
	if err := s.deleteFingerprints(id); err != nil {
		return errors.Join(cause, fmt.Errorf("cleaning up %s: %w", id, err))
	}
	return cause
}

func (s *BadgerStore) deleteFingerprints(id string) error {
	prefix := fpPrefix(id)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		rest := k[len(prefix):]
		hash := binary.BigEndian.Uint32(rest[:4])
		anchor := binary.BigEndian.Uint32(rest[4:8])
		if err := wb.Delete(postingKey(hash, id, anchor)); err != nil {
			return err
		}
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func getTrack(txn *badger.Txn, id string) (*model.Track, error) {
	item, err := txn.Get(trackKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t model.Track
	err = item.Value(func(v []byte) error { return json.Unmarshal(v, &t) })
	if err != nil {
		return nil, fmt.Errorf("decoding track %s: %w", id, err)
	}
	return &t, nil
}

func (s *BadgerStore) FindTrackByDigest(_ context.Context, digest string) (*model.Track, error) {
	var t *model.Track
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(digestKey(digest))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		t, err = getTrack(txn, string(id))
		return err
	})
	return t, err
}

func (s *BadgerStore) GetTrack(_ context.Context, id string) (*model.Track, error) {
	var t *model.Track
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		t, err = getTrack(txn, id)
		return err
	})
	return t, err
}

func (s *BadgerStore) ListTracks(_ context.Context) ([]model.Track, error) {
	var out []model.Track
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixTrack
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefixTrack); it.ValidForPrefix(prefixTrack); it.Next() {
			var t model.Track
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &t) }); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	slices.SortFunc(out, func(a, b model.Track) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *BadgerStore) DeleteTrack(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		t, err := getTrack(txn, id)
		if err != nil {
			return err
		}
		if t.Digest != "" {
			if err := txn.Delete(digestKey(t.Digest)); err != nil {
				return err
			}
		}
		return txn.Delete(trackKey(id))
	})
	if err != nil {
		return err
	}
	return s.deleteFingerprints(id)
}

func (s *BadgerStore) Fingerprints(_ context.Context, trackID string) ([]model.Fingerprint, error) {
	prefix := fpPrefix(trackID)
	var out []model.Fingerprint
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getTrack(txn, trackID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := it.Item().Key()[len(prefix):]
			out = append(out, model.Fingerprint{
				Hash:         binary.BigEndian.Uint32(rest[:4]),
				AnchorTimeMs: binary.BigEndian.Uint32(rest[4:8]),
			})
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) FingerprintCount(ctx context.Context, trackID string) (int64, error) {
	if trackID != "" {
		fps, err := s.Fingerprints(ctx, trackID)
		return int64(len(fps)), err
	}

	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		live := make(map[string]bool)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixFP
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefixFP); it.ValidForPrefix(prefixFP); it.Next() {
			k := it.Item().Key()
			id := string(k[len(prefixFP) : len(k)-9])
			ok, seen := live[id]
			if !seen {
				_, err := txn.Get(trackKey(id))
				ok = err == nil
				live[id] = ok
			}
			if ok {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *BadgerStore) CouplesByHash(_ context.Context, hash uint32) ([]model.Couple, error) {
	prefix := key(prefixHash, be32(hash))
	var out []model.Couple
	err := s.db.View(func(txn *badger.Txn) error {
		live := make(map[string]bool)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			id := string(k[len(prefix) : len(k)-5])
			ok, seen := live[id]
			if !seen {
				_, err := txn.Get(trackKey(id))
				ok = err == nil
				live[id] = ok
			}
			if ok {
				out = append(out, model.Couple{TrackID: id, AnchorTimeMs: binary.BigEndian.Uint32(k[len(k)-4:])})
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) storedSettings(txn *badger.Txn) (map[string]string, error) {
	m := make(map[string]string)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefixSetting
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefixSetting); it.ValidForPrefix(prefixSetting); it.Next() {
		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		m[string(it.Item().Key()[len(prefixSetting):])] = string(v)
	}
	return m, nil
}

func (s *BadgerStore) Settings(_ context.Context) ([]fingerprint.Setting, error) {
	var stored map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		stored, err = s.storedSettings(txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return sortedSettings(stored), nil
}

func (s *BadgerStore) CheckSettings(_ context.Context, current []fingerprint.Setting) ([]model.SettingDrift, error) {
	var drift []model.SettingDrift
	err := s.db.Update(func(txn *badger.Txn) error {
		stored, err := s.storedSettings(txn)
		if err != nil {
			return err
		}
		if len(stored) > 0 {
			drift = compareSettings(stored, current)
			return nil
		}
		for _, st := range current {
			if err := txn.Set(key(prefixSetting, []byte(st.Key)), []byte(st.Value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking settings: %w", err)
	}
	return drift, nil
}
