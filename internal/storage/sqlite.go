package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/model"
)

const DefaultDBFile = "acousticprint.sqlite3"
const errDBClientNil = "db client is nil"

// DBClient is the gorm-backed catalog used for both SQLite and PostgreSQL.
type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Track struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Name       string `gorm:"index:idx_track_name"`
	Title      string
	Artist     string
	Digest     string `gorm:"type:varchar(128);uniqueIndex:idx_track_digest"`
	DurationMs int
	CreatedAt  time.Time
}

type Fingerprint struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Hash         uint32 `gorm:"index:idx_hash"`
	TrackID      string `gorm:"type:varchar(36);index:idx_track"`
	AnchorTimeMs uint32
}

// Setting is one fingerprint-affecting parameter the catalog was built with.
type Setting struct {
	Key   string `gorm:"primaryKey;type:varchar(64)"`
	Value string
}

// NewDBClientWithPath opens (creating if needed) a SQLite catalog.
func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	c, err := openDB(sqlite.Open(dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	c.db.SetMaxOpenConns(1) // single writer
	return c, nil
}

// NewPostgresClient opens a PostgreSQL catalog.
func NewPostgresClient(dsn string) (*DBClient, error) {
	c, err := openDB(postgres.Open(dsn))
	if err != nil {
		return nil, fmt.Errorf("opening postgres db: %w", err)
	}
	c.db.SetMaxOpenConns(25)
	c.db.SetMaxIdleConns(5)
	return c, nil
}

func openDB(dialector gorm.Dialector) (*DBClient, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &Fingerprint{}, &Setting{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) ready() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// SaveTrack inserts the track and all its fingerprints in one transaction.
func (c *DBClient) SaveTrack(ctx context.Context, track *model.Track, fps []model.Fingerprint) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if err := prepareTrack(track, fps); err != nil {
		return "", err
	}

	row := Track{
		ID:         track.ID,
		Name:       track.Name,
		Title:      track.Title,
		Artist:     track.Artist,
		Digest:     track.Digest,
		DurationMs: track.DurationMs,
		CreatedAt:  track.CreatedAt,
	}
	entries := make([]Fingerprint, len(fps))
	for i, fp := range fps {
		entries[i] = Fingerprint{Hash: fp.Hash, TrackID: track.ID, AnchorTimeMs: fp.AnchorTimeMs}
	}

	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isDuplicate(err) {
				return ErrDuplicateDigest
			}
			return fmt.Errorf("creating track: %w", err)
		}
		if err := tx.CreateInBatches(entries, 500).Error; err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return track.ID, nil
}

func (c *DBClient) findTrack(ctx context.Context, query string, arg any) (*model.Track, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var row Track
	err := c.DB.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	t := row.toModel()
	return &t, nil
}

func (c *DBClient) FindTrackByDigest(ctx context.Context, digest string) (*model.Track, error) {
	return c.findTrack(ctx, "digest = ?", digest)
}

func (c *DBClient) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	return c.findTrack(ctx, "id = ?", id)
}

func (c *DBClient) ListTracks(ctx context.Context) ([]model.Track, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []Track
	if err := c.DB.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	out := make([]model.Track, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (c *DBClient) DeleteTrack(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("track_id = ?", id).Delete(&Fingerprint{}).Error
	})
}

func (c *DBClient) Fingerprints(ctx context.Context, trackID string) ([]model.Fingerprint, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []Fingerprint
	err := c.DB.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("hash, anchor_time_ms").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	out := make([]model.Fingerprint, len(rows))
	for i, r := range rows {
		out[i] = model.Fingerprint{Hash: r.Hash, AnchorTimeMs: r.AnchorTimeMs}
	}
	return out, nil
}

func (c *DBClient) FingerprintCount(ctx context.Context, trackID string) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	q := c.DB.WithContext(ctx).Model(&Fingerprint{})
	if trackID != "" {
		q = q.Where("track_id = ?", trackID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return n, nil
}

func (c *DBClient) CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []Fingerprint
	err := c.DB.WithContext(ctx).
		Where("hash = ?", hash).
		Order("track_id, anchor_time_ms").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	out := make([]model.Couple, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Couple{TrackID: r.TrackID, AnchorTimeMs: r.AnchorTimeMs})
	}
	return out, nil
}

func (c *DBClient) storedSettings(ctx context.Context) (map[string]string, error) {
	var rows []Setting
	if err := c.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.Key] = r.Value
	}
	return m, nil
}

func (c *DBClient) Settings(ctx context.Context) ([]fingerprint.Setting, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	stored, err := c.storedSettings(ctx)
	if err != nil {
		return nil, err
	}
	return sortedSettings(stored), nil
}

func (c *DBClient) CheckSettings(ctx context.Context, current []fingerprint.Setting) ([]model.SettingDrift, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	stored, err := c.storedSettings(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return compareSettings(stored, current), nil
	}

	rows := make([]Setting, len(current))
	for i, s := range current {
		rows[i] = Setting{Key: s.Key, Value: s.Value}
	}
	if err := c.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		if isDuplicate(err) {
			// another process recorded them first
			stored, err := c.storedSettings(ctx)
			if err != nil {
				return nil, err
			}
			return compareSettings(stored, current), nil
		}
		return nil, fmt.Errorf("recording settings: %w", err)
	}
	return nil, nil
}

func (r Track) toModel() model.Track {
	return model.Track{
		ID:         r.ID,
		Name:       r.Name,
		Title:      r.Title,
		Artist:     r.Artist,
		Digest:     r.Digest,
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt,
	}
}
