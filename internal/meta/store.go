// Package meta resolves track identifiers to display metadata held in
// normalized tracks/artists/albums tables.
package meta

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rfiorani/echomatch/internal/model"
)

// Track is a catalog entry. AlbumID is nil for singles and untagged rips.
type Track struct {
	ID      string `gorm:"primaryKey;type:varchar(64)"`
	Name    string
	AlbumID *uint
}

type Artist struct {
	ID   uint `gorm:"primaryKey;autoIncrement"`
	Name string
}

type Album struct {
	ID   uint `gorm:"primaryKey;autoIncrement"`
	Name string
}

// TrackArtist links tracks to artists. Tracks without a row here resolve
// with no artist.
type TrackArtist struct {
	TrackID  string `gorm:"index:idx_track_artist"`
	ArtistID uint
}

type Store struct {
	db  *gorm.DB
	sql *sql.DB
}

// Open opens (creating if necessary) the metadata database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &Artist{}, &Album{}, &TrackArtist{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating metadata schema: %w", err)
	}

	return &Store{db: db, sql: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// Resolve looks up title/artist/album for a track through left-outer
// joins. Missing associations, or a missing track row altogether, yield
// nil fields rather than an error. Read-only and concurrent-safe.
func (s *Store) Resolve(ctx context.Context, trackID string) (model.TrackMetadata, error) {
	var row struct {
		Title  *string
		Artist *string
		Album  *string
	}

	err := s.db.WithContext(ctx).Raw(`
		SELECT t.name AS title, ar.name AS artist, al.name AS album
		FROM tracks t
		LEFT JOIN track_artists ta ON ta.track_id = t.id
		LEFT JOIN artists ar ON ar.id = ta.artist_id
		LEFT JOIN albums al ON al.id = t.album_id
		WHERE t.id = ? LIMIT 1`, trackID).Scan(&row).Error
	if err != nil {
		return model.TrackMetadata{}, fmt.Errorf("resolving track %s: %w", trackID, err)
	}

	return model.TrackMetadata{Title: row.Title, Artist: row.Artist, Album: row.Album}, nil
}

// Tracks reports the number of catalog entries.
func (s *Store) Tracks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Track{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting tracks: %w", err)
	}
	return n, nil
}

// The writers below exist for tests and seeding tools; the serving path
// never mutates the catalog.

func (s *Store) AddAlbum(name string) (uint, error) {
	album := Album{Name: name}
	if err := s.db.Create(&album).Error; err != nil {
		return 0, fmt.Errorf("inserting album: %w", err)
	}
	return album.ID, nil
}

func (s *Store) AddArtist(name string) (uint, error) {
	artist := Artist{Name: name}
	if err := s.db.Create(&artist).Error; err != nil {
		return 0, fmt.Errorf("inserting artist: %w", err)
	}
	return artist.ID, nil
}

func (s *Store) AddTrack(id, name string, albumID *uint) error {
	if err := s.db.Create(&Track{ID: id, Name: name, AlbumID: albumID}).Error; err != nil {
		return fmt.Errorf("inserting track: %w", err)
	}
	return nil
}

func (s *Store) LinkArtist(trackID string, artistID uint) error {
	if err := s.db.Create(&TrackArtist{TrackID: trackID, ArtistID: artistID}).Error; err != nil {
		return fmt.Errorf("linking artist: %w", err)
	}
	return nil
}
