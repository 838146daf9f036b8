// Package index holds the fingerprint inverted index: one row per
// (code, track) occurrence, queried in bulk to score identification
// candidates by code overlap.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rfiorani/echomatch/internal/model"
)

// ErrEmptyQuery is returned when TopMatch is called with no codes. Callers
// are expected to validate at the request boundary; this is the backstop.
var ErrEmptyQuery = errors.New("empty code query")

// lookupBatchSize caps the bind variables per IN query; sqlite rejects
// statements with more variables than its compile-time ceiling.
const lookupBatchSize = 10000

// Entry is a stored (code, track) occurrence. A track that emits the same
// code twice has two rows, and scoring counts both.
type Entry struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Code    uint32 `gorm:"index:idx_entry_code"`
	TrackID string `gorm:"type:varchar(64);index:idx_entry_track"`
}

type Store struct {
	db  *gorm.DB
	sql *sql.DB
}

// Open opens (creating if necessary) the index database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating index schema: %w", err)
	}

	return &Store{db: db, sql: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// TopMatch returns the track whose indexed codes overlap the query the
// most, or (nil, nil) when no entry contains any query code.
//
// Scoring is the cartesian count over the join on code: every occurrence
// of a code in the query is paired with every index entry carrying that
// code, so duplicates on either side multiply. Ties on the score are
// broken by the lowest track ID, which keeps repeated queries against a
// fixed index deterministic.
//
// The query is read-only and safe to run concurrently.
func (s *Store) TopMatch(ctx context.Context, codes []uint32) (*model.MatchCandidate, error) {
	if len(codes) == 0 {
		return nil, ErrEmptyQuery
	}

	multiplicity := make(map[uint32]int, len(codes))
	for _, c := range codes {
		multiplicity[c]++
	}
	distinct := make([]uint32, 0, len(multiplicity))
	for c := range multiplicity {
		distinct = append(distinct, c)
	}

	var rows []Entry
	for start := 0; start < len(distinct); start += lookupBatchSize {
		end := start + lookupBatchSize
		if end > len(distinct) {
			end = len(distinct)
		}
		var batch []Entry
		if err := s.db.WithContext(ctx).Where("code IN ?", distinct[start:end]).Find(&batch).Error; err != nil {
			return nil, fmt.Errorf("querying index: %w", err)
		}
		rows = append(rows, batch...)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	scores := make(map[string]int)
	for _, r := range rows {
		scores[r.TrackID] += multiplicity[r.Code]
	}

	var best model.MatchCandidate
	for trackID, score := range scores {
		if score > best.Score || (score == best.Score && trackID < best.TrackID) {
			best = model.MatchCandidate{TrackID: trackID, Score: score}
		}
	}
	return &best, nil
}

// Add stores the code sequence for a track. Used by tests and seeding
// tools; the serving path never writes.
func (s *Store) Add(trackID string, codes []uint32) error {
	if len(codes) == 0 {
		return nil
	}
	entries := make([]Entry, len(codes))
	for i, c := range codes {
		entries[i] = Entry{Code: c, TrackID: trackID}
	}
	if err := s.db.CreateInBatches(entries, 500).Error; err != nil {
		return fmt.Errorf("inserting index entries: %w", err)
	}
	return nil
}

// Entries reports the total number of index rows.
func (s *Store) Entries(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting index entries: %w", err)
	}
	return n, nil
}

// Tracks reports the number of distinct tracks in the index.
func (s *Store) Tracks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Distinct("track_id").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting indexed tracks: %w", err)
	}
	return n, nil
}
