// Package identify implements the server side of the identification
// pipeline: score a code query against the fingerprint index and resolve
// the winner's metadata.
package identify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rfiorani/echomatch/internal/index"
	"github.com/rfiorani/echomatch/internal/meta"
	"github.com/rfiorani/echomatch/internal/model"
	"github.com/rfiorani/echomatch/pkg/logger"
)

var (
	// ErrInvalidQuery marks a request with no usable codes. It is never
	// retried; the caller gets it back as a 4xx.
	ErrInvalidQuery = errors.New("empty or missing code query")

	// ErrStoreUnavailable marks a failure to reach the index or metadata
	// database.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Service owns the handles to the fingerprint index and the metadata
// catalog. Both are opened on first use, exactly once, and reused for the
// life of the process; requests after a failed open keep getting the open
// error rather than racing to reopen.
type Service struct {
	cfg *Config
	log *logger.Logger

	initOnce sync.Once
	initErr  error
	index    *index.Store
	meta     *meta.Store
}

func New(opts ...Option) *Service {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	return &Service{cfg: cfg, log: cfg.Logger}
}

func (s *Service) stores() (*index.Store, *meta.Store, error) {
	s.initOnce.Do(func() {
		idx, err := index.Open(s.cfg.IndexPath)
		if err != nil {
			s.initErr = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			return
		}
		m, err := meta.Open(s.cfg.MetaPath)
		if err != nil {
			idx.Close()
			s.initErr = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			return
		}
		s.index = idx
		s.meta = m
		s.log.Infof("Opened stores: index=%s meta=%s", s.cfg.IndexPath, s.cfg.MetaPath)
	})
	return s.index, s.meta, s.initErr
}

// Identify scores the query codes against the index and, on a hit,
// resolves the winning track's metadata. A query that overlaps nothing
// returns Found=false with a nil error; "no match" is an outcome, not a
// failure.
func (s *Service) Identify(ctx context.Context, codes []uint32) (*model.Identification, error) {
	if len(codes) == 0 {
		return nil, ErrInvalidQuery
	}

	idx, m, err := s.stores()
	if err != nil {
		return nil, err
	}

	candidate, err := idx.TopMatch(ctx, codes)
	if err != nil {
		if errors.Is(err, index.ErrEmptyQuery) {
			return nil, ErrInvalidQuery
		}
		return nil, err
	}
	if candidate == nil {
		s.log.Debugf("No overlap for %d query codes", len(codes))
		return &model.Identification{Found: false}, nil
	}

	md, err := m.Resolve(ctx, candidate.TrackID)
	if err != nil {
		return nil, err
	}

	s.log.Infof("Matched track %s with score %d", candidate.TrackID, candidate.Score)
	return &model.Identification{
		Found:   true,
		TrackID: candidate.TrackID,
		Score:   candidate.Score,
		Meta:    md,
	}, nil
}

// ResolveTrack resolves metadata for a known track ID, independent of any
// match.
func (s *Service) ResolveTrack(ctx context.Context, trackID string) (model.TrackMetadata, error) {
	_, m, err := s.stores()
	if err != nil {
		return model.TrackMetadata{}, err
	}
	return m.Resolve(ctx, trackID)
}

// Stats reports catalog and index sizes.
type Stats struct {
	IndexEntries  int64
	IndexedTracks int64
	CatalogTracks int64
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	idx, m, err := s.stores()
	if err != nil {
		return nil, err
	}

	entries, err := idx.Entries(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := idx.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := m.Tracks(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{IndexEntries: entries, IndexedTracks: indexed, CatalogTracks: catalog}, nil
}

func (s *Service) Close() error {
	var first error
	if s.index != nil {
		first = s.index.Close()
	}
	if s.meta != nil {
		if err := s.meta.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
