// Package session drives the client side of identification: accumulate
// capture chunks, fingerprint the growing buffer, and ask the service for
// a match until one is found or the attempt budget runs out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rfiorani/echomatch/internal/codec"
	"github.com/rfiorani/echomatch/internal/echoprint"
	"github.com/rfiorani/echomatch/internal/model"
	"github.com/rfiorani/echomatch/pkg/logger"
)

// ErrDeviceUnavailable marks a failure to acquire the capture device.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

const (
	DefaultChunkDuration = 5 * time.Second
	DefaultMaxAttempts   = 3
	DefaultSampleRate    = 11025
)

// Status is the session state. Found, NotFound and Failed are terminal:
// the capture device is released and further chunks are not accepted.
type Status int32

const (
	Idle Status = iota
	Listening
	Matching
	Found
	NotFound
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Matching:
		return "matching"
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Chunk is one fixed-duration block of mono PCM from the capture device.
type Chunk []float32

// Recorder is the capture device. Acquire starts capture and returns the
// chunk stream; the channel closes when the device has no more audio.
// Release stops capture and frees the device; the session calls it exactly
// once on every exit path after a successful Acquire.
type Recorder interface {
	Acquire(ctx context.Context) (<-chan Chunk, error)
	Release() error
}

// Matcher is the service boundary the session submits code queries to.
type Matcher interface {
	Identify(ctx context.Context, codes []uint32) (*model.Identification, error)
}

type Config struct {
	MaxAttempts int
	SampleRate  int
	Logger      *logger.Logger
}

// Result is the terminal outcome of a session run. Match is set only for
// Found.
type Result struct {
	Status   Status
	Match    *model.Identification
	Attempts int
}

type Session struct {
	id      string
	rec     Recorder
	gen     echoprint.Generator
	matcher Matcher
	cfg     Config
	log     *logger.Logger
	status  atomic.Int32
}

func New(rec Recorder, gen echoprint.Generator, matcher Matcher, cfg Config) *Session {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	return &Session{
		id:      uuid.NewString(),
		rec:     rec,
		gen:     gen,
		matcher: matcher,
		cfg:     cfg,
		log:     cfg.Logger,
	}
}

func (s *Session) ID() string { return s.id }

// Status reports the current state. Safe to call from other goroutines.
func (s *Session) Status() Status { return Status(s.status.Load()) }

func (s *Session) setStatus(st Status) {
	s.status.Store(int32(st))
	s.log.Debugf("session %s: %s", s.id, st)
}

type attemptOutcome struct {
	match   *model.Identification
	skipped bool
	err     error
}

// Run executes the session to a terminal state. All state transitions
// happen on this goroutine; the only concurrency is the in-flight attempt,
// which reports back through a channel while new chunks keep buffering.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	chunks, err := s.rec.Acquire(ctx)
	if err != nil {
		// Nothing to release: acquisition never handed us the device.
		s.setStatus(Failed)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		if err := s.rec.Release(); err != nil {
			s.log.Warnf("session %s: releasing capture device: %v", s.id, err)
		}
	}()
	s.setStatus(Listening)

	var (
		buffer      []float32
		attempts    int
		inflight    chan attemptOutcome
		attemptSize int // buffer length the in-flight attempt was started with
		drained     bool
	)

	for {
		select {
		case <-ctx.Done():
			s.setStatus(Failed)
			return nil, ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				// Device ran out of audio (file sources do this). Let any
				// in-flight attempt finish; otherwise there is nothing new
				// to try.
				chunks = nil
				drained = true
				if inflight == nil {
					s.setStatus(NotFound)
					return &Result{Status: NotFound, Attempts: attempts}, nil
				}
				continue
			}
			buffer = append(buffer, chunk...)
			s.log.Debugf("session %s: buffered %d samples (%.1fs)",
				s.id, len(buffer), float64(len(buffer))/float64(s.cfg.SampleRate))
			if inflight == nil {
				attemptSize = len(buffer)
				inflight = s.beginAttempt(ctx, append([]float32(nil), buffer...))
				s.setStatus(Matching)
			}

		case outcome := <-inflight:
			inflight = nil
			switch {
			case outcome.err != nil:
				s.setStatus(Failed)
				return nil, outcome.err

			case outcome.skipped:
				// No usable codes; the attempt does not count.

			case outcome.match.Found:
				s.setStatus(Found)
				return &Result{Status: Found, Match: outcome.match, Attempts: attempts + 1}, nil

			default:
				attempts++
				if attempts >= s.cfg.MaxAttempts {
					s.setStatus(NotFound)
					return &Result{Status: NotFound, Attempts: attempts}, nil
				}
			}

			// Chunks that arrived mid-attempt were buffered, not dropped;
			// fold them into the next attempt right away.
			if len(buffer) > attemptSize {
				attemptSize = len(buffer)
				inflight = s.beginAttempt(ctx, append([]float32(nil), buffer...))
				s.setStatus(Matching)
				continue
			}
			if drained {
				s.setStatus(NotFound)
				return &Result{Status: NotFound, Attempts: attempts}, nil
			}
			s.setStatus(Listening)
		}
	}
}

// beginAttempt fingerprints the cumulative buffer and submits the codes.
// Fingerprinting failures and empty code sets are reported as skipped, so
// the attempt budget only counts real service round-trips.
func (s *Session) beginAttempt(ctx context.Context, pcm []float32) chan attemptOutcome {
	done := make(chan attemptOutcome, 1)
	go func() {
		wire, err := s.gen.Generate(ctx, pcm, s.cfg.SampleRate)
		if err != nil {
			s.log.Debugf("session %s: fingerprinting failed, discarding attempt: %v", s.id, err)
			done <- attemptOutcome{skipped: true}
			return
		}
		if wire == "" {
			done <- attemptOutcome{skipped: true}
			return
		}

		codes, err := codec.Decode(wire)
		if err != nil {
			s.log.Warnf("session %s: engine produced undecodable fingerprint: %v", s.id, err)
			done <- attemptOutcome{skipped: true}
			return
		}
		if len(codes) == 0 {
			done <- attemptOutcome{skipped: true}
			return
		}

		match, err := s.matcher.Identify(ctx, codes)
		if err != nil {
			done <- attemptOutcome{err: err}
			return
		}
		done <- attemptOutcome{match: match}
	}()
	return done
}
