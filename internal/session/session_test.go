package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rfiorani/echomatch/internal/codec"
	"github.com/rfiorani/echomatch/internal/model"
)

type fakeRecorder struct {
	chunks     chan Chunk
	acquireErr error
	released   atomic.Int32
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{chunks: make(chan Chunk, 64)}
}

func (r *fakeRecorder) Acquire(ctx context.Context) (<-chan Chunk, error) {
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	return r.chunks, nil
}

func (r *fakeRecorder) Release() error {
	r.released.Add(1)
	return nil
}

// fakeGenerator returns a canned wire fingerprint per call and records the
// buffer size each attempt was given.
type fakeGenerator struct {
	mu       sync.Mutex
	wires    []string // consumed in order; last entry repeats
	seenLens []int
	gate     chan struct{} // when set, each call waits for one tick
}

func (g *fakeGenerator) Generate(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seenLens = append(g.seenLens, len(pcm))
	if len(g.wires) == 0 {
		return "", nil
	}
	wire := g.wires[0]
	if len(g.wires) > 1 {
		g.wires = g.wires[1:]
	}
	return wire, nil
}

func (g *fakeGenerator) lens() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.seenLens...)
}

type fakeMatcher struct {
	calls   atomic.Int32
	results []*model.Identification // consumed in order; last entry repeats
	err     error
	mu      sync.Mutex
}

func (m *fakeMatcher) Identify(ctx context.Context, codes []uint32) (*model.Identification, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return result, nil
}

func wireFor(t *testing.T, codes ...uint32) string {
	t.Helper()
	pairs := make([]model.Pair, len(codes))
	for i, c := range codes {
		pairs[i] = model.Pair{Offset: uint32(i), Code: c}
	}
	wire, err := codec.Encode(pairs)
	if err != nil {
		t.Fatalf("Failed to encode fingerprint: %v", err)
	}
	return wire
}

func strptr(s string) *string { return &s }

func noMatch() *model.Identification { return &model.Identification{Found: false} }

func TestFoundOnFirstAttempt(t *testing.T) {
	rec := newFakeRecorder()
	gen := &fakeGenerator{wires: []string{wireFor(t, 1, 2, 3)}}
	matcher := &fakeMatcher{results: []*model.Identification{{
		Found: true,
		Score: 3,
		Meta:  model.TrackMetadata{Title: strptr("Roygbiv")},
	}}}

	sess := New(rec, gen, matcher, Config{})
	rec.chunks <- make(Chunk, 100)

	result, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != Found {
		t.Errorf("expected Found, got %s", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if result.Match == nil || result.Match.Score != 3 {
		t.Errorf("expected match with score 3, got %+v", result.Match)
	}
	if sess.Status() != Found {
		t.Errorf("expected terminal status Found, got %s", sess.Status())
	}
	if got := rec.released.Load(); got != 1 {
		t.Errorf("expected device released exactly once, got %d", got)
	}
}

func TestAttemptBudgetExhausted(t *testing.T) {
	rec := newFakeRecorder()
	gen := &fakeGenerator{wires: []string{wireFor(t, 9, 8, 7)}}
	matcher := &fakeMatcher{results: []*model.Identification{noMatch()}}

	sess := New(rec, gen, matcher, Config{MaxAttempts: 3})

	// Keep audio flowing until the session gives up.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case rec.chunks <- make(Chunk, 10):
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer close(stop)

	result, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != NotFound {
		t.Errorf("expected NotFound, got %s", result.Status)
	}
	if result.Attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", result.Attempts)
	}
	if got := matcher.calls.Load(); got != 3 {
		t.Errorf("expected 3 service calls, got %d", got)
	}
	if got := rec.released.Load(); got != 1 {
		t.Errorf("expected device released exactly once, got %d", got)
	}
}

func TestSilentAttemptsNotCounted(t *testing.T) {
	rec := newFakeRecorder()
	gen := &fakeGenerator{} // always yields an empty fingerprint
	matcher := &fakeMatcher{results: []*model.Identification{noMatch()}}

	sess := New(rec, gen, matcher, Config{MaxAttempts: 3})
	for i := 0; i < 5; i++ {
		rec.chunks <- make(Chunk, 10)
	}
	close(rec.chunks)

	result, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != NotFound {
		t.Errorf("expected NotFound once audio ran out, got %s", result.Status)
	}
	if result.Attempts != 0 {
		t.Errorf("silent attempts must not count, got %d", result.Attempts)
	}
	if got := matcher.calls.Load(); got != 0 {
		t.Errorf("expected no service calls for silent audio, got %d", got)
	}
	if got := rec.released.Load(); got != 1 {
		t.Errorf("expected device released exactly once, got %d", got)
	}
}

func TestChunksBufferedDuringAttempt(t *testing.T) {
	rec := newFakeRecorder()
	gate := make(chan struct{})
	gen := &fakeGenerator{wires: []string{wireFor(t, 5, 6)}, gate: gate}
	matcher := &fakeMatcher{results: []*model.Identification{
		noMatch(),
		{Found: true, Score: 2},
	}}

	sess := New(rec, gen, matcher, Config{MaxAttempts: 3})

	done := make(chan struct{})
	var result *Result
	var runErr error
	go func() {
		defer close(done)
		result, runErr = sess.Run(context.Background())
	}()

	// First chunk starts an attempt that blocks inside the generator.
	rec.chunks <- make(Chunk, 100)
	// This one arrives mid-attempt and must be buffered, not dropped.
	rec.chunks <- make(Chunk, 50)
	time.Sleep(10 * time.Millisecond)
	gate <- struct{}{} // finish attempt 1 (no match)
	gate <- struct{}{} // attempt 2 runs immediately over the grown buffer

	<-done
	if runErr != nil {
		t.Fatalf("Run failed: %v", runErr)
	}
	if result.Status != Found {
		t.Fatalf("expected Found, got %s", result.Status)
	}

	lens := gen.lens()
	if len(lens) != 2 {
		t.Fatalf("expected 2 fingerprinting calls, got %d (%v)", len(lens), lens)
	}
	if lens[0] != 100 {
		t.Errorf("first attempt should cover the first chunk only, got %d samples", lens[0])
	}
	if lens[1] != 150 {
		t.Errorf("second attempt must include the mid-attempt chunk: expected 150 samples, got %d", lens[1])
	}
}

func TestTransportErrorFailsSession(t *testing.T) {
	rec := newFakeRecorder()
	gen := &fakeGenerator{wires: []string{wireFor(t, 1)}}
	matcher := &fakeMatcher{err: errors.New("connection refused")}

	sess := New(rec, gen, matcher, Config{})
	rec.chunks <- make(Chunk, 10)

	_, err := sess.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failed transport")
	}
	if sess.Status() != Failed {
		t.Errorf("expected terminal status Failed, got %s", sess.Status())
	}
	if got := rec.released.Load(); got != 1 {
		t.Errorf("expected device released exactly once, got %d", got)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	rec := newFakeRecorder()
	rec.acquireErr = errors.New("mic busy")

	sess := New(rec, &fakeGenerator{}, &fakeMatcher{results: []*model.Identification{noMatch()}}, Config{})

	_, err := sess.Run(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if sess.Status() != Failed {
		t.Errorf("expected terminal status Failed, got %s", sess.Status())
	}
	// Acquisition never succeeded, so there is nothing to release.
	if got := rec.released.Load(); got != 0 {
		t.Errorf("expected no release after failed acquire, got %d", got)
	}
}

func TestContextCancellation(t *testing.T) {
	rec := newFakeRecorder()
	sess := New(rec, &fakeGenerator{}, &fakeMatcher{results: []*model.Identification{noMatch()}}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := sess.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sess.Status() != Failed {
		t.Errorf("expected terminal status Failed, got %s", sess.Status())
	}
	if got := rec.released.Load(); got != 1 {
		t.Errorf("expected device released exactly once, got %d", got)
	}
}

func TestAudioExhaustedWithoutMatch(t *testing.T) {
	rec := newFakeRecorder()
	gen := &fakeGenerator{wires: []string{wireFor(t, 11, 12)}}
	matcher := &fakeMatcher{results: []*model.Identification{noMatch()}}

	sess := New(rec, gen, matcher, Config{MaxAttempts: 5})
	rec.chunks <- make(Chunk, 20)
	close(rec.chunks)

	result, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != NotFound {
		t.Errorf("expected NotFound when the source drains, got %s", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if got := rec.released.Load(); got != 1 {
		t.Errorf("expected device released exactly once, got %d", got)
	}
}

func TestStatusStrings(t *testing.T) {
	cases := map[Status]string{
		Idle:      "idle",
		Listening: "listening",
		Matching:  "matching",
		Found:     "found",
		NotFound:  "not-found",
		Failed:    "failed",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
