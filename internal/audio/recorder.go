package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rfiorani/echomatch/internal/session"
)

// FileRecorder replays a WAV file as a capture device, emitting
// fixed-duration chunks the way a live microphone would. The chunk channel
// closes once the file is exhausted.
type FileRecorder struct {
	samples  []float32
	rate     int
	perChunk int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewFileRecorder loads the WAV file up front so the sample rate is known
// before the session starts.
func NewFileRecorder(path string, chunkDuration time.Duration) (*FileRecorder, error) {
	if chunkDuration <= 0 {
		chunkDuration = session.DefaultChunkDuration
	}

	samples, rate, err := ReadMonoFloat32(path)
	if err != nil {
		return nil, err
	}

	perChunk := int(float64(rate) * chunkDuration.Seconds())
	if perChunk <= 0 {
		perChunk = rate
	}

	return &FileRecorder{
		samples:  samples,
		rate:     rate,
		perChunk: perChunk,
		stop:     make(chan struct{}),
	}, nil
}

// SampleRate is the rate of the loaded file.
func (r *FileRecorder) SampleRate() int { return r.rate }

func (r *FileRecorder) Acquire(ctx context.Context) (<-chan session.Chunk, error) {
	out := make(chan session.Chunk)
	go func() {
		defer close(out)
		for start := 0; start < len(r.samples); start += r.perChunk {
			end := start + r.perChunk
			if end > len(r.samples) {
				end = len(r.samples)
			}
			select {
			case out <- session.Chunk(r.samples[start:end]):
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *FileRecorder) Release() error {
	r.stopOnce.Do(func() { close(r.stop) })
	return nil
}
