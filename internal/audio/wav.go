package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate reads just the WAV header and reports the file's sample rate.
func SampleRate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("not a valid WAV file: %s", path)
	}
	return int(decoder.SampleRate), nil
}

// ReadMonoFloat32 decodes a PCM WAV file into mono samples normalized to
// [-1, 1] and returns them with the file's sample rate. Stereo input is
// downmixed by averaging channels.
func ReadMonoFloat32(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid WAV file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding PCM samples: %w", err)
	}

	samples, err := downmix(buf)
	if err != nil {
		return nil, 0, err
	}
	return samples, int(decoder.SampleRate), nil
}

func downmix(buf *audio.IntBuffer) ([]float32, error) {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int(1)<<(uint(bitDepth)-1))

	switch buf.Format.NumChannels {
	case 1:
		out := make([]float32, len(buf.Data))
		for i, v := range buf.Data {
			out[i] = float32(float64(v) * scale)
		}
		return out, nil

	case 2:
		frames := len(buf.Data) / 2
		out := make([]float32, frames)
		for i := 0; i < frames; i++ {
			l := float64(buf.Data[2*i]) * scale
			r := float64(buf.Data[2*i+1]) * scale
			out[i] = float32((l + r) * 0.5)
		}
		return out, nil

	default:
		return nil, errors.New("unsupported channel count: only mono/stereo supported")
	}
}
