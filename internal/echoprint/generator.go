// Package echoprint wraps the external fingerprint engine. The engine is a
// black box: it takes mono PCM at a fixed sample rate and hands back an
// opaque wire fingerprint, or nothing when the audio carries no signal.
package echoprint

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Generator produces a wire fingerprint from mono float32 PCM. An empty
// string with a nil error means the audio yielded no usable fingerprint
// (silence, too short); it is not a failure.
type Generator interface {
	Generate(ctx context.Context, pcm []float32, sampleRate int) (string, error)
}

// ExecGenerator shells out to a codegen binary. The samples go to stdin as
// raw little-endian float32, the fingerprint string comes back on stdout.
type ExecGenerator struct {
	// Path to the codegen executable, e.g. "echoprint-codegen".
	Path string
	// ExtraArgs are prepended before the sample-rate flag.
	ExtraArgs []string
}

func (g *ExecGenerator) Generate(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	raw := make([]byte, len(pcm)*4)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(sample))
	}

	args := append(append([]string(nil), g.ExtraArgs...), "-r", strconv.Itoa(sampleRate))
	cmd := exec.CommandContext(ctx, g.Path, args...)
	cmd.Stdin = bytes.NewReader(raw)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("codegen %s: %w (%s)", g.Path, err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
