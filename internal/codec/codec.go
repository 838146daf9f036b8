// Package codec implements the fingerprint wire format: little-endian
// (offset, code) uint32 pairs, zlib-compressed, base64url-encoded without
// padding. This is the same layout as the pre-computed echoprint strings
// shipped in audio-analysis dumps.
package codec

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rfiorani/echomatch/internal/model"
)

// ErrMalformedFingerprint is returned when the base64 or compressed layer
// of a wire fingerprint cannot be decoded.
var ErrMalformedFingerprint = errors.New("malformed fingerprint")

const pairSize = 8

// Decode unpacks a wire fingerprint into its ordered code values.
//
// Padding on the base64 layer is optional: encoders in the wild disagree on
// whether to emit it, so any trailing '=' is stripped before decoding. A
// decompressed payload shorter than one pair decodes to an empty slice, and
// a trailing partial pair is ignored rather than rejected.
func Decode(wire string) ([]uint32, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(wire, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedFingerprint, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrMalformedFingerprint, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrMalformedFingerprint, err)
	}

	codes := make([]uint32, 0, len(raw)/pairSize)
	for i := 0; i+pairSize <= len(raw); i += pairSize {
		// bytes 0-3 of each pair are the offset, bytes 4-7 the code
		codes = append(codes, binary.LittleEndian.Uint32(raw[i+4:i+8]))
	}
	return codes, nil
}

// Encode packs (offset, code) pairs into the wire form Decode accepts.
// It is the client-side packaging step; the service only ever decodes.
func Encode(pairs []model.Pair) (string, error) {
	raw := make([]byte, len(pairs)*pairSize)
	for i, p := range pairs {
		binary.LittleEndian.PutUint32(raw[i*pairSize:], p.Offset)
		binary.LittleEndian.PutUint32(raw[i*pairSize+4:], p.Code)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compressing fingerprint: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compressing fingerprint: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}
