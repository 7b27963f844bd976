// Package delta estimates similarity between byte buffers and computes a
// residual ("diff") that can reconstruct one buffer from another ("patch").
// Two schemes are selectable per store: Simple (a copy/insert opcode
// scheme, always correct) and Extended (a suffix-array-driven binary diff).
package delta

import (
	"encoding/binary"
	"fmt"
)

// Scheme identifies which diff/patch algorithm produced a residual. The
// value is the wire tag written into the residual header.
type Scheme byte

const (
	Simple   Scheme = 1
	Extended Scheme = 2
)

func (s Scheme) String() string {
	switch s {
	case Simple:
		return "simple"
	case Extended:
		return "extended-a"
	default:
		return fmt.Sprintf("scheme(%d)", byte(s))
	}
}

const (
	magic      = "STDL"
	headerSize = 4 + 1 + 4 + 8 // magic + scheme + base-hash-prefix + target-size
)

// header is the fixed-size preamble of a residual: 4-byte ASCII magic,
// 1-byte scheme tag, 4-byte prefix of the base object's content hash, and
// 8-byte little-endian target size. The payload after it is opaque to
// this package's callers.
type header struct {
	scheme     Scheme
	basePrefix [4]byte
	targetSize uint64
}

func encodeHeader(h header, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	copy(out[0:4], magic)
	out[4] = byte(h.scheme)
	copy(out[5:9], h.basePrefix[:])
	binary.LittleEndian.PutUint64(out[9:17], h.targetSize)
	copy(out[headerSize:], payload)
	return out
}

func decodeHeader(residual []byte) (header, []byte, error) {
	if len(residual) < headerSize {
		return header{}, nil, fmt.Errorf("residual shorter than header: %w", ErrMalformed)
	}
	if string(residual[0:4]) != magic {
		return header{}, nil, fmt.Errorf("bad magic %q: %w", residual[0:4], ErrMalformed)
	}
	h := header{scheme: Scheme(residual[4])}
	copy(h.basePrefix[:], residual[5:9])
	h.targetSize = binary.LittleEndian.Uint64(residual[9:17])
	return h, residual[headerSize:], nil
}

func hashPrefix(hash []byte) [4]byte {
	var p [4]byte
	copy(p[:], hash)
	return p
}

// Diff produces a residual such that Patch(base, residual) == target. hash
// must be the content hash of base (sha256 over the raw bytes); its first
// four bytes are embedded in the residual header and checked on Patch.
func Diff(scheme Scheme, base, target []byte, hash []byte) ([]byte, error) {
	var payload []byte
	var err error
	switch scheme {
	case Simple:
		payload, err = diffSimple(base, target)
	case Extended:
		payload, err = diffExtended(base, target)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, scheme)
	}
	if err != nil {
		return nil, err
	}
	h := header{scheme: scheme, basePrefix: hashPrefix(hash), targetSize: uint64(len(target))}
	return encodeHeader(h, payload), nil
}

// Patch reconstructs a target buffer from base and a residual produced by
// Diff. hash must be the content hash of base; a mismatch against the
// residual's embedded prefix fails fast with DeltaError before any
// algorithm-specific decoding runs.
func Patch(base, residual []byte, hash []byte) ([]byte, error) {
	h, payload, err := decodeHeader(residual)
	if err != nil {
		return nil, err
	}
	if h.basePrefix != hashPrefix(hash) {
		return nil, fmt.Errorf("base hash prefix mismatch: %w", ErrBaseMismatch)
	}
	var target []byte
	switch h.scheme {
	case Simple:
		target, err = patchSimple(base, payload)
	case Extended:
		target, err = patchExtended(base, payload)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScheme, h.scheme)
	}
	if err != nil {
		return nil, err
	}
	if uint64(len(target)) != h.targetSize {
		return nil, fmt.Errorf("reconstructed size %d, header says %d: %w", len(target), h.targetSize, ErrMalformed)
	}
	return target, nil
}
