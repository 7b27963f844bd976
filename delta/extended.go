package delta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"index/suffixarray"
	"sort"
)

// extended ("Extended-A") is a classic binary-diff scheme built on Go's
// standard index/suffixarray: base is indexed once, then for every
// position in target the longest substring of base starting with that
// position's bytes is located by binary search over Lookup, giving
// near-optimal copy runs without the hash-collision approximation simple
// uses. No third-party binary-diff library exists anywhere in the
// example corpus, so this scheme is the one place this engine falls back
// to the standard library deliberately rather than fabricate a
// dependency.

const extendedMinMatch = 8

func diffExtended(base, target []byte) ([]byte, error) {
	if len(base) == 0 {
		return diffSimple(base, target)
	}
	index := suffixarray.New(base)

	var out bytes.Buffer
	var pending []byte
	flushInsert := func() {
		if len(pending) == 0 {
			return
		}
		out.WriteByte(opInsert)
		writeUvarint(&out, uint64(len(pending)))
		out.Write(pending)
		pending = nil
	}

	pos := 0
	for pos < len(target) {
		off, length := longestMatch(index, base, target[pos:])
		if length >= extendedMinMatch {
			flushInsert()
			out.WriteByte(opCopy)
			writeUvarint(&out, uint64(off))
			writeUvarint(&out, uint64(length))
			pos += length
			continue
		}
		pending = append(pending, target[pos])
		pos++
	}
	flushInsert()
	return out.Bytes(), nil
}

// longestMatch finds the longest prefix of target that occurs anywhere in
// base, via binary search over suffixarray.Index.Lookup. Returns the
// smallest matching offset for determinism when several occurrences tie.
func longestMatch(index *suffixarray.Index, base, target []byte) (offset, length int) {
	maxLen := len(target)
	if len(base) < maxLen {
		maxLen = len(base)
	}
	lo, hi := 0, maxLen
	bestOffsets := []int{}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		occ := index.Lookup(target[:mid], -1)
		if len(occ) > 0 {
			lo = mid
			bestOffsets = occ
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 || len(bestOffsets) == 0 {
		return 0, 0
	}
	sort.Ints(bestOffsets)
	return bestOffsets[0], lo
}

func patchExtended(base, payload []byte) ([]byte, error) {
	r := bytes.NewReader(payload)
	var out bytes.Buffer
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("extended: %w: %v", ErrMalformed, err)
		}
		switch tag {
		case opCopy:
			off, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("extended: %w: bad copy offset: %v", ErrMalformed, err)
			}
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("extended: %w: bad copy length: %v", ErrMalformed, err)
			}
			if off+length > uint64(len(base)) {
				return nil, fmt.Errorf("extended: %w: copy range exceeds base", ErrMalformed)
			}
			out.Write(base[off : off+length])
		case opInsert:
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("extended: %w: bad insert length: %v", ErrMalformed, err)
			}
			buf := make([]byte, length)
			if _, err := r.Read(buf); err != nil {
				return nil, fmt.Errorf("extended: %w: short insert payload: %v", ErrMalformed, err)
			}
			out.Write(buf)
		default:
			return nil, fmt.Errorf("extended: %w: unknown opcode %d", ErrMalformed, tag)
		}
	}
	return out.Bytes(), nil
}
