package delta

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// simple is a reference LCS-style copy/insert scheme: it greedily matches
// runs of target against base using a hash index of fixed-width windows,
// emitting COPY opcodes for matched runs and INSERT opcodes for the bytes
// in between. It is always correct — any target can be expressed as one
// big INSERT — and has no external dependency.

const simpleWindow = 16

const (
	opCopy   byte = 0
	opInsert byte = 1
)

func diffSimple(base, target []byte) ([]byte, error) {
	index := make(map[uint64][]int)
	for i := 0; i+simpleWindow <= len(base); i++ {
		h := fnv64(base[i : i+simpleWindow])
		index[h] = append(index[h], i)
	}

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
		if pos+simpleWindow > len(target) {
			pending = append(pending, target[pos:]...)
			pos = len(target)
			break
		}
		h := fnv64(target[pos : pos+simpleWindow])
		candidates := index[h]
		matchOff, matchLen := -1, 0
		for _, c := range candidates {
			l := matchLength(base[c:], target[pos:])
			if l > matchLen {
				matchOff, matchLen = c, l
			}
		}
		if matchLen >= simpleWindow {
			flushInsert()
			out.WriteByte(opCopy)
			writeUvarint(&out, uint64(matchOff))
			writeUvarint(&out, uint64(matchLen))
			pos += matchLen
			continue
		}
		pending = append(pending, target[pos])
		pos++
	}
	flushInsert()
	return out.Bytes(), nil
}

func matchLength(base, target []byte) int {
	n := len(base)
	if len(target) < n {
		n = len(target)
	}
	i := 0
	for i < n && base[i] == target[i] {
		i++
	}
	return i
}

func patchSimple(base, payload []byte) ([]byte, error) {
	r := bytes.NewReader(payload)
	var out bytes.Buffer
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("simple: %w: %v", ErrMalformed, err)
		}
		switch tag {
		case opCopy:
			off, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("simple: %w: bad copy offset: %v", ErrMalformed, err)
			}
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("simple: %w: bad copy length: %v", ErrMalformed, err)
			}
			if off+length > uint64(len(base)) {
				return nil, fmt.Errorf("simple: %w: copy range exceeds base", ErrMalformed)
			}
			out.Write(base[off : off+length])
		case opInsert:
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("simple: %w: bad insert length: %v", ErrMalformed, err)
			}
			buf := make([]byte, length)
			if _, err := r.Read(buf); err != nil {
				return nil, fmt.Errorf("simple: %w: short insert payload: %v", ErrMalformed, err)
			}
			out.Write(buf)
		default:
			return nil, fmt.Errorf("simple: %w: unknown opcode %d", ErrMalformed, tag)
		}
	}
	return out.Bytes(), nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
