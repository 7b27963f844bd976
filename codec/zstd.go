package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Encoders are pooled per level, since a zstd encoder is bound to the
// level it was created with; decoders share a single pool. Pooling avoids
// paying zstd's encoder/decoder setup cost on every call.
var (
	zstdEncoders sync.Map // level int -> *sync.Pool of *zstd.Encoder
	zstdDecoders sync.Pool
)

func encoderPool(level int) *sync.Pool {
	if p, ok := zstdEncoders.Load(level); ok {
		return p.(*sync.Pool)
	}
	p := &sync.Pool{
		New: func() any {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
			if err != nil {
				return nil
			}
			return enc
		},
	}
	actual, _ := zstdEncoders.LoadOrStore(level, p)
	return actual.(*sync.Pool)
}

func compressZstd(data []byte, level int) ([]byte, error) {
	pool := encoderPool(level)
	v := pool.Get()
	enc, _ := v.(*zstd.Encoder)
	if enc == nil {
		return nil, fmt.Errorf("zstd: %w: failed to create encoder at level %d", ErrInvalidLevel, level)
	}
	defer pool.Put(enc)
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	v := zstdDecoders.Get()
	dec, _ := v.(*zstd.Decoder)
	if dec == nil {
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		dec = d
	}
	defer zstdDecoders.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w: %v", ErrCorrupt, err)
	}
	return out, nil
}
