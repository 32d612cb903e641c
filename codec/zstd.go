package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements Compressor over klauspost/compress/zstd. A
// single encoder/decoder pair is reused across calls; EncodeAll and
// DecodeAll are goroutine-safe once constructed, so one instance can be
// shared across goroutines (Engine.Put compresses before it takes the
// engine lock).
type ZstdCompressor struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{}
}

func (z *ZstdCompressor) init() {
	z.once.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			z.err = err
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			z.err = err
			return
		}
		z.enc = enc
		z.dec = dec
	})
}

func (z *ZstdCompressor) Compress(b []byte) ([]byte, error) {
	z.init()
	if z.err != nil {
		return nil, fmt.Errorf("zstd init: %w", z.err)
	}
	return z.enc.EncodeAll(b, make([]byte, 0, len(b))), nil
}

func (z *ZstdCompressor) Decompress(b []byte) ([]byte, error) {
	z.init()
	if z.err != nil {
		return nil, fmt.Errorf("zstd init: %w", z.err)
	}
	return z.dec.DecodeAll(b, nil)
}
