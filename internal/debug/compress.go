package debug

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// MaxDecoded bounds what Decompress will inflate. Compressed snapshots travel
// in frames of at most 16 MiB, so four times that leaves room for any real
// dump while refusing decompression bombs from archives or remote peers.
const MaxDecoded = 64 << 20

var (
	zOnce sync.Once
	zEnc  *zstd.Encoder
	zDec  *zstd.Decoder
	zErr  error
)

func codecs() error {
	zOnce.Do(func() {
		zEnc, zErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zErr != nil {
			return
		}
		zDec, zErr = newDecoder(MaxDecoded)
	})
	return zErr
}

func newDecoder(limit uint64) (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
}

// Compress zstd-compresses an encoded snapshot. Safe for concurrent use.
func Compress(b []byte) ([]byte, error) {
	if err := codecs(); err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	return zEnc.EncodeAll(b, make([]byte, 0, len(b)/3)), nil
}

// Decompress reverses Compress.
func Decompress(b []byte) ([]byte, error) {
	if err := codecs(); err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	out, err := zDec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
