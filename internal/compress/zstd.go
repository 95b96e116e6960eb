// Package compress applies zstd to whole buffers. Every write path compresses
// before encrypting and every read path decompresses after decrypting.
package compress

import (
	"fmt"
	"sync"

	lerrors "lockit/internal/errors"
	"lockit/internal/util"

	"github.com/klauspost/compress/zstd"
)

// MaxDecodedSize caps how much memory a single Decompress may allocate.
const MaxDecodedSize = 16 * util.GiB

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error

	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

// Both codecs are safe for concurrent EncodeAll/DecodeAll calls, so one of
// each is shared by the process.
func getEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithZeroFrames(true),
		)
	})
	return encoder, encoderErr
}

func getDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(MaxDecodedSize),
		)
	})
	return decoder, decoderErr
}

// Compress returns the zstd encoding of data. The result is never empty,
// even for empty input.
func Compress(data []byte) ([]byte, error) {
	enc, err := getEncoder()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
}

// Decompress reverses Compress. Input that is not a complete zstd stream
// yields ErrCompression.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", lerrors.ErrCompression)
	}
	dec, err := getDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lerrors.ErrCompression, err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
