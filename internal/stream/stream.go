// Package stream applies the envelope pipeline to byte streams.
//
// Whole-stream mode reads everything into memory and produces exactly one
// envelope, the same bytes an encrypted file would hold. Chunked mode bounds
// memory by sealing fixed-size chunks independently; each sealed chunk is
// framed with its length so the reader never has to guess where one ends:
//
//	frame  = length (uint32, big endian) || Envelope(compress(chunk))
//	stream = frame* || 00 00 00 00
//
// The zero-length header marks the end of the stream. A stream that stops
// before it, or carries bytes after it, is rejected with ErrCorruptData, so
// a cut at a frame boundary is not mistaken for the whole input.
//
// Every frame authenticates on its own. Reordering whole frames, or dropping
// frames from the middle, is not detected.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"lockit/internal/config"
	"lockit/internal/crypto"
	lerrors "lockit/internal/errors"
	"lockit/internal/log"
	"lockit/internal/util"
)

const (
	// DefaultChunkSize is the plaintext chunk size used when none is given.
	DefaultChunkSize = util.MiB

	// MaxChunkSize bounds the plaintext chunk size.
	MaxChunkSize = 64 * util.MiB

	// MaxFrameSize bounds a sealed frame. It leaves room for incompressible
	// chunks, which zstd stores with a small overhead, plus the envelope.
	MaxFrameSize = MaxChunkSize + MaxChunkSize/64

	frameHeaderSize = 4
)

var endOfStream [frameHeaderSize]byte

// Process runs the whole-buffer pipeline: Encrypt compresses then seals,
// Decrypt opens then decompresses. Remove has no stream meaning.
func Process(data []byte, passphrase string, mode config.Mode) ([]byte, error) {
	pass := []byte(passphrase)
	defer crypto.SecureZero(pass)

	switch mode {
	case config.Encrypt:
		return crypto.Seal(data, pass)
	case config.Decrypt:
		return crypto.Open(data, pass)
	default:
		return nil, fmt.Errorf("%w: %s is not a stream mode", lerrors.ErrInvalidMode, mode)
	}
}

// ProcessReader reads all of r, runs Process over it and writes the result to
// w in one call. Nothing is written when processing fails.
func ProcessReader(r io.Reader, w io.Writer, passphrase string, mode config.Mode) error {
	if mode != config.Encrypt && mode != config.Decrypt {
		return fmt.Errorf("%w: %s is not a stream mode", lerrors.ErrInvalidMode, mode)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return lerrors.Wrap(err, "read input")
	}
	if mode == config.Encrypt {
		defer crypto.SecureZero(data)
	}

	out, err := Process(data, passphrase, mode)
	if err != nil {
		return err
	}
	if mode == config.Decrypt {
		defer crypto.SecureZero(out)
	}

	if _, err := w.Write(out); err != nil {
		return lerrors.Wrap(err, "write output")
	}
	log.Debug("stream processed", log.Mode(mode), log.Int("in", len(data)), log.Int("out", len(out)))
	return nil
}

// EncryptFrames reads r in chunks of chunkSize bytes and writes one frame per
// chunk to w, then the end-of-stream marker. The final chunk may be shorter.
// Empty input produces only the marker.
func EncryptFrames(r io.Reader, w io.Writer, passphrase string, chunkSize int) error {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return lerrors.NewValidationError("chunk size", fmt.Sprintf("must be between 1 and %s", util.Sizeify(MaxChunkSize)))
	}

	pass := []byte(passphrase)
	defer crypto.SecureZero(pass)
	buf := make([]byte, chunkSize)
	defer crypto.SecureZero(buf)

	frames := 0
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := writeFrame(w, buf[:n], pass); werr != nil {
				return werr
			}
			frames++
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			if _, err := w.Write(endOfStream[:]); err != nil {
				return lerrors.Wrap(err, "write end of stream")
			}
			log.Debug("frames written", log.Int("frames", frames), log.Int("chunk_size", chunkSize))
			return nil
		default:
			return lerrors.Wrap(err, "read input")
		}
	}
}

func writeFrame(w io.Writer, chunk, pass []byte) error {
	sealed, err := crypto.Seal(chunk, pass)
	if err != nil {
		return err
	}
	if len(sealed) > MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds limit", lerrors.ErrCorruptData, len(sealed))
	}

	frame := make([]byte, frameHeaderSize+len(sealed))
	binary.BigEndian.PutUint32(frame, uint32(len(sealed)))
	copy(frame[frameHeaderSize:], sealed)
	if _, err := w.Write(frame); err != nil {
		return lerrors.Wrap(err, "write frame")
	}
	return nil
}

// DecryptFrames reads frames written by EncryptFrames from r and writes the
// recovered plaintext to w. Frames are written out as they are verified, so
// on error w may already hold the plaintext of earlier frames. Input that
// ends without the end-of-stream marker is an error.
func DecryptFrames(r io.Reader, w io.Writer, passphrase string) error {
	pass := []byte(passphrase)
	defer crypto.SecureZero(pass)

	br := bufio.NewReaderSize(r, 64*util.KiB)
	var header [frameHeaderSize]byte

	for frame := 0; ; frame++ {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: stream ends after %d frames without end marker", lerrors.ErrCorruptData, frame)
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: frame %d: truncated header", lerrors.ErrCorruptData, frame)
			}
			return lerrors.Wrap(err, "read frame")
		}

		size := binary.BigEndian.Uint32(header[:])
		if size == 0 {
			if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
				if err != nil {
					return lerrors.Wrap(err, "read frame")
				}
				return fmt.Errorf("%w: data after end of stream", lerrors.ErrCorruptData)
			}
			log.Debug("frames read", log.Int("frames", frame))
			return nil
		}
		if size > MaxFrameSize {
			return fmt.Errorf("%w: frame %d: invalid length %d", lerrors.ErrCorruptData, frame, size)
		}

		sealed := make([]byte, size)
		if _, err := io.ReadFull(br, sealed); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: frame %d: truncated body", lerrors.ErrCorruptData, frame)
			}
			return lerrors.Wrap(err, "read frame")
		}

		plain, err := crypto.Open(sealed, pass)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		_, err = w.Write(plain)
		crypto.SecureZero(plain)
		if err != nil {
			return lerrors.Wrap(err, "write output")
		}
	}
}
