// Package compress wraps the stream compressors a file can be packed with
// before it is turned into pixels.
package compress

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm names a compression format
type Algorithm string

const (
	// Gzip is a single gzip member. Decoding stops at the end of the member, so
	// zero padding after it is ignored.
	Gzip Algorithm = "gzip"
	// Zstd is a single zstd frame. Trailing padding must be cut before decoding.
	Zstd Algorithm = "zstd"
	// None stores the file as is.
	None Algorithm = "none"
)

// ErrUnknownAlgorithm indicates an unsupported compression name
var ErrUnknownAlgorithm = errors.New("unknown compression algorithm")

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case Gzip, Zstd, None:
		return true
	}
	return false
}

// NewWriter returns a writer compressing into w. Close must be called to
// flush the stream; it does not close w.
func NewWriter(w io.Writer, a Algorithm) (io.WriteCloser, error) {
	switch a {
	case Gzip:
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return zw, nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, nil
	case None:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, a)
	}
}

// NewReader returns a reader decompressing from r.
func NewReader(r io.Reader, a Algorithm) (io.ReadCloser, error) {
	switch a {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read gzip header: %w", err)
		}
		zr.Multistream(false)
		return zr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case None:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, a)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
