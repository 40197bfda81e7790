// Package youbit stores arbitrary files in the pixels of a video so that they
// survive the lossy re-encoding of video hosting platforms.
//
// A file is compressed, framed with Reed-Solomon error correction, mapped to
// gray pixel intensities and cut into frames. Decoding picks the uploaded
// frames back out of the platform's re-encoded video and reverses each step.
package youbit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tuomas-lb/youbit/internal/compress"
	"github.com/tuomas-lb/youbit/internal/ecc"
	"github.com/tuomas-lb/youbit/internal/limits"
	"github.com/tuomas-lb/youbit/internal/metadata"
	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/settings"
	"github.com/tuomas-lb/youbit/internal/video"
)

var (
	// ErrInvalidConfiguration indicates settings outside their allowed ranges
	ErrInvalidConfiguration = settings.ErrInvalidConfiguration
	// ErrMisalignedInput indicates pixels that do not decode to whole bytes or
	// framed data that is not a whole number of FEC blocks
	ErrMisalignedInput = pixel.ErrMisalignedInput
	// ErrUncorrectableBlock indicates a FEC block with more errors than its parity can fix
	ErrUncorrectableBlock = ecc.ErrUncorrectableBlock
	// ErrUnsupportedCodec indicates a video whose frames cannot be filtered
	ErrUnsupportedCodec = video.ErrUnsupportedCodec
	// ErrTooLarge indicates a file that would exceed the platform limits
	ErrTooLarge = limits.ErrTooLarge
	// ErrChecksumMismatch indicates a decoded file that differs from the original
	ErrChecksumMismatch = errors.New("decoded file checksum mismatch")
)

// Settings describes how a file is laid out in a video
type Settings = settings.Settings

// Resolution is a video frame size
type Resolution = settings.Resolution

// BitDepth is the number of payload bits stored per pixel
type BitDepth = pixel.BitDepth

// Metadata describes an encoded file
type Metadata = metadata.Metadata

// Compression is the algorithm applied to a file before encoding
type Compression = compress.Algorithm

const (
	Depth1 = pixel.Depth1
	Depth2 = pixel.Depth2
	Depth3 = pixel.Depth3
)

const (
	Gzip          = compress.Gzip
	Zstd          = compress.Zstd
	NoCompression = compress.None
)

// MetadataSuffix is appended to a video path to name its metadata sidecar.
const MetadataSuffix = ".meta"

// Supported resolutions
var (
	HD   = settings.HD
	QHD  = settings.QHD
	UHD  = settings.UHD
	FUHD = settings.FUHD
)

// DefaultSettings returns 1 bit per pixel, 32 parity symbols per block, full
// HD frames and gzip compression.
func DefaultSettings() Settings {
	return settings.Default()
}

type sessionKey struct{}

// WithSession tags ctx with a session id that appears in every log line of
// the encode or decode run using it.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// session returns the id carried by ctx, creating one if there is none.
func session(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithSession(ctx, id), id
}

func sessionLogger(ctx context.Context, function string) (context.Context, *logrus.Entry) {
	ctx, id := session(ctx)
	return ctx, logrus.WithFields(logrus.Fields{
		"function": function,
		"session":  id,
	})
}
