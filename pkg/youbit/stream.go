package youbit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuomas-lb/youbit/internal/ecc"
	"github.com/tuomas-lb/youbit/internal/limits"
	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/video"
)

const (
	// ChunkBlocks is the number of FEC blocks encoded per read from the input.
	ChunkBlocks = 100000
	// DecodeChunkBlocks is the number of FEC blocks recovered per extraction
	// from the video. It must be even so that every extraction is whole bytes
	// at 2 bits per pixel.
	DecodeChunkBlocks = 100000
)

var (
	encodeChunkBlocks = ChunkBlocks
	decodeChunkBlocks = DecodeChunkBlocks
)

// StreamStats summarizes an EncodeStream or DecodeStream run
type StreamStats struct {
	// BytesIn is the number of payload bytes read (encode) or framed bytes
	// recovered from pixels (decode)
	BytesIn int64
	// BytesOut is the number of framed bytes produced (encode) or payload
	// bytes written (decode)
	BytesOut int64
	// Chunks is the number of read or extract rounds
	Chunks int
	// Frames is the number of frames written or consumed
	Frames int
	// Blocks is the number of FEC blocks decoded
	Blocks int
	// CorrectedBlocks is the number of FEC blocks that contained errors
	CorrectedBlocks int
	Duration        time.Duration
}

// Estimate projects the size of the video produced for payloadSize bytes.
func Estimate(payloadSize int64, s Settings) limits.Estimate {
	return limits.EstimateFor(payloadSize, s)
}

// CheckLimits fails with ErrTooLarge when a payload of payloadSize bytes would
// not fit the default platform limits.
func CheckLimits(payloadSize int64, s Settings) error {
	return limits.Default().Check(Estimate(payloadSize, s))
}

// EncodeStream reads r to the end and feeds it through FEC framing and the
// pixel codec into fb. The input is read in whole FEC blocks so that only the
// last block of the stream is padded. fb is not closed.
func EncodeStream(ctx context.Context, r io.Reader, fb *video.FrameBuffer, s Settings) (*StreamStats, error) {
	ctx, logger := sessionLogger(ctx, "EncodeStream")
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if fb.FrameSize() != s.Resolution.FrameSize() {
		return nil, fmt.Errorf("%w: frame buffer holds %d pixels per frame, settings need %d", ErrInvalidConfiguration, fb.FrameSize(), s.Resolution.FrameSize())
	}
	scheme, err := ecc.GetScheme(s.ECCSymbols)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stats := &StreamStats{}
	framesBefore := fb.FramesWritten()
	buf := make([]byte, scheme.DataSize()*encodeChunkBlocks)

	logger.WithFields(logrus.Fields{
		"bit_depth":   s.BitDepth,
		"ecc_symbols": s.ECCSymbols,
		"resolution":  s.Resolution.String(),
		"null_frames": s.NullFrames,
		"chunk_size":  len(buf),
	}).Info("Encoding stream")

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		n, readErr := io.ReadFull(r, buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return stats, fmt.Errorf("failed to read input: %w", readErr)
		}
		if n > 0 {
			framed, err := scheme.Encode(buf[:n])
			if err != nil {
				return stats, fmt.Errorf("chunk %d: %w", stats.Chunks, err)
			}
			pixels, err := pixel.Encode(framed, s.BitDepth)
			if err != nil {
				return stats, fmt.Errorf("chunk %d: %w", stats.Chunks, err)
			}
			if err := fb.Feed(pixels); err != nil {
				return stats, fmt.Errorf("chunk %d: %w", stats.Chunks, err)
			}

			stats.Chunks++
			stats.BytesIn += int64(n)
			stats.BytesOut += int64(len(framed))
			stats.Frames = fb.FramesWritten() - framesBefore
			logger.WithFields(logrus.Fields{
				"chunk":  stats.Chunks,
				"bytes":  n,
				"pixels": len(pixels),
				"frames": stats.Frames,
			}).Debug("Encoded chunk")
		}
		if readErr != nil {
			break
		}
	}

	stats.Duration = time.Since(start)
	logger.WithFields(logrus.Fields{
		"bytes_in":  stats.BytesIn,
		"bytes_out": stats.BytesOut,
		"frames":    stats.Frames,
		"duration":  stats.Duration.String(),
	}).Info("Encoded stream")
	return stats, nil
}

// DecodeStream recovers the payload of src and writes it to w until the video
// is exhausted. The output ends with the zero padding of the last FEC block
// and of the last frame; callers that know the payload length truncate it.
func DecodeStream(ctx context.Context, src *video.FrameSource, w io.Writer, s Settings) (*StreamStats, error) {
	return decodeStream(ctx, src, w, s, -1)
}

// DecodeStreamN is DecodeStream for a video known to carry framedBytes bytes
// of FEC framed data, as reported by Estimate. Frame padding past that point
// is never decoded, and a video that ends early is an error.
func DecodeStreamN(ctx context.Context, src *video.FrameSource, w io.Writer, s Settings, framedBytes int64) (*StreamStats, error) {
	if framedBytes < 0 {
		return nil, fmt.Errorf("%w: negative framed length %d", ErrInvalidConfiguration, framedBytes)
	}
	return decodeStream(ctx, src, w, s, framedBytes)
}

func decodeStream(ctx context.Context, src *video.FrameSource, w io.Writer, s Settings, limit int64) (*StreamStats, error) {
	ctx, logger := sessionLogger(ctx, "DecodeStream")
	if err := s.Validate(); err != nil {
		return nil, err
	}
	scheme, err := ecc.GetScheme(s.ECCSymbols)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stats := &StreamStats{}
	framesBefore := src.FramesRead()
	align := s.BitDepth.Alignment()
	chunk := ecc.BlockSize * 8 * decodeChunkBlocks
	block := 0
	var fecStats ecc.DecodeStats

	logger.WithFields(logrus.Fields{
		"bit_depth":   s.BitDepth,
		"ecc_symbols": s.ECCSymbols,
		"null_frames": s.NullFrames,
		"chunk":       chunk,
		"limit":       limit,
	}).Info("Decoding stream")

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		want := chunk
		var remaining int64
		if limit >= 0 {
			remaining = limit - stats.BytesIn
			if remaining <= 0 {
				break
			}
			if remaining < int64(pixel.ByteCount(chunk, s.BitDepth)) {
				want = roundUp(pixel.PixelCount(int(remaining), s.BitDepth), align)
			}
		}

		pixels, err := src.Extract(want)
		if err != nil {
			return stats, fmt.Errorf("failed to extract pixels: %w", err)
		}
		if len(pixels) == 0 {
			break
		}
		final := len(pixels) < want
		if final {
			pixels = pixels[:len(pixels)-len(pixels)%align]
		}

		data, err := pixel.Decode(pixels, s.BitDepth)
		if err != nil {
			return stats, fmt.Errorf("chunk %d: %w", stats.Chunks, err)
		}
		if limit >= 0 && int64(len(data)) > remaining {
			data = data[:remaining]
		}
		if final {
			data = trimTail(data, scheme, logger)
			if len(data) == 0 {
				break
			}
		}
		out, decoded, err := scheme.Decode(data, block)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"chunk": stats.Chunks,
				"error": err.Error(),
			}).Error("Failed to remove FEC")
			return stats, err
		}
		block += len(data) / scheme.BlockSize()

		if _, err := w.Write(out); err != nil {
			return stats, fmt.Errorf("failed to write output: %w", err)
		}

		stats.Chunks++
		stats.BytesIn += int64(len(data))
		stats.BytesOut += int64(len(out))
		fecStats.Add(decoded)
		stats.Blocks = fecStats.Blocks
		stats.CorrectedBlocks = fecStats.Corrected
		stats.Frames = src.FramesRead() - framesBefore

		entry := logger.WithFields(logrus.Fields{
			"chunk":     stats.Chunks,
			"pixels":    len(pixels),
			"bytes":     len(out),
			"blocks":    decoded.Blocks,
			"corrected": decoded.Corrected,
		})
		if decoded.Corrected > 0 {
			entry.Warn("Corrected damaged FEC blocks")
		} else {
			entry.Debug("Decoded chunk")
		}

		if final {
			break
		}
	}

	stats.Duration = time.Since(start)
	if limit >= 0 && stats.BytesIn < limit {
		err := fmt.Errorf("video ended after %d of %d framed bytes: %w", stats.BytesIn, limit, io.ErrUnexpectedEOF)
		logger.WithField("error", err.Error()).Error("Video truncated")
		return stats, err
	}

	logger.WithFields(logrus.Fields{
		"bytes_in":         stats.BytesIn,
		"bytes_out":        stats.BytesOut,
		"frames":           stats.Frames,
		"blocks":           stats.Blocks,
		"corrected_blocks": stats.CorrectedBlocks,
		"duration":         stats.Duration.String(),
	}).Info("Decoded stream")
	return stats, nil
}

// trimTail cuts the bytes recovered from the last extraction of a video down
// to whole FEC blocks. What it removes is frame padding.
func trimTail(data []byte, scheme ecc.Scheme, logger *logrus.Entry) []byte {
	if scheme.DataSize() == scheme.BlockSize() {
		return data
	}
	n := len(data) - len(data)%scheme.BlockSize()
	if dropped := len(data) - n; dropped > 0 {
		logger.WithFields(logrus.Fields{
			"bytes":   len(data),
			"dropped": dropped,
		}).Debug("Dropped partial block of frame padding")
	}
	return data[:n]
}

func roundUp(n, multiple int) int {
	if r := n % multiple; r != 0 {
		return n + multiple - r
	}
	return n
}
