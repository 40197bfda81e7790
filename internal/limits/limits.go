// Package limits projects the size of an encoded video and enforces the upload
// ceilings of the video platform.
package limits

import (
	"errors"
	"fmt"

	"github.com/tuomas-lb/youbit/internal/ecc"
	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/settings"
)

const (
	// MaxFrames is the longest video accepted, in frames. Videos are written at
	// one frame per second and the platform caps uploads at 12 hours; the
	// margin below 43200 absorbs the platform's rounding.
	MaxFrames = 43000

	// MaxFileSize is the largest accepted upload in bytes.
	MaxFileSize = 137_000_000_000
)

// ErrTooLarge indicates the encoded video would exceed a platform limit
var ErrTooLarge = errors.New("encoded video too large")

// Limits holds the platform ceilings
type Limits struct {
	MaxFrames   int64 `yaml:"max_frames"`
	MaxFileSize int64 `yaml:"max_file_size"`
}

// Default returns the ceilings of the default platform
func Default() Limits {
	return Limits{
		MaxFrames:   MaxFrames,
		MaxFileSize: MaxFileSize,
	}
}

// Estimate is the projected size of a video for a given payload
type Estimate struct {
	// PayloadBytes is the size of the stream handed to the encoder
	PayloadBytes int64
	// FramedBytes is the payload after FEC framing
	FramedBytes int64
	// Pixels is the number of data pixels
	Pixels int64
	// DataFrames is the number of frames carrying data
	DataFrames int64
	// Frames is the total frame count, null frames included
	Frames int64
}

// EstimateFor projects the video produced for payloadSize bytes.
func EstimateFor(payloadSize int64, s settings.Settings) Estimate {
	e := Estimate{PayloadBytes: payloadSize, FramedBytes: payloadSize}
	if s.ECCSymbols > 0 {
		k := int64(s.DataSize())
		e.FramedBytes = (payloadSize + k - 1) / k * ecc.BlockSize
	}

	framed := e.FramedBytes
	if s.BitDepth == pixel.Depth3 {
		framed = (framed + 2) / 3 * 3
	}
	if s.BitDepth.Valid() {
		e.Pixels = framed * 8 / int64(s.BitDepth)
	}

	frameSize := int64(s.Resolution.FrameSize())
	if frameSize > 0 {
		e.DataFrames = (e.Pixels + frameSize - 1) / frameSize
	}
	e.Frames = e.DataFrames
	if s.NullFrames {
		e.Frames *= 2
	}
	return e
}

// Check rejects an estimate that exceeds l.
func (l Limits) Check(e Estimate) error {
	if e.Frames > l.MaxFrames {
		return fmt.Errorf("%w: video would be %d frames (%d seconds), the maximum is %d", ErrTooLarge, e.Frames, e.Frames, l.MaxFrames)
	}
	// The container can never be smaller than the framed payload it carries.
	if e.FramedBytes > l.MaxFileSize {
		return fmt.Errorf("%w: framed payload is %d bytes, the maximum upload is %d", ErrTooLarge, e.FramedBytes, l.MaxFileSize)
	}
	return nil
}

// CheckFileSize rejects a finished container larger than l allows.
func (l Limits) CheckFileSize(size int64) error {
	if size > l.MaxFileSize {
		return fmt.Errorf("%w: video file is %d bytes, the maximum upload is %d", ErrTooLarge, size, l.MaxFileSize)
	}
	return nil
}
