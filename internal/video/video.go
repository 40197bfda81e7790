// Package video moves pixel data in and out of video frames. FrameBuffer cuts
// a pixel stream into frames on the encode side, FrameSource filters the frames
// of a downloaded video and reassembles the pixel stream on the decode side.
package video

import (
	"errors"
)

var (
	// ErrUnsupportedCodec indicates a video codec with no known frame filter
	ErrUnsupportedCodec = errors.New("unsupported video codec")
	// ErrClosed indicates use of a closed FrameBuffer or FrameSource
	ErrClosed = errors.New("video: use of closed frame stream")
	// ErrFrameSize indicates a frame whose pixel count does not match the video
	ErrFrameSize = errors.New("frame size mismatch")
)

// Frame is one decoded single-channel frame
type Frame struct {
	// Index is the position of the frame in decode order
	Index int
	// Keyframe is set when the frame was coded without reference to others
	Keyframe bool
	// Pix holds Width*Height gray pixels, row-major
	Pix []byte
}

// FrameWriter accepts gray frames for a video being written.
type FrameWriter interface {
	// WriteFrame writes exactly Width*Height pixels. The writer must not
	// retain pix after returning.
	WriteFrame(pix []byte) error
	// Close flushes the encoder and finalizes the container.
	Close() error
}

// FrameReader yields the decoded frames of a video in order, returning io.EOF
// after the last one.
type FrameReader interface {
	ReadFrame() (*Frame, error)
	// Codec is the short codec name of the video stream, e.g. "h264"
	Codec() string
	Width() int
	Height() int
	Close() error
}
