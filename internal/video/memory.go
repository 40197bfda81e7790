package video

import (
	"fmt"
	"io"
)

// MemoryContainer keeps a video as a slice of frames. It stands in for a real
// container in tests and when frames are produced by other means.
type MemoryContainer struct {
	CodecName string
	W, H      int
	Frames    []Frame
	closed    bool
}

// NewMemoryContainer returns an empty container for width*height frames.
func NewMemoryContainer(width, height int, codec string) *MemoryContainer {
	return &MemoryContainer{CodecName: codec, W: width, H: height}
}

// WriteFrame appends a copy of pix as a keyframe.
func (c *MemoryContainer) WriteFrame(pix []byte) error {
	if c.closed {
		return ErrClosed
	}
	if len(pix) != c.W*c.H {
		return fmt.Errorf("%w: got %d pixels, expected %d", ErrFrameSize, len(pix), c.W*c.H)
	}
	c.Frames = append(c.Frames, Frame{
		Index:    len(c.Frames),
		Keyframe: true,
		Pix:      append([]byte(nil), pix...),
	})
	return nil
}

// Close marks the container as finished.
func (c *MemoryContainer) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return nil
}

// Reader returns a FrameReader over the frames written so far.
func (c *MemoryContainer) Reader() FrameReader {
	return &memoryReader{c: c}
}

type memoryReader struct {
	c   *MemoryContainer
	pos int
}

func (r *memoryReader) ReadFrame() (*Frame, error) {
	if r.pos >= len(r.c.Frames) {
		return nil, io.EOF
	}
	f := r.c.Frames[r.pos]
	r.pos++
	return &f, nil
}

func (r *memoryReader) Codec() string { return r.c.CodecName }
func (r *memoryReader) Width() int    { return r.c.W }
func (r *memoryReader) Height() int   { return r.c.H }
func (r *memoryReader) Close() error  { return nil }
