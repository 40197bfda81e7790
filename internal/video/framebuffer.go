package video

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FrameBuffer cuts a stream of pixels into frames. Pixels that do not fill a
// whole frame are carried over to the next Feed.
type FrameBuffer struct {
	w          FrameWriter
	frameSize  int
	nullFrames bool
	carry      []byte
	null       []byte
	written    int
	closed     bool
}

// NewFrameBuffer returns a FrameBuffer writing width*height frames to w. With
// nullFrames set an all-black frame is written after every data frame.
func NewFrameBuffer(w FrameWriter, width, height int, nullFrames bool) *FrameBuffer {
	frameSize := width * height
	fb := &FrameBuffer{
		w:          w,
		frameSize:  frameSize,
		nullFrames: nullFrames,
		carry:      make([]byte, 0, frameSize),
	}
	if nullFrames {
		fb.null = make([]byte, frameSize)
	}
	return fb
}

// FrameSize returns the number of pixels per frame.
func (fb *FrameBuffer) FrameSize() int {
	return fb.frameSize
}

// FramesWritten returns the number of frames handed to the writer, null
// frames included.
func (fb *FrameBuffer) FramesWritten() int {
	return fb.written
}

// Feed writes every whole frame formed by the carried pixels followed by
// pixels and keeps the remainder.
func (fb *FrameBuffer) Feed(pixels []byte) error {
	if fb.closed {
		return ErrClosed
	}

	if len(fb.carry) > 0 {
		n := min(fb.frameSize-len(fb.carry), len(pixels))
		fb.carry = append(fb.carry, pixels[:n]...)
		pixels = pixels[n:]
		if len(fb.carry) < fb.frameSize {
			return nil
		}
		if err := fb.emit(fb.carry); err != nil {
			return err
		}
		fb.carry = fb.carry[:0]
	}

	for len(pixels) >= fb.frameSize {
		if err := fb.emit(pixels[:fb.frameSize]); err != nil {
			return err
		}
		pixels = pixels[fb.frameSize:]
	}
	fb.carry = append(fb.carry, pixels...)
	return nil
}

// Close pads any carried pixels with black to a final frame, writes it and
// closes the writer.
func (fb *FrameBuffer) Close() error {
	if fb.closed {
		return ErrClosed
	}
	fb.closed = true

	if pending := len(fb.carry); pending > 0 {
		padding := fb.frameSize - pending
		fb.carry = append(fb.carry, make([]byte, padding)...)
		logrus.WithFields(logrus.Fields{
			"function": "FrameBuffer.Close",
			"pending":  pending,
			"padding":  padding,
		}).Debug("Padding final frame")
		if err := fb.emit(fb.carry); err != nil {
			fb.w.Close()
			return err
		}
		fb.carry = fb.carry[:0]
	}

	if err := fb.w.Close(); err != nil {
		return fmt.Errorf("failed to close frame writer: %w", err)
	}
	return nil
}

func (fb *FrameBuffer) emit(frame []byte) error {
	if err := fb.w.WriteFrame(frame); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", fb.written, err)
	}
	fb.written++
	if fb.nullFrames {
		if err := fb.w.WriteFrame(fb.null); err != nil {
			return fmt.Errorf("failed to write null frame %d: %w", fb.written, err)
		}
		fb.written++
	}
	return nil
}
