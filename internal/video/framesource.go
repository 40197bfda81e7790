package video

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// FrameSource reads the payload frames of a video and serves their pixels in
// requested amounts. Pixels of a frame that are not requested yet are carried
// over to the next Extract.
type FrameSource struct {
	r         FrameReader
	filter    filter
	frameSize int
	carry     []byte
	read      int
	eof       bool
	closed    bool
}

// NewFrameSource wraps r, filtering its frames with the profile p holds for
// the codec of r. nullFrames must match the setting the video was encoded with.
func NewFrameSource(r FrameReader, p Protocol, nullFrames bool) (*FrameSource, error) {
	profile, err := p.Lookup(r.Codec())
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewFrameSource",
		"codec":          r.Codec(),
		"width":          r.Width(),
		"height":         r.Height(),
		"keyframes_only": profile.KeyframesOnly,
		"stride":         profile.Stride,
		"null_frames":    nullFrames,
	}).Debug("Opened frame source")

	return &FrameSource{
		r:         r,
		filter:    filter{profile: profile, nullFrames: nullFrames},
		frameSize: r.Width() * r.Height(),
	}, nil
}

// FrameSize returns the number of pixels per frame.
func (s *FrameSource) FrameSize() int {
	return s.frameSize
}

// FramesRead returns the number of payload frames consumed so far.
func (s *FrameSource) FramesRead() int {
	return s.read
}

// Extract returns the next count pixels of the stream. Fewer are returned when
// the video ends first; an empty slice means the video is exhausted.
func (s *FrameSource) Extract(count int) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if count <= 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, min(count, len(s.carry)+s.frameSize))
	out = append(out, s.carry...)
	s.carry = s.carry[:0]

	for len(out) < count && !s.eof {
		frame, err := s.next()
		if errors.Is(err, io.EOF) {
			s.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, frame.Pix...)
	}

	if len(out) > count {
		s.carry = append(s.carry, out[count:]...)
		out = out[:count]
	}
	return out, nil
}

// next returns the next frame that passes the filter.
func (s *FrameSource) next() (*Frame, error) {
	for {
		frame, err := s.r.ReadFrame()
		if err != nil {
			return nil, err
		}
		if len(frame.Pix) != s.frameSize {
			return nil, fmt.Errorf("%w: frame %d has %d pixels, expected %d", ErrFrameSize, frame.Index, len(frame.Pix), s.frameSize)
		}
		if s.filter.keep(frame) {
			s.read++
			return frame, nil
		}
	}
}

// Close closes the underlying reader.
func (s *FrameSource) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.r.Close()
}
