// Package settings holds the encode/decode session parameters that must match
// between the encoder and the decoder of a video.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuomas-lb/youbit/internal/compress"
	"github.com/tuomas-lb/youbit/internal/ecc"
	"github.com/tuomas-lb/youbit/internal/pixel"
)

// ErrInvalidConfiguration indicates a settings value outside its allowed range
var ErrInvalidConfiguration = errors.New("invalid configuration")

// MaxCRF is the highest constant rate factor accepted by x264.
const MaxCRF = 52

// Resolution is a video frame size in pixels
type Resolution struct {
	Width  int
	Height int
}

// Supported resolutions.
var (
	HD   = Resolution{Width: 1920, Height: 1080}
	QHD  = Resolution{Width: 2560, Height: 1440}
	UHD  = Resolution{Width: 3840, Height: 2160}
	FUHD = Resolution{Width: 7680, Height: 4320}
)

var resolutionNames = map[string]Resolution{
	"hd": HD,
	"2k": QHD,
	"4k": UHD,
	"8k": FUHD,
}

// Resolutions returns every supported resolution, smallest first.
func Resolutions() []Resolution {
	return []Resolution{HD, QHD, UHD, FUHD}
}

// FrameSize returns the number of pixels in one frame.
func (r Resolution) FrameSize() int {
	return r.Width * r.Height
}

// Supported reports whether r is one of the supported resolutions.
func (r Resolution) Supported() bool {
	for _, s := range Resolutions() {
		if r == s {
			return true
		}
	}
	return false
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MarshalText implements encoding.TextMarshaler.
func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts "hd", "2k", "4k", "8k" or "WIDTHxHEIGHT".
func (r *Resolution) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if named, ok := resolutionNames[s]; ok {
		*r = named
		return nil
	}
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return fmt.Errorf("%w: resolution %q", ErrInvalidConfiguration, text)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return fmt.Errorf("%w: resolution width %q", ErrInvalidConfiguration, w)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return fmt.Errorf("%w: resolution height %q", ErrInvalidConfiguration, h)
	}
	*r = Resolution{Width: width, Height: height}
	return nil
}

// Settings describes how a file is laid out in a video. It is passed by value
// and never modified by the codec.
type Settings struct {
	// BitDepth is the number of payload bits per pixel
	BitDepth pixel.BitDepth `yaml:"bit_depth"`
	// ECCSymbols is the number of Reed-Solomon parity bytes per 255-byte block, 0 disables FEC
	ECCSymbols int `yaml:"ecc_symbols"`
	// Resolution is the frame size of the video
	Resolution Resolution `yaml:"resolution"`
	// CRF is the x264 constant rate factor (0-52)
	CRF int `yaml:"crf"`
	// NullFrames inserts a black frame after every data frame
	NullFrames bool `yaml:"null_frames"`
	// Compression is applied to the file before encoding
	Compression compress.Algorithm `yaml:"compression"`
}

// Default returns the default settings
func Default() Settings {
	return Settings{
		BitDepth:    pixel.Depth1,
		ECCSymbols:  32,
		Resolution:  HD,
		CRF:         18,
		NullFrames:  false,
		Compression: compress.Gzip,
	}
}

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	if !s.BitDepth.Valid() {
		return fmt.Errorf("%w: bit depth %d must be 1, 2 or 3", ErrInvalidConfiguration, s.BitDepth)
	}
	if s.ECCSymbols < 0 || s.ECCSymbols >= ecc.BlockSize {
		return fmt.Errorf("%w: ecc symbols %d must be between 0 and %d", ErrInvalidConfiguration, s.ECCSymbols, ecc.BlockSize-1)
	}
	if !s.Resolution.Supported() {
		return fmt.Errorf("%w: unsupported resolution %s", ErrInvalidConfiguration, s.Resolution)
	}
	if s.Resolution.FrameSize()%s.BitDepth.Alignment() != 0 {
		return fmt.Errorf("%w: frame size %d is not a multiple of %d", ErrInvalidConfiguration, s.Resolution.FrameSize(), s.BitDepth.Alignment())
	}
	if s.CRF < 0 || s.CRF > MaxCRF {
		return fmt.Errorf("%w: crf %d must be between 0 and %d", ErrInvalidConfiguration, s.CRF, MaxCRF)
	}
	if !s.Compression.Valid() {
		return fmt.Errorf("%w: compression %q", ErrInvalidConfiguration, s.Compression)
	}
	return nil
}

// DataSize returns the payload bytes carried by one FEC block.
func (s Settings) DataSize() int {
	return ecc.BlockSize - s.ECCSymbols
}
