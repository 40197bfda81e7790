// Package pixel maps bytes to gray pixel intensities and back.
//
// Every pixel carries BitDepth bits of payload. Encoding spreads the 2^BitDepth
// symbols over the full 0..255 range so that adjacent symbols stay as far apart
// as possible; decoding reads only the top BitDepth bits of each intensity,
// which tolerates the drift introduced by lossy re-encoding. Residual bit
// errors are left to the FEC layer.
package pixel

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tuomas-lb/youbit/internal/bitstream"
)

// BitDepth is the number of payload bits stored in one pixel.
type BitDepth uint8

const (
	// Depth1 stores one bit per pixel (black or white).
	Depth1 BitDepth = 1
	// Depth2 stores two bits per pixel.
	Depth2 BitDepth = 2
	// Depth3 stores three bits per pixel.
	Depth3 BitDepth = 3
)

var (
	// ErrInvalidBitDepth indicates a bit depth outside 1..3
	ErrInvalidBitDepth = errors.New("invalid bit depth")
	// ErrMisalignedInput indicates a pixel count that cannot be turned into whole bytes
	ErrMisalignedInput = errors.New("misaligned input")
)

var mappingTables = map[BitDepth][]uint8{
	Depth1: {0, 255},
	Depth2: {0, 96, 160, 255},
	Depth3: {0, 48, 80, 112, 144, 176, 208, 255},
}

// segmentUnits is how many alignment units one worker handles.
const segmentUnits = 1 << 16

// Valid reports whether d is a supported depth.
func (d BitDepth) Valid() bool {
	return d >= Depth1 && d <= Depth3
}

// Alignment returns the pixel count Decode requires its input to be a multiple of.
func (d BitDepth) Alignment() int {
	return int(d) * 8
}

// MappingTable returns the intensity used for each symbol of depth d.
func MappingTable(d BitDepth) ([]uint8, error) {
	table, ok := mappingTables[d]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBitDepth, d)
	}
	out := make([]uint8, len(table))
	copy(out, table)
	return out, nil
}

// PixelCount returns how many pixels Encode produces for n input bytes.
func PixelCount(n int, d BitDepth) int {
	if d == Depth3 {
		n = padTo3(n)
	}
	return bitstream.GroupCount(n, uint(d))
}

// ByteCount returns how many bytes Decode produces for n aligned pixels.
func ByteCount(n int, d BitDepth) int {
	return n * int(d) / 8
}

// Encode transforms data into one pixel per BitDepth bits.
//
// With Depth3 an input whose length is not a multiple of 3 is extended with up
// to two zero bytes. That is only harmless at the very end of a stream.
func Encode(data []byte, d BitDepth) ([]byte, error) {
	table, ok := mappingTables[d]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBitDepth, d)
	}
	if d == Depth3 && len(data)%3 != 0 {
		padded := make([]byte, padTo3(len(data)))
		copy(padded, data)
		data = padded
	}

	out := make([]byte, PixelCount(len(data), d))
	unitBytes, unitPixels := units(d)
	err := parallelFor(len(data)/unitBytes, func(lo, hi int) error {
		src := data[lo*unitBytes : hi*unitBytes]
		dst := out[lo*unitPixels : hi*unitPixels]
		bitstream.UnpackGroups(dst, src, uint(d))
		for i, g := range dst {
			dst[i] = table[g]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decode reverses Encode. The number of pixels must be a multiple of BitDepth*8.
func Decode(pixels []byte, d BitDepth) ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBitDepth, d)
	}
	if len(pixels)%d.Alignment() != 0 {
		return nil, fmt.Errorf("%w: %d pixels is not a multiple of %d", ErrMisalignedInput, len(pixels), d.Alignment())
	}

	out := make([]byte, ByteCount(len(pixels), d))
	shift := 8 - uint(d)
	unitBytes, unitPixels := units(d)
	err := parallelFor(len(pixels)/unitPixels, func(lo, hi int) error {
		src := pixels[lo*unitPixels : hi*unitPixels]
		groups := make([]uint8, len(src))
		for i, p := range src {
			groups[i] = p >> shift
		}
		bitstream.PackGroups(out[lo*unitBytes:hi*unitBytes], groups, uint(d))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// units returns the smallest byte run that maps to a whole number of pixels,
// and that pixel count.
func units(d BitDepth) (unitBytes, unitPixels int) {
	if d == Depth3 {
		return 3, 8
	}
	return 1, 8 / int(d)
}

func padTo3(n int) int {
	if r := n % 3; r != 0 {
		return n + 3 - r
	}
	return n
}

// parallelFor calls fn over [0,n) in contiguous segments. Small inputs run on
// the calling goroutine.
func parallelFor(n int, fn func(lo, hi int) error) error {
	if n <= segmentUnits {
		return fn(0, n)
	}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < n; lo += segmentUnits {
		lo, hi := lo, min(lo+segmentUnits, n)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
