// Package ecc applies and removes Reed-Solomon forward error correction over
// fixed 255-symbol GF(256) blocks.
//
// A block with up to e/2 corrupted symbols is always corrected. Beyond that,
// detection is only probabilistic: Berlekamp-Welch may settle on a different
// valid codeword and return wrong data without an error. This is common with a
// few parity symbols (e = 2 or 4) and rare from about e = 16 up.
package ecc

import (
	"errors"
	"fmt"

	"github.com/tuomas-lb/youbit/internal/pixel"
)

// BlockSize is the length of one codeword in bytes.
const BlockSize = 255

var (
	// ErrInvalidSymbols indicates an ECC symbol count outside 0..254
	ErrInvalidSymbols = errors.New("invalid number of ECC symbols")
	// ErrMisalignedInput indicates framed data that is not a whole number of
	// codewords. It matches pixel.ErrMisalignedInput.
	ErrMisalignedInput = fmt.Errorf("%w: framed data is not a multiple of the block size", pixel.ErrMisalignedInput)
	// ErrUncorrectableBlock indicates a codeword with more errors than the parity can fix
	ErrUncorrectableBlock = errors.New("uncorrectable block")
)

// Scheme represents an error correction code scheme
type Scheme interface {
	// Encode frames data into codewords. A short final block is zero padded, so
	// callers must only hand over the true tail of a stream unaligned.
	Encode(data []byte) ([]byte, error)
	// Decode strips the parity from framed data, correcting what it can.
	// firstBlock is the stream-wide index of the first codeword, used in errors.
	Decode(framed []byte, firstBlock int) ([]byte, DecodeStats, error)
	// DataSize is the number of payload bytes per block
	DataSize() int
	// BlockSize is the number of framed bytes per block
	BlockSize() int
}

// DecodeStats reports what a Decode call did
type DecodeStats struct {
	Blocks    int
	Corrected int
}

// Add accumulates other into s.
func (s *DecodeStats) Add(other DecodeStats) {
	s.Blocks += other.Blocks
	s.Corrected += other.Corrected
}

// BlockError carries the position of a block that failed to decode
type BlockError struct {
	Index int
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%v: block %d: %v", ErrUncorrectableBlock, e.Index, e.Err)
}

// Unwrap lets errors.Is match both ErrUncorrectableBlock and the decoder cause.
func (e *BlockError) Unwrap() []error {
	return []error{ErrUncorrectableBlock, e.Err}
}

// GetScheme returns a Scheme implementation for the given number of parity
// symbols. Zero disables error correction.
func GetScheme(eccSymbols int) (Scheme, error) {
	switch {
	case eccSymbols == 0:
		return passthrough{}, nil
	case eccSymbols > 0 && eccSymbols < BlockSize:
		return NewReedSolomon(eccSymbols)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSymbols, eccSymbols)
	}
}

// ApplyFEC frames data with eccSymbols parity symbols per 255-byte block.
func ApplyFEC(data []byte, eccSymbols int) ([]byte, error) {
	scheme, err := GetScheme(eccSymbols)
	if err != nil {
		return nil, err
	}
	return scheme.Encode(data)
}

// RemoveFEC reverses ApplyFEC. The padding added to the final block is kept.
func RemoveFEC(framed []byte, eccSymbols int) ([]byte, error) {
	data, _, err := RemoveFECAt(framed, eccSymbols, 0)
	return data, err
}

// RemoveFECAt is RemoveFEC for a slice of a longer stream whose first codeword
// is block firstBlock of that stream.
func RemoveFECAt(framed []byte, eccSymbols, firstBlock int) ([]byte, DecodeStats, error) {
	scheme, err := GetScheme(eccSymbols)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	return scheme.Decode(framed, firstBlock)
}

// passthrough is used when no ECC symbols are configured.
type passthrough struct{}

func (passthrough) Encode(data []byte) ([]byte, error) {
	return data, nil
}

func (passthrough) Decode(framed []byte, _ int) ([]byte, DecodeStats, error) {
	return framed, DecodeStats{}, nil
}

func (passthrough) DataSize() int  { return BlockSize }
func (passthrough) BlockSize() int { return BlockSize }
