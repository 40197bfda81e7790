package ecc

import (
	"bytes"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"storj.io/infectious"
)

// ReedSolomon implements systematic Reed-Solomon coding over GF(256) with
// 255-byte codewords: DataSize payload bytes followed by the parity symbols.
// Each codeword symbol is one infectious share of length one, so decoding
// corrects up to parity/2 corrupted bytes per block with Berlekamp-Welch.
//
// A ReedSolomon is safe for concurrent use.
type ReedSolomon struct {
	fec    *infectious.FEC
	parity int
}

// decodeSegment is the number of codewords one decode worker handles.
const decodeSegment = 64

// NewReedSolomon creates a codec with eccSymbols parity bytes per block.
func NewReedSolomon(eccSymbols int) (*ReedSolomon, error) {
	if eccSymbols <= 0 || eccSymbols >= BlockSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSymbols, eccSymbols)
	}
	fec, err := infectious.NewFEC(BlockSize-eccSymbols, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create Reed-Solomon code: %w", err)
	}
	return &ReedSolomon{fec: fec, parity: eccSymbols}, nil
}

// DataSize returns the payload bytes per block.
func (r *ReedSolomon) DataSize() int {
	return BlockSize - r.parity
}

// BlockSize returns the framed bytes per block.
func (r *ReedSolomon) BlockSize() int {
	return BlockSize
}

// Encode frames data block by block.
func (r *ReedSolomon) Encode(data []byte) ([]byte, error) {
	k := r.DataSize()
	blocks := (len(data) + k - 1) / k
	out := make([]byte, blocks*BlockSize)

	pad := make([]byte, k)
	for i := 0; i < blocks; i++ {
		chunk := data[i*k : min((i+1)*k, len(data))]
		if len(chunk) < k {
			clear(pad)
			copy(pad, chunk)
			chunk = pad
		}

		codeword := out[i*BlockSize : (i+1)*BlockSize]
		err := r.fec.Encode(chunk, func(s infectious.Share) {
			codeword[s.Number] = s.Data[0]
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode block %d: %w", i, err)
		}
	}

	return out, nil
}

// Decode corrects and strips the parity of every codeword in framed. Segments
// of codewords are decoded concurrently; on failure the error names the
// lowest uncorrectable block.
func (r *ReedSolomon) Decode(framed []byte, firstBlock int) ([]byte, DecodeStats, error) {
	var stats DecodeStats
	if len(framed)%BlockSize != 0 {
		return nil, stats, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMisalignedInput, len(framed), BlockSize)
	}

	k := r.DataSize()
	blocks := len(framed) / BlockSize
	out := make([]byte, blocks*k)

	segments := (blocks + decodeSegment - 1) / decodeSegment
	segStats := make([]DecodeStats, segments)
	segErrs := make([]error, segments)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for seg := 0; seg < segments; seg++ {
		g.Go(func() error {
			d := r.newDecoder()
			for i := seg * decodeSegment; i < min((seg+1)*decodeSegment, blocks); i++ {
				corrected, err := d.decodeBlock(out[i*k:(i+1)*k], framed[i*BlockSize:(i+1)*BlockSize])
				if err != nil {
					segErrs[seg] = &BlockError{Index: firstBlock + i, Err: err}
					return nil
				}
				segStats[seg].Blocks++
				if corrected {
					segStats[seg].Corrected++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for seg := range segments {
		if segErrs[seg] != nil {
			return nil, stats, segErrs[seg]
		}
		stats.Add(segStats[seg])
	}
	return out, stats, nil
}

// blockDecoder holds the per-goroutine scratch for decoding codewords.
type blockDecoder struct {
	fec    *infectious.FEC
	k      int
	parity []byte
	shares []infectious.Share
	msg    []byte
}

func (r *ReedSolomon) newDecoder() *blockDecoder {
	return &blockDecoder{
		fec:    r.fec,
		k:      r.DataSize(),
		parity: make([]byte, BlockSize),
		shares: make([]infectious.Share, BlockSize),
		msg:    make([]byte, r.DataSize()),
	}
}

// decodeBlock writes the payload of codeword into dst and reports whether any
// symbol had to be corrected. codeword is not modified.
func (d *blockDecoder) decodeBlock(dst, codeword []byte) (bool, error) {
	if d.clean(codeword) {
		copy(dst, codeword[:d.k])
		return false, nil
	}

	for j := range d.shares {
		d.shares[j] = infectious.Share{Number: j, Data: codeword[j : j+1]}
	}
	// Correct swaps in fresh Data slices for the shares it repairs
	msg, err := d.fec.Decode(d.msg[:0], d.shares)
	if err != nil {
		return false, err
	}
	corrected := false
	for _, s := range d.shares {
		if s.Data[0] != codeword[s.Number] {
			corrected = true
			break
		}
	}
	copy(dst, msg)
	return corrected, nil
}

// clean re-encodes the payload of codeword and compares the parity.
func (d *blockDecoder) clean(codeword []byte) bool {
	err := d.fec.Encode(codeword[:d.k], func(s infectious.Share) {
		d.parity[s.Number] = s.Data[0]
	})
	return err == nil && bytes.Equal(d.parity[d.k:], codeword[d.k:])
}
