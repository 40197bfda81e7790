package youbit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Comparison reports how two files differ byte by byte. The shorter file is
// treated as if it were zero padded to the length of the longer one.
type Comparison struct {
	TotalBytes     int64
	IncorrectBytes int64
	// FirstMismatch is the offset of the first differing byte, -1 when equal
	FirstMismatch int64
}

// Equal reports whether the files were identical.
func (c *Comparison) Equal() bool {
	return c.IncorrectBytes == 0
}

// ErrorRate returns the share of differing bytes in percent.
func (c *Comparison) ErrorRate() float64 {
	if c.TotalBytes == 0 {
		return 0
	}
	return float64(c.IncorrectBytes) / float64(c.TotalBytes) * 100
}

// CompareFiles compares the files at a and b, typically a file and its
// decoded copy.
func CompareFiles(a, b string) (*Comparison, error) {
	fa, err := os.Open(a)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", a, err)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", b, err)
	}
	defer fb.Close()

	return Compare(bufio.NewReaderSize(fa, ioBufferSize), bufio.NewReaderSize(fb, ioBufferSize))
}

// Compare is CompareFiles for two byte streams.
func Compare(a, b io.ByteReader) (*Comparison, error) {
	c := &Comparison{FirstMismatch: -1}
	aDone, bDone := false, false
	for {
		x, err := readByte(a, &aDone)
		if err != nil {
			return nil, err
		}
		y, err := readByte(b, &bDone)
		if err != nil {
			return nil, err
		}
		if aDone && bDone {
			return c, nil
		}
		if x != y {
			if c.FirstMismatch < 0 {
				c.FirstMismatch = c.TotalBytes
			}
			c.IncorrectBytes++
		}
		c.TotalBytes++
	}
}

// readByte returns 0 once r is exhausted.
func readByte(r io.ByteReader, done *bool) (byte, error) {
	if *done {
		return 0, nil
	}
	v, err := r.ReadByte()
	if errors.Is(err, io.EOF) {
		*done = true
		return 0, nil
	}
	return v, err
}
