// Package metadata describes an encoded video: the settings needed to decode
// it and what to verify the recovered file against.
package metadata

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"math"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/tuomas-lb/youbit/internal/compress"
	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/settings"
)

const (
	// Magic is the 4-byte magic identifier for the metadata format
	Magic = "YBM1"
	// HeaderSize is the size of the fixed part of the record in bytes
	HeaderSize = 66
	// TrailerSize is the size of the CRC32 trailer
	TrailerSize = 4
	// CurrentVersion is the current metadata format version
	CurrentVersion = 0x01
)

var (
	// ErrInvalidMagic indicates the record magic bytes don't match
	ErrInvalidMagic = errors.New("invalid metadata magic")
	// ErrUnsupportedVersion indicates a record written by a newer format
	ErrUnsupportedVersion = errors.New("unsupported metadata version")
	// ErrCRCMismatch indicates the CRC32 checksum doesn't match
	ErrCRCMismatch = errors.New("CRC32 checksum mismatch")
	// ErrTooShort indicates the record is shorter than its declared length
	ErrTooShort = errors.New("metadata too short")
	// ErrFieldRange indicates a value that does not fit its binary field
	ErrFieldRange = errors.New("metadata field out of range")
)

// Checksum is the BLAKE2b-256 digest of the original file
type Checksum [32]byte

func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// NewHash returns the hash used for Checksum.
func NewHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for oversized keys
		panic(err)
	}
	return h
}

// Metadata is everything a decoder needs besides the video itself
type Metadata struct {
	Version  uint8
	Settings settings.Settings
	// Filename is the base name of the original file
	Filename string
	// OriginalSize is the size of the original file in bytes
	OriginalSize uint64
	// PayloadLength is the size of the compressed stream that was encoded
	PayloadLength uint64
	// Checksum of the original file
	Checksum Checksum
}

// compressionCodes maps the compression byte to its algorithm.
var compressionCodes = []compress.Algorithm{compress.None, compress.Gzip, compress.Zstd}

// Marshal encodes m into its binary form.
//
// Byte layout:
//
//	0-3:   Magic ("YBM1")
//	4:     Version (0x01)
//	5:     BitDepth
//	6:     NullFrames (0 or 1)
//	7:     ECCSymbols
//	8-9:   Width (big-endian uint16)
//	10-11: Height (big-endian uint16)
//	12:    CRF
//	13:    Compression (0 none, 1 gzip, 2 zstd)
//	14-15: Reserved (0x00 0x00)
//	16-23: OriginalSize (big-endian uint64)
//	24-31: PayloadLength (big-endian uint64)
//	32-63: Checksum
//	64-65: FilenameLength (big-endian uint16)
//	66-:   Filename (UTF-8)
//	last 4: CRC32-IEEE of everything before it
func Marshal(m *Metadata) ([]byte, error) {
	s := m.Settings
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(m.Filename) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: filename is %d bytes", ErrFieldRange, len(m.Filename))
	}
	compression := -1
	for i, a := range compressionCodes {
		if a == s.Compression {
			compression = i
		}
	}

	buf := make([]byte, HeaderSize+len(m.Filename)+TrailerSize)
	copy(buf[0:4], Magic)
	buf[4] = CurrentVersion
	buf[5] = uint8(s.BitDepth)
	if s.NullFrames {
		buf[6] = 1
	}
	buf[7] = uint8(s.ECCSymbols)
	binary.BigEndian.PutUint16(buf[8:10], uint16(s.Resolution.Width))
	binary.BigEndian.PutUint16(buf[10:12], uint16(s.Resolution.Height))
	buf[12] = uint8(s.CRF)
	buf[13] = uint8(compression)
	// Reserved bytes [14-15] are already 0x00
	binary.BigEndian.PutUint64(buf[16:24], m.OriginalSize)
	binary.BigEndian.PutUint64(buf[24:32], m.PayloadLength)
	copy(buf[32:64], m.Checksum[:])
	binary.BigEndian.PutUint16(buf[64:66], uint16(len(m.Filename)))
	copy(buf[HeaderSize:], m.Filename)

	end := len(buf) - TrailerSize
	binary.BigEndian.PutUint32(buf[end:], crc32.ChecksumIEEE(buf[:end]))
	return buf, nil
}

// Unmarshal parses and validates a binary record.
func Unmarshal(data []byte) (*Metadata, error) {
	if len(data) < HeaderSize+TrailerSize {
		return nil, ErrTooShort
	}
	if string(data[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if data[4] != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[4])
	}

	nameLen := int(binary.BigEndian.Uint16(data[64:66]))
	total := HeaderSize + nameLen + TrailerSize
	if len(data) < total {
		return nil, ErrTooShort
	}
	end := total - TrailerSize
	if crc32.ChecksumIEEE(data[:end]) != binary.BigEndian.Uint32(data[end:total]) {
		return nil, ErrCRCMismatch
	}
	if int(data[13]) >= len(compressionCodes) {
		return nil, fmt.Errorf("%w: compression code %d", ErrFieldRange, data[13])
	}

	m := &Metadata{
		Version: data[4],
		Settings: settings.Settings{
			BitDepth:   pixel.BitDepth(data[5]),
			NullFrames: data[6] == 1,
			ECCSymbols: int(data[7]),
			Resolution: settings.Resolution{
				Width:  int(binary.BigEndian.Uint16(data[8:10])),
				Height: int(binary.BigEndian.Uint16(data[10:12])),
			},
			CRF:         int(data[12]),
			Compression: compressionCodes[data[13]],
		},
		OriginalSize:  binary.BigEndian.Uint64(data[16:24]),
		PayloadLength: binary.BigEndian.Uint64(data[24:32]),
		Filename:      string(data[HeaderSize:end]),
	}
	copy(m.Checksum[:], data[32:64])

	if err := m.Settings.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeBase64 returns the record as standard base64, suitable for a video
// description field.
func EncodeBase64(m *Metadata) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeBase64 reverses EncodeBase64. Surrounding whitespace is ignored.
func DecodeBase64(s string) (*Metadata, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 metadata: %w", err)
	}
	return Unmarshal(data)
}

// WriteFile stores m as base64 text at path.
func WriteFile(path string, m *Metadata) error {
	s, err := EncodeBase64(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s+"\n"), 0644)
}

// ReadFile loads metadata written by WriteFile.
func ReadFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	return DecodeBase64(string(data))
}
