package youbit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuomas-lb/youbit/internal/ecc"
	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/video"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func uncorrected(depth BitDepth) Settings {
	s := DefaultSettings()
	s.BitDepth = depth
	s.ECCSymbols = 0
	return s
}

func TestEndToEnd_SingleFrame(t *testing.T) {
	s := uncorrected(Depth1)
	frameSize := s.Resolution.FrameSize()
	require.Equal(t, 2073600, frameSize)

	// One byte fills 8 pixels at 1 bit per pixel.
	data := repeating(frameSize / 8)
	c, stats := encodeToMemory(t, data, s)
	require.Len(t, c.Frames, 1)
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, int64(len(data)), stats.BytesIn)

	var out bytes.Buffer
	decoded, err := DecodeStream(context.Background(), frameSource(t, c, s), &out, s)
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, 1, decoded.Frames)
}

func TestEndToEnd_FrameSizedBuffer(t *testing.T) {
	s := uncorrected(Depth1)
	data := repeating(2073600)

	c, _ := encodeToMemory(t, data, s)
	require.Len(t, c.Frames, 8)

	var out bytes.Buffer
	_, err := DecodeStream(context.Background(), frameSource(t, c, s), &out, s)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, out.Bytes()))
}

func TestRoundTrip_Chunked(t *testing.T) {
	smallChunks(t, 3, 2)
	data := randomBytes(50000, 1)

	for _, depth := range []BitDepth{Depth1, Depth2, Depth3} {
		for _, symbols := range []int{0, 1, 10, 32} {
			for _, null := range []bool{false, true} {
				s := DefaultSettings()
				s.BitDepth = depth
				s.ECCSymbols = symbols
				s.NullFrames = null

				c, stats := encodeToMemory(t, data, s)
				framed := Estimate(int64(len(data)), s).FramedBytes
				assert.Equal(t, framed, stats.BytesOut)

				var out bytes.Buffer
				decoded, err := DecodeStreamN(context.Background(), frameSource(t, c, s), &out, s, framed)
				require.NoError(t, err, "depth %d symbols %d null %v", depth, symbols, null)
				require.GreaterOrEqual(t, out.Len(), len(data))
				assert.Equal(t, data, out.Bytes()[:len(data)], "depth %d symbols %d null %v", depth, symbols, null)
				assert.Equal(t, make([]byte, out.Len()-len(data)), out.Bytes()[len(data):])
				assert.Equal(t, framed, decoded.BytesIn)
				assert.Greater(t, decoded.Chunks, 1)

				// Without a length the whole video is decoded, frame padding included.
				var all bytes.Buffer
				_, err = DecodeStream(context.Background(), frameSource(t, c, s), &all, s)
				require.NoError(t, err)
				assert.Equal(t, out.Bytes(), all.Bytes()[:out.Len()])
			}
		}
	}
}

func TestRoundTrip_JPEGChannel(t *testing.T) {
	tests := []struct {
		depth   BitDepth
		quality int
	}{
		{depth: Depth1, quality: 75},
		{depth: Depth2, quality: 90},
	}

	for _, tt := range tests {
		s := DefaultSettings()
		s.BitDepth = tt.depth
		data := randomBytes(200000, 2)

		c, _ := encodeToMemory(t, data, s)
		jpegChannel(t, c, tt.quality)

		var out bytes.Buffer
		framed := Estimate(int64(len(data)), s).FramedBytes
		stats, err := DecodeStreamN(context.Background(), frameSource(t, c, s), &out, s, framed)
		require.NoError(t, err, "depth %d", tt.depth)
		assert.Equal(t, data, out.Bytes()[:len(data)], "depth %d", tt.depth)
		assert.Equal(t, int(framed/ecc.BlockSize), stats.Blocks)
	}
}

func TestRoundTrip_PlatformDuplicates(t *testing.T) {
	s := uncorrected(Depth1)
	frame := s.Resolution.FrameSize() / 8
	data := randomBytes(30*frame, 3)

	c, _ := encodeToMemory(t, data, s)
	require.Len(t, c.Frames, 30)
	reencoded := platform(c)
	require.Len(t, reencoded.Frames, 30*2+2)

	var out bytes.Buffer
	_, err := DecodeStream(context.Background(), frameSource(t, reencoded, s), &out, s)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, out.Bytes()))
}

func TestDecodeStream_CorrectsDamage(t *testing.T) {
	s := DefaultSettings()
	data := randomBytes(10000, 4)
	c, _ := encodeToMemory(t, data, s)

	// Invert 8 bytes worth of pixels in the third block.
	start := 2 * ecc.BlockSize * 8
	for i := start; i < start+64; i++ {
		c.Frames[0].Pix[i] ^= 0xff
	}

	var out bytes.Buffer
	stats, err := DecodeStream(context.Background(), frameSource(t, c, s), &out, s)
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes()[:len(data)])
	assert.Equal(t, 1, stats.CorrectedBlocks)
}

func TestDecodeStream_Uncorrectable(t *testing.T) {
	smallChunks(t, 4, 2)
	s := DefaultSettings()
	data := randomBytes(10000, 5)
	c, _ := encodeToMemory(t, data, s)

	// 17 damaged bytes in block 5 is one more than 32 parity symbols can fix.
	start := 5 * ecc.BlockSize * 8
	for i := start; i < start+17*8; i += 8 {
		c.Frames[0].Pix[i] ^= 0xff
	}

	var out bytes.Buffer
	_, err := DecodeStream(context.Background(), frameSource(t, c, s), &out, s)
	require.ErrorIs(t, err, ErrUncorrectableBlock)
	var blockErr *ecc.BlockError
	require.True(t, errors.As(err, &blockErr))
	assert.Equal(t, 5, blockErr.Index)
	// The chunks before the damage were written.
	assert.Equal(t, 4*s.DataSize(), out.Len())
}

func TestDecodeStreamN_Truncated(t *testing.T) {
	s := uncorrected(Depth1)
	data := randomBytes(1000, 6)
	c, _ := encodeToMemory(t, data, s)

	var out bytes.Buffer
	_, err := DecodeStreamN(context.Background(), frameSource(t, c, s), &out, s, int64(s.Resolution.FrameSize()))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = DecodeStreamN(context.Background(), frameSource(t, c, s), &out, s, -1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestEncodeStream_Cancelled(t *testing.T) {
	s := DefaultSettings()
	c := video.NewMemoryContainer(s.Resolution.Width, s.Resolution.Height, "h264")
	fb := video.NewFrameBuffer(c, s.Resolution.Width, s.Resolution.Height, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EncodeStream(ctx, bytesReader(randomBytes(100, 7)), fb, s)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = DecodeStream(ctx, frameSource(t, c, s), io.Discard, s)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodeStream_InvalidSettings(t *testing.T) {
	s := DefaultSettings()
	c := video.NewMemoryContainer(s.Resolution.Width, s.Resolution.Height, "h264")
	fb := video.NewFrameBuffer(c, s.Resolution.Width, s.Resolution.Height, false)

	bad := s
	bad.ECCSymbols = 255
	_, err := EncodeStream(context.Background(), bytesReader(nil), fb, bad)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	bad = s
	bad.Resolution = QHD
	_, err = EncodeStream(context.Background(), bytesReader(nil), fb, bad)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = DecodeStream(context.Background(), frameSource(t, c, s), io.Discard, Settings{})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestEncodeStream_ReadError(t *testing.T) {
	s := DefaultSettings()
	c := video.NewMemoryContainer(s.Resolution.Width, s.Resolution.Height, "h264")
	fb := video.NewFrameBuffer(c, s.Resolution.Width, s.Resolution.Height, false)

	_, err := EncodeStream(context.Background(), failingReader{}, fb, s)
	assert.ErrorContains(t, err, "connection reset")
}

func TestDecode_Misaligned(t *testing.T) {
	_, err := pixel.Decode(make([]byte, 12), Depth1)
	assert.ErrorIs(t, err, ErrMisalignedInput)

	_, err = ecc.RemoveFEC(make([]byte, ecc.BlockSize+1), 16)
	assert.ErrorIs(t, err, ErrMisalignedInput)
}

func TestTrimTail(t *testing.T) {
	logger := logrusDiscard()
	rs, err := ecc.GetScheme(32)
	require.NoError(t, err)
	none, err := ecc.GetScheme(0)
	require.NoError(t, err)

	assert.Len(t, trimTail(make([]byte, 100), none, logger), 100)
	assert.Len(t, trimTail(make([]byte, 3*255+20), rs, logger), 3*255)
	assert.Len(t, trimTail(make([]byte, 254), rs, logger), 0)
}

func TestDecodeStream_Depth3Tail(t *testing.T) {
	// 255 bytes are 680 pixels, not a multiple of the 24 pixel alignment.
	s := DefaultSettings()
	s.BitDepth = Depth3
	data := randomBytes(s.DataSize(), 13)
	c, _ := encodeToMemory(t, data, s)

	var out bytes.Buffer
	_, err := DecodeStream(context.Background(), frameSource(t, c, s), &out, s)
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes()[:len(data)])
}

func TestCheckLimits(t *testing.T) {
	s := DefaultSettings()
	assert.NoError(t, CheckLimits(1<<20, s))
	assert.ErrorIs(t, CheckLimits(20_000_000_000, s), ErrTooLarge)
}
