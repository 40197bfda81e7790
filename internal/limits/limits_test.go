package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/settings"
)

func TestEstimateFor(t *testing.T) {
	tests := []struct {
		name     string
		payload  int64
		mutate   func(*settings.Settings)
		expected Estimate
	}{
		{
			name:    "one full HD frame without ecc",
			payload: 259200,
			mutate:  func(s *settings.Settings) { s.ECCSymbols = 0 },
			expected: Estimate{
				PayloadBytes: 259200, FramedBytes: 259200,
				Pixels: 2073600, DataFrames: 1, Frames: 1,
			},
		},
		{
			name:    "ecc padding rounds up to whole blocks",
			payload: 224,
			expected: Estimate{
				PayloadBytes: 224, FramedBytes: 510,
				Pixels: 4080, DataFrames: 1, Frames: 1,
			},
		},
		{
			name:    "null frames double the count",
			payload: 259201,
			mutate: func(s *settings.Settings) {
				s.ECCSymbols = 0
				s.NullFrames = true
			},
			expected: Estimate{
				PayloadBytes: 259201, FramedBytes: 259201,
				Pixels: 2073608, DataFrames: 2, Frames: 4,
			},
		},
		{
			name:    "depth 3 pads to whole byte triples",
			payload: 4,
			mutate: func(s *settings.Settings) {
				s.ECCSymbols = 0
				s.BitDepth = pixel.Depth3
			},
			expected: Estimate{
				PayloadBytes: 4, FramedBytes: 4,
				Pixels: 16, DataFrames: 1, Frames: 1,
			},
		},
		{
			name:     "empty payload",
			payload:  0,
			expected: Estimate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settings.Default()
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			assert.Equal(t, tt.expected, EstimateFor(tt.payload, s))
		})
	}
}

func TestCheck(t *testing.T) {
	l := Default()

	assert.NoError(t, l.Check(Estimate{Frames: MaxFrames, FramedBytes: 1}))
	assert.ErrorIs(t, l.Check(Estimate{Frames: MaxFrames + 1}), ErrTooLarge)
	assert.ErrorIs(t, l.Check(Estimate{Frames: 1, FramedBytes: MaxFileSize + 1}), ErrTooLarge)

	assert.NoError(t, l.CheckFileSize(MaxFileSize))
	assert.ErrorIs(t, l.CheckFileSize(MaxFileSize+1), ErrTooLarge)
}

func TestCheck_LargeFileRejectedUpFront(t *testing.T) {
	s := settings.Default()
	// 43000 full HD frames at depth 1 carry about 11 GB of framed data
	e := EstimateFor(12_000_000_000, s)
	assert.ErrorIs(t, Default().Check(e), ErrTooLarge)
}
