package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuomas-lb/youbit/internal/compress"
	"github.com/tuomas-lb/youbit/internal/pixel"
	"github.com/tuomas-lb/youbit/internal/settings"
	"github.com/tuomas-lb/youbit/internal/video"
)

func TestDefault_Valid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestParse(t *testing.T) {
	doc := `
settings:
  bit_depth: 2
  ecc_symbols: 16
  resolution: 4k
  crf: 20
  null_frames: true
  compression: zstd
protocol:
  vp9:
    stride: 5
  av1:
    keyframes_only: true
ffmpeg:
  binary: /opt/ffmpeg/bin/ffmpeg
log:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, settings.Settings{
		BitDepth:    pixel.Depth2,
		ECCSymbols:  16,
		Resolution:  settings.UHD,
		CRF:         20,
		NullFrames:  true,
		Compression: compress.Zstd,
	}, cfg.Settings)

	assert.Equal(t, video.Profile{Stride: 5}, cfg.Protocol["vp9"])
	assert.Equal(t, video.Profile{KeyframesOnly: true}, cfg.Protocol["av1"])
	assert.Equal(t, video.DefaultProtocol()["h264"], cfg.Protocol["h264"])

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.Binary)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.Probe)
	assert.Equal(t, Default().Limits, cfg.Limits)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: "settings:\n  depth: 2\n"},
		{name: "bit depth", doc: "settings:\n  bit_depth: 4\n"},
		{name: "ecc symbols", doc: "settings:\n  ecc_symbols: 255\n"},
		{name: "resolution", doc: "settings:\n  resolution: 1000x1000\n"},
		{name: "resolution syntax", doc: "settings:\n  resolution: big\n"},
		{name: "compression", doc: "settings:\n  compression: lzma\n"},
		{name: "stride", doc: "protocol:\n  vp9:\n    stride: -1\n"},
		{name: "ffmpeg", doc: "ffmpeg:\n  probe: \"\"\n"},
		{name: "limits", doc: "limits:\n  max_frames: 0\n"},
		{name: "log level", doc: "log:\n  level: loud\n"},
		{name: "log format", doc: "log:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, settings.ErrInvalidConfiguration)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "youbit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  resolution: 2k\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, settings.QHD, cfg.Settings.Resolution)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Settings.Resolution = settings.FUHD

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "resolution: 7680x4320")

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestApplyLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := Default()
	cfg.Log = Log{Level: "warn", Format: "json"}
	require.NoError(t, cfg.ApplyLogging())
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)
}
