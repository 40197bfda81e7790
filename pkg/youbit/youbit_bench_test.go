package youbit

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tuomas-lb/youbit/internal/video"
)

func benchmarkSettings() Settings {
	return DefaultSettings()
}

func BenchmarkEncodeStream_HD(b *testing.B) {
	logrus.SetLevel(logrus.WarnLevel)
	s := benchmarkSettings()
	data := randomBytes(4<<20, 1)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := video.NewMemoryContainer(s.Resolution.Width, s.Resolution.Height, "h264")
		fb := video.NewFrameBuffer(c, s.Resolution.Width, s.Resolution.Height, false)
		if _, err := EncodeStream(context.Background(), bytes.NewReader(data), fb, s); err != nil {
			b.Fatalf("EncodeStream failed: %v", err)
		}
		if err := fb.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}
	}
}

func BenchmarkDecodeStream_HD(b *testing.B) {
	logrus.SetLevel(logrus.WarnLevel)
	s := benchmarkSettings()
	data := randomBytes(4<<20, 1)

	// Every frame of a memory container is a keyframe, so no frame filter
	// applies.
	c := video.NewMemoryContainer(s.Resolution.Width, s.Resolution.Height, "rawvideo")
	fb := video.NewFrameBuffer(c, s.Resolution.Width, s.Resolution.Height, false)
	if _, err := EncodeStream(context.Background(), bytes.NewReader(data), fb, s); err != nil {
		b.Fatalf("EncodeStream failed: %v", err)
	}
	if err := fb.Close(); err != nil {
		b.Fatalf("Close failed: %v", err)
	}

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src, err := video.NewFrameSource(c.Reader(), video.Protocol{"rawvideo": {}}, false)
		if err != nil {
			b.Fatalf("NewFrameSource failed: %v", err)
		}
		if _, err := DecodeStream(context.Background(), src, io.Discard, s); err != nil {
			b.Fatalf("DecodeStream failed: %v", err)
		}
	}
}
