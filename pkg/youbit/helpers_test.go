package youbit

import (
	"context"
	"io"
	"math/rand"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tuomas-lb/youbit/internal/imgutil"
	"github.com/tuomas-lb/youbit/internal/video"
)

// randomBytes returns n deterministic pseudo-random bytes.
func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// repeating returns n bytes counting 0..255 over and over.
func repeating(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func logrusDiscard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// smallChunks shrinks the streaming chunk sizes so short inputs span several
// chunks.
func smallChunks(t *testing.T, encode, decode int) {
	t.Helper()
	oldEncode, oldDecode := encodeChunkBlocks, decodeChunkBlocks
	encodeChunkBlocks, decodeChunkBlocks = encode, decode
	t.Cleanup(func() {
		encodeChunkBlocks, decodeChunkBlocks = oldEncode, oldDecode
	})
}

// encodeToMemory runs EncodeStream into a new in-memory h264 video.
func encodeToMemory(t *testing.T, data []byte, s Settings) (*video.MemoryContainer, *StreamStats) {
	t.Helper()
	c := video.NewMemoryContainer(s.Resolution.Width, s.Resolution.Height, "h264")
	fb := video.NewFrameBuffer(c, s.Resolution.Width, s.Resolution.Height, s.NullFrames)
	stats, err := EncodeStream(context.Background(), bytesReader(data), fb, s)
	require.NoError(t, err)
	require.NoError(t, fb.Close())
	return c, stats
}

// frameSource opens c with the default protocol.
func frameSource(t *testing.T, c *video.MemoryContainer, s Settings) *video.FrameSource {
	t.Helper()
	src, err := video.NewFrameSource(c.Reader(), video.DefaultProtocol(), s.NullFrames)
	require.NoError(t, err)
	return src
}

// jpegChannel replaces every frame of c by its JPEG round trip.
func jpegChannel(t *testing.T, c *video.MemoryContainer, quality int) {
	t.Helper()
	for i := range c.Frames {
		img, err := imgutil.FrameToImage(c.Frames[i].Pix, c.W, c.H)
		require.NoError(t, err)
		data, err := imgutil.EncodeImage(img, "jpeg", quality)
		require.NoError(t, err)
		decoded, _, err := imgutil.LoadImage(data)
		require.NoError(t, err)
		c.Frames[i].Pix = imgutil.ImageToFrame(decoded)
	}
}

// platform re-encodes c the way the hosting platform does for h264: uploaded
// frames become keyframes separated by inter frames, and keyframe ordinal 11
// and every 17th after it is a repeat of its predecessor.
func platform(c *video.MemoryContainer) *video.MemoryContainer {
	out := video.NewMemoryContainer(c.W, c.H, "h264")
	inter := make([]byte, c.W*c.H)
	keyframes := 0
	add := func(pix []byte, key bool) {
		out.Frames = append(out.Frames, video.Frame{Index: len(out.Frames), Keyframe: key, Pix: pix})
		if key {
			keyframes++
		}
	}
	for i, f := range c.Frames {
		if (keyframes-11)%17 == 0 {
			add(c.Frames[i-1].Pix, true)
		}
		add(f.Pix, true)
		add(inter, false)
	}
	return out
}

// memoryStore is a Container keeping videos in memory. Closing a writer also
// writes the raw frames to the path so the file has a size.
type memoryStore struct {
	mu     sync.Mutex
	codec  string
	videos map[string]*video.MemoryContainer
}

func newMemoryStore(codec string) *memoryStore {
	return &memoryStore{codec: codec, videos: make(map[string]*video.MemoryContainer)}
}

func (m *memoryStore) Create(_ context.Context, path string, opts video.EncodeOptions) (video.FrameWriter, error) {
	c := video.NewMemoryContainer(opts.Width, opts.Height, m.codec)
	return &storeWriter{MemoryContainer: c, store: m, path: path}, nil
}

func (m *memoryStore) Open(_ context.Context, path string, p video.Protocol) (video.FrameReader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.videos[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return c.Reader(), nil
}

type storeWriter struct {
	*video.MemoryContainer
	store *memoryStore
	path  string
}

func (w *storeWriter) Close() error {
	if err := w.MemoryContainer.Close(); err != nil {
		return err
	}
	f, err := os.Create(w.path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, frame := range w.Frames {
		if _, err := f.Write(frame.Pix); err != nil {
			return err
		}
	}
	w.store.mu.Lock()
	w.store.videos[w.path] = w.MemoryContainer
	w.store.mu.Unlock()
	return f.Close()
}
