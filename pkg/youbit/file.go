package youbit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tuomas-lb/youbit/internal/compress"
	"github.com/tuomas-lb/youbit/internal/limits"
	"github.com/tuomas-lb/youbit/internal/metadata"
	"github.com/tuomas-lb/youbit/internal/tempdir"
	"github.com/tuomas-lb/youbit/internal/video"
)

const (
	tempDirPrefix   = "youbit-"
	payloadFileName = "payload"
	ioBufferSize    = 1 << 20
)

// Container creates and opens video files
type Container interface {
	Create(ctx context.Context, path string, opts video.EncodeOptions) (video.FrameWriter, error)
	Open(ctx context.Context, path string, p video.Protocol) (video.FrameReader, error)
}

// Options configures an Encoder or Decoder
type Options struct {
	// Settings are used by the Encoder; the Decoder takes them from Metadata
	Settings Settings
	// Protocol selects the frame filter for each codec
	Protocol video.Protocol
	// Limits are the platform ceilings checked before and after encoding
	Limits limits.Limits
	// Container reads and writes the video files
	Container Container
}

// DefaultOptions returns default settings with the ffmpeg container.
func DefaultOptions() *Options {
	return &Options{
		Settings:  DefaultSettings(),
		Protocol:  video.DefaultProtocol(),
		Limits:    limits.Default(),
		Container: video.DefaultFFmpeg(),
	}
}

// Encoder turns files into videos
type Encoder struct {
	opts Options
}

// NewEncoder validates opts and returns an Encoder. nil selects DefaultOptions.
func NewEncoder(opts *Options) (*Encoder, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Container == nil {
		return nil, fmt.Errorf("%w: no video container", ErrInvalidConfiguration)
	}
	return &Encoder{opts: *opts}, nil
}

// EncodeFile encodes the file at inputPath into a video at outputPath and
// writes its metadata next to it, at outputPath+MetadataSuffix. The returned
// Metadata is needed to decode the video.
func (e *Encoder) EncodeFile(ctx context.Context, inputPath, outputPath string) (*Metadata, error) {
	ctx, logger := sessionLogger(ctx, "EncodeFile")
	s := e.opts.Settings
	logger = logger.WithFields(logrus.Fields{
		"input":  inputPath,
		"output": outputPath,
	})

	tmp, err := tempdir.New(tempDirPrefix)
	if err != nil {
		return nil, err
	}
	defer tmp.Close()

	m, err := compressFile(inputPath, tmp.Join(payloadFileName), s.Compression)
	if err != nil {
		return nil, err
	}
	m.Settings = s

	est := Estimate(int64(m.PayloadLength), s)
	logger.WithFields(logrus.Fields{
		"original_size":  m.OriginalSize,
		"payload_length": m.PayloadLength,
		"frames":         est.Frames,
		"framed_bytes":   est.FramedBytes,
	}).Info("Compressed input")
	if err := e.opts.Limits.Check(est); err != nil {
		logger.WithField("error", err.Error()).Error("Input too large")
		return nil, err
	}

	if err := e.encodePayload(ctx, tmp.Join(payloadFileName), outputPath); err != nil {
		os.Remove(outputPath)
		logger.WithField("error", err.Error()).Error("Encoding failed")
		return nil, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}
	if err := e.opts.Limits.CheckFileSize(info.Size()); err != nil {
		os.Remove(outputPath)
		logger.WithField("error", err.Error()).Error("Video too large")
		return nil, err
	}

	if err := metadata.WriteFile(outputPath+MetadataSuffix, m); err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"video_size": info.Size(),
		"checksum":   m.Checksum.String(),
	}).Info("Encoded file")
	return m, nil
}

func (e *Encoder) encodePayload(ctx context.Context, payloadPath, outputPath string) (err error) {
	s := e.opts.Settings
	payload, err := os.Open(payloadPath)
	if err != nil {
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer payload.Close()

	w, err := e.opts.Container.Create(ctx, outputPath, video.EncodeOptions{
		Width:  s.Resolution.Width,
		Height: s.Resolution.Height,
		CRF:    s.CRF,
	})
	if err != nil {
		return err
	}
	fb := video.NewFrameBuffer(w, s.Resolution.Width, s.Resolution.Height, s.NullFrames)
	defer func() {
		if cerr := fb.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = EncodeStream(ctx, bufio.NewReaderSize(payload, ioBufferSize), fb, s)
	return err
}

// compressFile compresses src into dst and describes the result. Settings are
// left for the caller to fill in.
func compressFile(src, dst string, algo compress.Algorithm) (*Metadata, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload: %w", err)
	}
	defer out.Close()

	buf := bufio.NewWriterSize(out, ioBufferSize)
	cw, err := compress.NewWriter(buf, algo)
	if err != nil {
		return nil, err
	}
	h := metadata.NewHash()
	size, err := io.Copy(cw, io.TeeReader(in, h))
	if err != nil {
		cw.Close()
		return nil, fmt.Errorf("failed to compress input: %w", err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress input: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write payload: %w", err)
	}
	payloadLength, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to size payload: %w", err)
	}

	m := &Metadata{
		Version:       metadata.CurrentVersion,
		Filename:      filepath.Base(src),
		OriginalSize:  uint64(size),
		PayloadLength: uint64(payloadLength),
	}
	copy(m.Checksum[:], h.Sum(nil))
	return m, nil
}

// Decoder turns videos back into files
type Decoder struct {
	opts Options
}

// NewDecoder returns a Decoder. nil selects DefaultOptions.
func NewDecoder(opts *Options) (*Decoder, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Container == nil {
		return nil, fmt.Errorf("%w: no video container", ErrInvalidConfiguration)
	}
	return &Decoder{opts: *opts}, nil
}

// DecodeFile rebuilds the file stored in the video at videoPath inside
// outputDir and returns its path. The original file name is kept, with a
// counter added when a file of that name exists. A nil meta is read from the
// sidecar at videoPath+MetadataSuffix.
func (d *Decoder) DecodeFile(ctx context.Context, videoPath, outputDir string, meta *Metadata) (string, error) {
	ctx, logger := sessionLogger(ctx, "DecodeFile")
	logger = logger.WithField("video", videoPath)

	if meta == nil {
		m, err := metadata.ReadFile(videoPath + MetadataSuffix)
		if err != nil {
			return "", fmt.Errorf("no metadata given and no sidecar found: %w", err)
		}
		meta = m
	}
	s := meta.Settings
	if err := s.Validate(); err != nil {
		return "", err
	}

	st, err := os.Stat(outputDir)
	if err != nil {
		return "", fmt.Errorf("output directory: %w", err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("output %s is not a directory", outputDir)
	}

	tmp, err := tempdir.New(tempDirPrefix)
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	payloadPath := tmp.Join(payloadFileName)
	if err := d.decodePayload(ctx, videoPath, payloadPath, meta); err != nil {
		logger.WithField("error", err.Error()).Error("Decoding failed")
		return "", err
	}

	outputPath, err := uniquePath(outputDir, meta.Filename)
	if err != nil {
		return "", err
	}
	if err := decompressFile(payloadPath, outputPath, meta); err != nil {
		os.Remove(outputPath)
		logger.WithField("error", err.Error()).Error("Decompression failed")
		return "", err
	}

	logger.WithFields(logrus.Fields{
		"output": outputPath,
		"size":   meta.OriginalSize,
	}).Info("Decoded file")
	return outputPath, nil
}

func (d *Decoder) decodePayload(ctx context.Context, videoPath, payloadPath string, meta *Metadata) error {
	s := meta.Settings
	r, err := d.opts.Container.Open(ctx, videoPath, d.opts.Protocol)
	if err != nil {
		return err
	}
	if r.Width() != s.Resolution.Width || r.Height() != s.Resolution.Height {
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.decodePayload",
			"video":    fmt.Sprintf("%dx%d", r.Width(), r.Height()),
			"encoded":  s.Resolution.String(),
		}).Warn("Video resolution differs from the encoded resolution")
	}

	src, err := video.NewFrameSource(r, d.opts.Protocol, s.NullFrames)
	if err != nil {
		r.Close()
		return err
	}
	defer src.Close()

	out, err := os.Create(payloadPath)
	if err != nil {
		return fmt.Errorf("failed to create payload: %w", err)
	}
	defer out.Close()

	buf := bufio.NewWriterSize(out, ioBufferSize)
	framed := Estimate(int64(meta.PayloadLength), s).FramedBytes
	if _, err := DecodeStreamN(ctx, src, buf, s, framed); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	// The last FEC block is zero padded past the payload.
	if err := out.Truncate(int64(meta.PayloadLength)); err != nil {
		return fmt.Errorf("failed to truncate payload: %w", err)
	}
	return nil
}

func decompressFile(src, dst string, meta *Metadata) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer in.Close()

	cr, err := compress.NewReader(bufio.NewReaderSize(in, ioBufferSize), meta.Settings.Compression)
	if err != nil {
		return fmt.Errorf("failed to decompress payload: %w", err)
	}
	defer cr.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	h := metadata.NewHash()
	buf := bufio.NewWriterSize(io.MultiWriter(out, h), ioBufferSize)
	size, err := io.Copy(buf, cr)
	if err != nil {
		return fmt.Errorf("failed to decompress payload: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	var sum metadata.Checksum
	copy(sum[:], h.Sum(nil))
	if uint64(size) != meta.OriginalSize || sum != meta.Checksum {
		return fmt.Errorf("%w: got %d bytes with checksum %s, expected %d bytes with checksum %s",
			ErrChecksumMismatch, size, sum, meta.OriginalSize, meta.Checksum)
	}
	return out.Close()
}

// uniquePath returns dir/name, or dir/stem(i).ext for the first i that does
// not exist yet.
func uniquePath(dir, name string) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "output"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", path, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, i, ext))
	}
}
