package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// FFmpeg reads and writes video files through the ffmpeg and ffprobe
// executables, exchanging raw gray frames over pipes.
type FFmpeg struct {
	Binary string `yaml:"binary"`
	Probe  string `yaml:"probe"`
}

// DefaultFFmpeg looks both executables up in PATH.
func DefaultFFmpeg() FFmpeg {
	return FFmpeg{Binary: "ffmpeg", Probe: "ffprobe"}
}

// EncodeOptions controls the video written by Create
type EncodeOptions struct {
	Width  int
	Height int
	// CRF is the x264 constant rate factor
	CRF int
}

// Create starts an encoder writing an H.264 video at one frame per second to
// path. Film grain tuning and a disabled deblocking filter keep the sharp
// pixel edges the payload depends on.
func (f FFmpeg) Create(ctx context.Context, path string, opts EncodeOptions) (FrameWriter, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", "1",
		"-i", "-",
		"-c:v", "libx264",
		"-crf", strconv.Itoa(opts.CRF),
		"-tune", "grain",
		"-x264-params", "no-deblock=1",
		"-pix_fmt", "yuv420p",
		path,
	}
	cmd := exec.CommandContext(ctx, f.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	w := &ffmpegWriter{cmd: cmd, stdin: stdin, frameSize: opts.Width * opts.Height}
	cmd.Stderr = &w.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", f.Binary, err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "FFmpeg.Create",
		"path":     path,
		"width":    opts.Width,
		"height":   opts.Height,
		"crf":      opts.CRF,
	}).Debug("Started video encoder")
	return w, nil
}

type ffmpegWriter struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	frameSize int
	closed    bool
}

func (w *ffmpegWriter) WriteFrame(pix []byte) error {
	if w.closed {
		return ErrClosed
	}
	if len(pix) != w.frameSize {
		return fmt.Errorf("%w: got %d pixels, expected %d", ErrFrameSize, len(pix), w.frameSize)
	}
	if _, err := w.stdin.Write(pix); err != nil {
		return fmt.Errorf("ffmpeg rejected frame: %w", err)
	}
	return nil
}

func (w *ffmpegWriter) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	if err := w.stdin.Close(); err != nil {
		return fmt.Errorf("failed to close ffmpeg stdin: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w%s", err, stderrTail(&w.stderr))
	}
	return nil
}

// Info describes the video stream of a file
type Info struct {
	Codec     string
	Width     int
	Height    int
	FrameRate string
}

type probeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Inspect reports the codec and dimensions of the first video stream of path.
func (f FFmpeg) Inspect(ctx context.Context, path string) (*Info, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Probe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate",
		"-of", "json",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed on %s: %w%s", path, err, stderrTail(&stderr))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("no video stream in %s", path)
	}
	s := out.Streams[0]
	return &Info{
		Codec:     s.CodecName,
		Width:     s.Width,
		Height:    s.Height,
		FrameRate: s.RFrameRate,
	}, nil
}

// Open starts a decoder streaming the frames of path as gray pixels. When the
// codec's profile in p only uses keyframes, the decoder skips every other
// frame and all returned frames are flagged as keyframes.
func (f FFmpeg) Open(ctx context.Context, path string, p Protocol) (FrameReader, error) {
	info, err := f.Inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	profile, err := p.Lookup(info.Codec)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"function":   "FFmpeg.Open",
		"path":       path,
		"codec":      info.Codec,
		"width":      info.Width,
		"height":     info.Height,
		"frame_rate": info.FrameRate,
	})
	if info.FrameRate == "1/1" {
		logger.Warn("Video has a framerate of 1 and has probably not been re-encoded by the platform, frame filtering will likely fail")
	}

	var args []string
	args = append(args, "-hide_banner", "-loglevel", "error")
	if profile.KeyframesOnly {
		args = append(args, "-skip_frame", "nokey")
	}
	args = append(args,
		"-i", path,
		"-map", "0:v:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	r := &ffmpegReader{
		cmd:       cmd,
		stdout:    bufio.NewReaderSize(stdout, 1<<20),
		info:      *info,
		keyframes: profile.KeyframesOnly,
	}
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", f.Binary, err)
	}
	logger.Debug("Started video decoder")
	return r, nil
}

type ffmpegReader struct {
	cmd       *exec.Cmd
	stdout    *bufio.Reader
	stderr    bytes.Buffer
	info      Info
	keyframes bool
	index     int
	done      bool
}

func (r *ffmpegReader) ReadFrame() (*Frame, error) {
	if r.done {
		return nil, io.EOF
	}
	pix := make([]byte, r.info.Width*r.info.Height)
	_, err := io.ReadFull(r.stdout, pix)
	if errors.Is(err, io.EOF) {
		r.done = true
		if err := r.cmd.Wait(); err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %w%s", err, stderrTail(&r.stderr))
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %d: %w", r.index, err)
	}

	frame := &Frame{Index: r.index, Keyframe: r.keyframes, Pix: pix}
	r.index++
	return frame, nil
}

func (r *ffmpegReader) Codec() string { return r.info.Codec }
func (r *ffmpegReader) Width() int    { return r.info.Width }
func (r *ffmpegReader) Height() int   { return r.info.Height }

func (r *ffmpegReader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	// The decoder may still be writing, stop it rather than drain it.
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	r.cmd.Wait()
	return nil
}

func stderrTail(b *bytes.Buffer) string {
	s := strings.TrimSpace(b.String())
	if s == "" {
		return ""
	}
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return ": " + s
}
