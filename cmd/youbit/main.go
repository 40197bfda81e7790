// Command youbit stores files in videos and recovers them.
//
// Usage:
//
//	youbit encode [flags] <file> <video>
//	youbit decode [flags] <video> [output directory]
//	youbit inspect [flags] <video>
//	youbit compare <file> <file>
//	youbit config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/tuomas-lb/youbit/internal/config"
	"github.com/tuomas-lb/youbit/internal/imgutil"
	"github.com/tuomas-lb/youbit/internal/metadata"
	"github.com/tuomas-lb/youbit/internal/video"
	"github.com/tuomas-lb/youbit/pkg/youbit"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(ctx, os.Args[2:])
	case "decode":
		err = runDecode(ctx, os.Args[2:])
	case "inspect":
		err = runInspect(ctx, os.Args[2:])
	case "compare":
		err = runCompare(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "youbit %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: youbit <command> [flags] [arguments]

Commands:
  encode   store a file in a video
  decode   recover the file stored in a video
  inspect  show the codec of a video and dump its payload frames as PNG
  compare  compare two files byte by byte
  config   print the default configuration

Run "youbit <command> -h" for the flags of a command.`)
}

// commonFlags registers the flags shared by every command and returns a loader
// for the resulting configuration.
func commonFlags(fs *flag.FlagSet) func() (*config.Config, error) {
	path := fs.String("config", "", "YAML configuration file")
	level := fs.String("log-level", "", "log level (overrides the configuration)")
	return func() (*config.Config, error) {
		cfg := config.Default()
		if *path != "" {
			loaded, err := config.Load(*path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		if *level != "" {
			cfg.Log.Level = *level
		}
		if err := cfg.ApplyLogging(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
}

func options(cfg *config.Config) *youbit.Options {
	return &youbit.Options{
		Settings:  cfg.Settings,
		Protocol:  cfg.Protocol,
		Limits:    cfg.Limits,
		Container: cfg.FFmpeg,
	}
}

func runEncode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	load := commonFlags(fs)
	depth := fs.Uint("depth", 0, "bits per pixel: 1, 2 or 3")
	ecc := fs.Int("ecc", -1, "Reed-Solomon parity symbols per 255-byte block, 0 disables")
	resolution := fs.String("resolution", "", "hd, 2k, 4k, 8k or WIDTHxHEIGHT")
	crf := fs.Int("crf", -1, "x264 constant rate factor (0-52)")
	nullFrames := fs.Bool("null-frames", false, "insert a black frame after every data frame")
	compression := fs.String("compression", "", "gzip, zstd or none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected <file> <video>, got %d arguments", fs.NArg())
	}
	if *depth > 3 {
		return fmt.Errorf("%w: bit depth %d, expected 1, 2 or 3", youbit.ErrInvalidConfiguration, *depth)
	}

	cfg, err := load()
	if err != nil {
		return err
	}
	s := &cfg.Settings
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "depth":
			s.BitDepth = youbit.BitDepth(*depth)
		case "ecc":
			s.ECCSymbols = *ecc
		case "crf":
			s.CRF = *crf
		case "null-frames":
			s.NullFrames = *nullFrames
		case "compression":
			s.Compression = youbit.Compression(*compression)
		}
	})
	if *resolution != "" {
		if err := s.Resolution.UnmarshalText([]byte(*resolution)); err != nil {
			return err
		}
	}

	enc, err := youbit.NewEncoder(options(cfg))
	if err != nil {
		return err
	}
	m, err := enc.EncodeFile(ctx, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	encoded, err := metadata.EncodeBase64(m)
	if err != nil {
		return err
	}

	fmt.Printf("video:     %s\n", fs.Arg(1))
	fmt.Printf("metadata:  %s%s\n", fs.Arg(1), youbit.MetadataSuffix)
	fmt.Printf("checksum:  %s\n", m.Checksum)
	fmt.Printf("paste into the video description:\n%s\n", encoded)
	return nil
}

func runDecode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	load := commonFlags(fs)
	metaPath := fs.String("meta", "", "metadata sidecar (default <video>"+youbit.MetadataSuffix+")")
	metaText := fs.String("meta-base64", "", "metadata as printed by encode, e.g. copied from the video description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("expected <video> [output directory], got %d arguments", fs.NArg())
	}
	outDir := "."
	if fs.NArg() == 2 {
		outDir = fs.Arg(1)
	}

	cfg, err := load()
	if err != nil {
		return err
	}

	var m *youbit.Metadata
	switch {
	case *metaText != "":
		m, err = metadata.DecodeBase64(*metaText)
	case *metaPath != "":
		m, err = metadata.ReadFile(*metaPath)
	}
	if err != nil {
		return err
	}

	dec, err := youbit.NewDecoder(options(cfg))
	if err != nil {
		return err
	}
	out, err := dec.DecodeFile(ctx, fs.Arg(0), outDir, m)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	load := commonFlags(fs)
	frames := fs.Int("frames", 0, "number of payload frames to dump as PNG")
	outDir := fs.String("o", ".", "directory for dumped frames")
	nullFrames := fs.Bool("null-frames", false, "the video was encoded with null frames (default from the metadata sidecar)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected <video>, got %d arguments", fs.NArg())
	}
	path := fs.Arg(0)

	cfg, err := load()
	if err != nil {
		return err
	}
	info, err := cfg.FFmpeg.Inspect(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("codec:       %s\n", info.Codec)
	fmt.Printf("resolution:  %dx%d\n", info.Width, info.Height)
	fmt.Printf("frame rate:  %s\n", info.FrameRate)

	null := *nullFrames
	if m, err := metadata.ReadFile(path + youbit.MetadataSuffix); err == nil {
		fmt.Printf("file:        %s (%d bytes)\n", m.Filename, m.OriginalSize)
		fmt.Printf("settings:    depth %d, ecc %d, %s, crf %d, null frames %v, %s\n",
			m.Settings.BitDepth, m.Settings.ECCSymbols, m.Settings.Resolution, m.Settings.CRF,
			m.Settings.NullFrames, m.Settings.Compression)
		fmt.Printf("checksum:    %s\n", m.Checksum)
		null = m.Settings.NullFrames
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "runInspect",
			"error":    err.Error(),
		}).Debug("No metadata sidecar")
	}

	if *frames <= 0 {
		return nil
	}
	r, err := cfg.FFmpeg.Open(ctx, path, cfg.Protocol)
	if err != nil {
		return err
	}
	src, err := video.NewFrameSource(r, cfg.Protocol, null)
	if err != nil {
		r.Close()
		return err
	}
	defer src.Close()

	for i := 0; i < *frames; i++ {
		pix, err := src.Extract(src.FrameSize())
		if err != nil {
			return err
		}
		if len(pix) < src.FrameSize() {
			break
		}
		name := filepath.Join(*outDir, fmt.Sprintf("frame-%05d.png", i))
		if err := imgutil.SaveFrame(name, pix, r.Width(), r.Height()); err != nil {
			return err
		}
		fmt.Println(name)
	}
	return nil
}

func runCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected <file> <file>, got %d arguments", fs.NArg())
	}

	c, err := youbit.CompareFiles(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Printf("equal:      %v\n", c.Equal())
	fmt.Printf("bytes:      %d\n", c.TotalBytes)
	fmt.Printf("incorrect:  %d (%.4f%%)\n", c.IncorrectBytes, c.ErrorRate())
	if !c.Equal() {
		fmt.Printf("first diff: %d\n", c.FirstMismatch)
		os.Exit(1)
	}
	return nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
