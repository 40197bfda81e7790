// Package imgutil converts between gray video frames and images. It is used to
// dump frames for inspection and to push frames through lossy image codecs.
package imgutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"strings"
)

// LoadImageFromFile loads an image from a file path
// Returns the image, format string, and any error
func LoadImageFromFile(path string) (image.Image, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	return LoadImage(data)
}

// LoadImage loads an image from byte data
// Returns the image, format string, and any error
func LoadImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// SaveImageToFile saves an image to a file
func SaveImageToFile(img image.Image, format, path string, quality int) error {
	data, err := EncodeImage(img, format, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EncodeImage encodes an image to the specified format. quality only applies
// to JPEG.
func EncodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	format = strings.ToLower(format)
	switch format {
	case "png", "image/png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	case "jpg", "jpeg", "image/jpeg":
		opts := &jpeg.Options{Quality: quality}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return buf.Bytes(), nil
}

// FrameToImage wraps width*height gray pixels in an image without copying.
func FrameToImage(pix []byte, width, height int) (*image.Gray, error) {
	if len(pix) != width*height {
		return nil, fmt.Errorf("frame has %d pixels, expected %dx%d", len(pix), width, height)
	}
	return &image.Gray{
		Pix:    pix,
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// ImageToFrame returns the luma plane of img as row-major gray pixels.
func ImageToFrame(img image.Image) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := make([]byte, width*height)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			i := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out[y*width:(y+1)*width], src.Pix[i:i+width])
		}
	case *image.YCbCr:
		// Luma is stored at full resolution whatever the subsampling.
		for y := 0; y < height; y++ {
			i := src.YOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out[y*width:(y+1)*width], src.Y[i:i+width])
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out[y*width+x] = Luma(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
	}
	return out
}

// Luma returns the BT.601 luma of c.
func Luma(c color.Color) uint8 {
	switch v := c.(type) {
	case color.Gray:
		return v.Y
	case color.YCbCr:
		return v.Y
	}
	r, g, b, _ := c.RGBA()

	// Y = 0.299*R + 0.587*G + 0.114*B
	y := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
	return uint8(y + 0.5)
}

// SaveFrame writes one gray frame to path as PNG.
func SaveFrame(path string, pix []byte, width, height int) error {
	img, err := FrameToImage(pix, width, height)
	if err != nil {
		return err
	}
	return SaveImageToFile(img, "png", path, 0)
}
