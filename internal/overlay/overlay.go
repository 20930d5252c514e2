// Package overlay decodes, normalizes and stores board overlay images.
package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// DefaultSize is the canonical edge length of a cached overlay.
const DefaultSize = 512

// ErrDecode is returned when overlay bytes cannot be turned into an image.
var ErrDecode = errors.New("overlay decode failed")

type format struct {
	name   string
	match  func([]byte) bool
	decode func(io.Reader) (image.Image, error)
}

// TGA has no magic number, so it is only tried when nothing else matches.
// image.Decode is avoided because the tga package registers an empty magic
// that claims every payload.
var formats = []format{
	{"png", hasPrefix("\x89PNG\r\n\x1a\n"), png.Decode},
	{"jpeg", hasPrefix("\xff\xd8"), jpeg.Decode},
	{"gif", func(b []byte) bool { return hasPrefix("GIF87a")(b) || hasPrefix("GIF89a")(b) }, gif.Decode},
	{"webp", isWebP, webp.Decode},
}

func hasPrefix(magic string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(magic)) }
}

func isWebP(b []byte) bool {
	return len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP"
}

// Decode decodes PNG, JPEG, GIF, WebP or TGA bytes. The format name is
// returned alongside the image.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrDecode)
	}

	name, decode := "tga", tga.Decode
	for _, f := range formats {
		if f.match(data) {
			name, decode = f.name, f.decode
			break
		}
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return img, name, nil
}

// Normalize resamples img to a size x size RGBA image.
func Normalize(img image.Image, size int) *image.RGBA {
	if size <= 0 {
		size = DefaultSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// EncodeStored encodes an overlay for persistent storage as lossless WebP.
func EncodeStored(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("encoding overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeStored decodes a blob written by EncodeStored.
func DecodeStored(data []byte) (image.Image, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: stored overlay: %w", ErrDecode, err)
	}
	return img, nil
}
