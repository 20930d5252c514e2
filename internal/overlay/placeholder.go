package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
)

// Kind selects a placeholder image.
type Kind int

const (
	// Loading is shown while a fetch is in flight.
	Loading Kind = iota
	// Failed is shown when a state has no overlay.
	Failed
)

var (
	loadingBackground = color.RGBA{R: 20, G: 20, B: 28, A: 96}
	loadingForeground = color.RGBA{R: 210, G: 210, B: 230, A: 255}
	failedBackground  = color.RGBA{R: 64, G: 8, B: 8, A: 128}
	failedForeground  = color.RGBA{R: 240, G: 60, B: 60, A: 255}
)

// Placeholder draws a size x size placeholder: a ring while loading and a
// cross for a failed overlay.
func Placeholder(kind Kind, size int) *image.RGBA {
	if size <= 0 {
		size = DefaultSize
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	c := float64(size) / 2
	stroke := math.Max(2, float64(size)/32)

	bg, fg := loadingBackground, loadingForeground
	if kind == Failed {
		bg, fg = failedBackground, failedForeground
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			on := false
			switch kind {
			case Failed:
				// distance to either diagonal, inside the middle half
				inset := math.Abs(px-c) < c/2 && math.Abs(py-c) < c/2
				d1 := math.Abs(px-py) / math.Sqrt2
				d2 := math.Abs(px+py-float64(size)) / math.Sqrt2
				on = inset && math.Min(d1, d2) < stroke/2
			default:
				r := math.Hypot(px-c, py-c)
				on = math.Abs(r-c/3) < stroke/2
			}
			if on {
				img.SetRGBA(x, y, fg)
			} else {
				img.SetRGBA(x, y, bg)
			}
		}
	}
	return img
}

// LoadPlaceholder reads an image file and normalizes it to size.
func LoadPlaceholder(path string, size int) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading placeholder: %w", err)
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("placeholder %s: %w", path, err)
	}
	return Normalize(img, size), nil
}
