package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 40, B: 200, A: 255})
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode_Formats(t *testing.T) {
	src := checker(64, 48)

	var jpg, gf, wp, tg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, nil))
	require.NoError(t, gif.Encode(&gf, src, nil))
	require.NoError(t, nativewebp.Encode(&wp, src, nil))
	require.NoError(t, tga.Encode(&tg, src))

	tests := []struct {
		name   string
		data   []byte
		format string
	}{
		{"png", encodePNG(t, src), "png"},
		{"jpeg", jpg.Bytes(), "jpeg"},
		{"gif", gf.Bytes(), "gif"},
		{"webp", wp.Bytes(), "webp"},
		{"tga", tg.Bytes(), "tga"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)

	_, _, err = Decode([]byte("<html>not an image</html>"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestNormalize(t *testing.T) {
	out := Normalize(checker(300, 120), 0)
	assert.Equal(t, image.Rect(0, 0, DefaultSize, DefaultSize), out.Bounds())

	out = Normalize(checker(16, 16), 64)
	assert.Equal(t, image.Rect(0, 0, 64, 64), out.Bounds())
	_, _, _, a := out.At(32, 32).RGBA()
	assert.InDelta(t, 0xffff, float64(a), 0x100)
}

func TestStored_RoundTrip(t *testing.T) {
	src := checker(32, 32)

	data, err := EncodeStored(src)
	require.NoError(t, err)

	got, err := DecodeStored(data)
	require.NoError(t, err)
	require.Equal(t, src.Bounds(), got.Bounds())

	for _, p := range []image.Point{{0, 0}, {9, 3}, {31, 31}} {
		want := color.NRGBAModel.Convert(src.At(p.X, p.Y))
		assert.Equal(t, want, color.NRGBAModel.Convert(got.At(p.X, p.Y)), "pixel %v", p)
	}

	_, err = DecodeStored([]byte("garbage"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPlaceholder(t *testing.T) {
	loading := Placeholder(Loading, 128)
	failed := Placeholder(Failed, 128)

	assert.Equal(t, image.Rect(0, 0, 128, 128), loading.Bounds())
	assert.NotEqual(t, loading.Pix, failed.Pix)

	// the centre is on the cross but inside the ring
	assert.Equal(t, failedForeground, failed.RGBAAt(64, 64))
	assert.Equal(t, loadingBackground, loading.RGBAAt(64, 64))
	assert.Equal(t, loadingForeground, loading.RGBAAt(64+128/6, 64))
}

func TestLoadPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loading.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, checker(20, 20)), 0644))

	img, err := LoadPlaceholder(path, 40)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 40), img.Bounds())

	_, err = LoadPlaceholder(filepath.Join(t.TempDir(), "nope.png"), 40)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
