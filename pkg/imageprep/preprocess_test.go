package imageprep

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func stddev(g *image.Gray) float64 {
	var sum, sq float64
	for _, p := range g.Pix {
		sum += float64(p)
	}
	mean := sum / float64(len(g.Pix))
	for _, p := range g.Pix {
		d := float64(p) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(g.Pix)))
}

func TestDecode(t *testing.T) {
	img, err := Decode(pngBytes(t, solid(20, 10, 255)))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = Decode([]byte("definitely not an image"))
	assert.True(t, errors.Is(err, ErrMalformedImage))

	_, err = Decode(nil)
	assert.True(t, errors.Is(err, ErrMalformedImage))
}

// withDeclaredSize rewrites the IHDR chunk of a PNG so its header claims
// w x h pixels while the payload stays tiny.
func withDeclaredSize(data []byte, w, h uint32) []byte {
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecodeLimit(t *testing.T) {
	small := pngBytes(t, solid(20, 10, 255))

	tests := []struct {
		name      string
		data      []byte
		maxPixels int
		wantErr   bool
	}{
		{"within cap", small, 1000, false},
		{"exactly the cap", small, 200, false},
		{"over cap", small, 199, true},
		{"no cap", small, 0, false},
		{"header claims 50000x50000", withDeclaredSize(small, 50000, 50000), DefaultMaxPixels, true},
		{"header claims 8000x6000", withDeclaredSize(small, 8000, 6000), DefaultMaxPixels, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLimit(tt.data, tt.maxPixels)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedImage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreprocessorDecodeUsesPixelCap(t *testing.T) {
	data := pngBytes(t, solid(20, 10, 255))

	_, err := New(Options{MaxPixels: 100}).Decode(data)
	assert.ErrorIs(t, err, ErrMalformedImage)

	img, err := New(Options{}).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dy())

	_, err = New(Options{}).Decode(withDeclaredSize(data, 1<<16, 1<<16))
	assert.ErrorIs(t, err, ErrMalformedImage)
}

func TestPreprocessProducesAllVariants(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	p := New(Options{MinHeight: 10})
	variants, err := p.Preprocess(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, variants, len(Techniques))
	for i, v := range variants {
		assert.Equal(t, i, v.ID)
		assert.Equal(t, Techniques[i], v.Technique)
		require.NotNil(t, v.Image, v.Technique)
		assert.Equal(t, src.Bounds().Size(), v.Image.Bounds().Size(), v.Technique)
	}
}

func TestPreprocessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Preprocess(ctx, solid(10, 10, 200))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRescaleUpsizesShortImages(t *testing.T) {
	p := New(Options{})
	out := p.rescale(solid(100, 100, 255))
	assert.Equal(t, 1300, out.Bounds().Dy())

	out = p.rescale(solid(4000, 1000, 255))
	assert.LessOrEqual(t, out.Bounds().Dx(), 2000)
}

func TestCLAHEStretchesLowContrast(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			g.Pix[y*g.Stride+x] = uint8(120 + (x+y)%16)
		}
	}
	out := claheTiles(g, 3.0, 8)
	assert.Greater(t, stddev(out), stddev(g))
}

func TestBilateralKeepsEdges(t *testing.T) {
	g := solid(40, 20, 0)
	for y := 0; y < 20; y++ {
		for x := 20; x < 40; x++ {
			g.Pix[y*g.Stride+x] = 255
		}
	}
	out := bilateral(g, 9, 75, 75)
	assert.Less(t, int(out.Pix[10*out.Stride+19]), 20)
	assert.Greater(t, int(out.Pix[10*out.Stride+20]), 235)
}

func TestAdaptiveThresholdIsBinary(t *testing.T) {
	g := solid(30, 30, 230)
	for x := 5; x < 25; x++ {
		g.Pix[15*g.Stride+x] = 20 // a dark stroke
	}
	out := adaptiveThreshold(g, 11, 2)
	for _, p := range out.Pix {
		assert.True(t, p == 0 || p == 255)
	}
	assert.Equal(t, uint8(0), out.Pix[15*out.Stride+10])
	assert.Equal(t, uint8(255), out.Pix[2*out.Stride+2])
}

func TestCloseStrokesBridgesGap(t *testing.T) {
	g := solid(20, 5, 255)
	for x := 2; x < 18; x++ {
		if x == 10 {
			continue // one pixel break in the stroke
		}
		g.Pix[2*g.Stride+x] = 0
	}
	out := closeStrokes(g, 1)
	assert.Equal(t, uint8(0), out.Pix[2*out.Stride+10])
}

func TestUnsharpIncreasesLocalContrast(t *testing.T) {
	g := solid(20, 20, 100)
	for y := 0; y < 20; y++ {
		for x := 10; x < 20; x++ {
			g.Pix[y*g.Stride+x] = 160
		}
	}
	out := unsharp(g, 1.0, 1.5)
	assert.Less(t, int(out.Pix[10*out.Stride+9]), 100)
	assert.Greater(t, int(out.Pix[10*out.Stride+10]), 160)
}
