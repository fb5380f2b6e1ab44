//go:build gocv

package imageprep

import (
	"image"

	"gocv.io/x/gocv"
)

// clahe uses OpenCV when the binary is built with -tags gocv.
func clahe(src *image.Gray, clip float64, tiles int) *image.Gray {
	mat, err := gocv.ImageGrayToMatGray(src)
	if err != nil {
		return claheTiles(src, clip, tiles)
	}
	defer mat.Close()

	c := gocv.NewCLAHEWithParams(clip, image.Point{X: tiles, Y: tiles})
	defer c.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	c.Apply(mat, &dst)

	img, err := dst.ToImage()
	if err != nil {
		return claheTiles(src, clip, tiles)
	}
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	return toGray(img)
}
