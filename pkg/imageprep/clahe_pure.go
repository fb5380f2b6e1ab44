//go:build !gocv

package imageprep

import "image"

func clahe(src *image.Gray, clip float64, tiles int) *image.Gray {
	return claheTiles(src, clip, tiles)
}
