package imageprep

import (
	"image"
	"math"
)

// claheTiles equalises the histogram of each tile in a tiles x tiles grid,
// clipping every bin at clip times the uniform bin height and spreading the
// excess evenly. Pixels are mapped through a bilinear blend of the four
// nearest tile lookup tables so tile seams do not show.
func claheTiles(src *image.Gray, clip float64, tiles int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if tiles < 1 {
		tiles = 1
	}
	tw := (w + tiles - 1) / tiles
	th := (h + tiles - 1) / tiles
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	nx := (w + tw - 1) / tw
	ny := (h + th - 1) / th

	luts := make([][256]uint8, nx*ny)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			var hist [256]int
			for y := y0; y < y1; y++ {
				row := src.Pix[y*src.Stride:]
				for x := x0; x < x1; x++ {
					hist[row[x]]++
				}
			}
			n := (x1 - x0) * (y1 - y0)
			limit := int(clip * float64(n) / 256)
			if limit < 1 {
				limit = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			inc, rem := excess/256, excess%256
			for i := range hist {
				hist[i] += inc
				if i < rem {
					hist[i]++
				}
			}
			lut := &luts[ty*nx+tx]
			sum := 0
			for i := 0; i < 256; i++ {
				sum += hist[i]
				lut[i] = uint8((sum*255 + n/2) / n)
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		ty0, ty1, wy := tileNeighbours(y, th, ny)
		for x := 0; x < w; x++ {
			tx0, tx1, wx := tileNeighbours(x, tw, nx)
			v := src.Pix[y*src.Stride+x]
			top := (1-wx)*float64(luts[ty0*nx+tx0][v]) + wx*float64(luts[ty0*nx+tx1][v])
			bot := (1-wx)*float64(luts[ty1*nx+tx0][v]) + wx*float64(luts[ty1*nx+tx1][v])
			out.Pix[y*out.Stride+x] = uint8(math.Round((1-wy)*top + wy*bot))
		}
	}
	return out
}

// tileNeighbours returns the two tile indices whose centres bracket pos and
// the interpolation weight of the second one.
func tileNeighbours(pos, size, count int) (int, int, float64) {
	f := (float64(pos)+0.5)/float64(size) - 0.5
	i0 := int(math.Floor(f))
	weight := f - float64(i0)
	i1 := i0 + 1
	if i0 < 0 {
		i0, weight = 0, 0
	}
	if i1 > count-1 {
		i1 = count - 1
	}
	if i0 > count-1 {
		i0 = count - 1
	}
	return i0, i1, weight
}
