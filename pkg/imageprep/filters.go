package imageprep

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// bilateral smooths src while keeping strong edges: each neighbour is
// weighted by its spatial distance and by its intensity difference.
func bilateral(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	r := diameter / 2
	if r < 1 {
		r = 1
	}
	side := 2*r + 1
	spatial := make([]float64, side*side)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if d2 > float64(r*r) {
				continue // circular window, like OpenCV
			}
			spatial[(dy+r)*side+dx+r] = math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))
		}
	}
	var rangeW [256]float64
	for i := range rangeW {
		d := float64(i)
		rangeW[i] = math.Exp(-d * d / (2 * sigmaColor * sigmaColor))
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := int(src.Pix[y*src.Stride+x])
			var sum, norm float64
			for dy := -r; dy <= r; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				row := src.Pix[yy*src.Stride:]
				for dx := -r; dx <= r; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					sw := spatial[(dy+r)*side+dx+r]
					if sw == 0 {
						continue
					}
					p := int(row[xx])
					diff := p - c
					if diff < 0 {
						diff = -diff
					}
					wt := sw * rangeW[diff]
					sum += wt * float64(p)
					norm += wt
				}
			}
			out.Pix[y*out.Stride+x] = uint8(math.Round(sum / norm))
		}
	}
	return out
}

// adaptiveThreshold performs a mean adaptive threshold over a window x window
// neighbourhood using an integral image. Pixels darker than the local mean
// minus bias become black (0), everything else white (255).
func adaptiveThreshold(src *image.Gray, window int, bias int) *image.Gray {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	half := window / 2
	ints := make([]int64, w*h)
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.Pix[y*src.Stride+x])
			idx := y*w + x
			if y == 0 {
				ints[idx] = rowSum
			} else {
				ints[idx] = ints[(y-1)*w+x] + rowSum
			}
		}
	}
	at := func(x, y int) int64 {
		if x < 0 || y < 0 {
			return 0
		}
		return ints[y*w+x]
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half, w-1)
			sum := at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
			mean := int(sum / int64((x1-x0+1)*(y1-y0+1)))
			th := mean - bias
			if th < 0 {
				th = 0
			}
			v := uint8(255)
			if int(src.Pix[y*src.Stride+x]) < th {
				v = 0
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

var cross = [][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// dilate grows black (ink) pixels over a 4-neighbourhood, radius times.
func dilate(img *image.Gray, radius int) *image.Gray {
	return morph(img, radius, true)
}

// erode shrinks black (ink) pixels over a 4-neighbourhood, radius times.
func erode(img *image.Gray, radius int) *image.Gray {
	return morph(img, radius, false)
}

func morph(img *image.Gray, radius int, grow bool) *image.Gray {
	if radius <= 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cur := img
	for r := 0; r < radius; r++ {
		next := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				black := !grow
				for _, d := range cross {
					x2, y2 := x+d[0], y+d[1]
					if x2 < 0 || y2 < 0 || x2 >= w || y2 >= h {
						continue
					}
					ink := cur.Pix[y2*cur.Stride+x2] == 0
					if grow && ink {
						black = true
						break
					}
					if !grow && !ink {
						black = false
						break
					}
				}
				if black {
					next.Pix[y*next.Stride+x] = 0
				} else {
					next.Pix[y*next.Stride+x] = 255
				}
			}
		}
		cur = next
	}
	return cur
}

// closeStrokes reconnects broken glyph strokes: a morphological close
// (dilate then erode) followed by one extra dilation.
func closeStrokes(bin *image.Gray, radius int) *image.Gray {
	return dilate(erode(dilate(bin, radius), radius), 1)
}

// unsharp adds amount times the difference between src and its gaussian
// blur back onto src.
func unsharp(src *image.Gray, sigma, amount float64) *image.Gray {
	blurred := imaging.Blur(src, sigma)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := float64(src.Pix[y*src.Stride+x])
			b := float64(blurred.Pix[y*blurred.Stride+x*4])
			v := s + amount*(s-b)
			out.Pix[y*out.Stride+x] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
	return out
}
