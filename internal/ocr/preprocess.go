package ocr

import (
	"image"
	"sort"

	"golang.org/x/image/draw"
)

// minOCRWidth is the width below which scans are upscaled before recognition.
const minOCRWidth = 1000

// Preprocess prepares a scan for recognition: grayscale, histogram equalization,
// 3x3 median denoise and Otsu binarization.
func Preprocess(img image.Image) *image.Gray {
	g := Grayscale(img)
	g = Equalize(g)
	g = Median3(g)
	return Binarize(g, OtsuThreshold(g))
}

// Grayscale converts img, upscaling narrow scans twice with Catmull-Rom.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > 0 && w < minOCRWidth {
		w, h = w*2, h*2
	}
	g := image.NewGray(image.Rect(0, 0, w, h))
	if w == b.Dx() {
		draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(g, g.Bounds(), img, b, draw.Src, nil)
	}
	return g
}

func Equalize(src *image.Gray) *image.Gray {
	var hist [256]int
	for _, p := range src.Pix {
		hist[p]++
	}
	total := len(src.Pix)
	if total == 0 {
		return src
	}

	var cdf [256]int
	acc, cdfMin := 0, 0
	for i, n := range hist {
		acc += n
		cdf[i] = acc
		if cdfMin == 0 && acc > 0 {
			cdfMin = acc
		}
	}
	if total == cdfMin {
		return src
	}

	var lut [256]uint8
	for i := range lut {
		v := float64(cdf[i]-cdfMin) / float64(total-cdfMin) * 255
		if v < 0 {
			v = 0
		}
		lut[i] = uint8(v + 0.5)
	}
	out := image.NewGray(src.Rect)
	for i, p := range src.Pix {
		out.Pix[i] = lut[p]
	}
	return out
}

// Median3 applies a 3x3 median filter; border pixels use the clamped neighbourhood.
func Median3(src *image.Gray) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	window := make([]uint8, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := clamp(x+dx, b.Min.X, b.Max.X-1), clamp(y+dy, b.Min.Y, b.Max.Y-1)
					window = append(window, src.GrayAt(px, py).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.Pix[out.PixOffset(x, y)] = window[len(window)/2]
		}
	}
	return out
}

// OtsuThreshold picks the threshold maximizing between-class variance.
func OtsuThreshold(src *image.Gray) uint8 {
	var hist [256]float64
	for _, p := range src.Pix {
		hist[p]++
	}
	total := float64(len(src.Pix))
	if total == 0 {
		return 128
	}

	sum := 0.0
	for i, n := range hist {
		sum += float64(i) * n
	}
	var sumB, wB, best float64
	threshold := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// Binarize maps pixels above t to white and the rest to black.
func Binarize(src *image.Gray, t uint8) *image.Gray {
	out := image.NewGray(src.Rect)
	for i, p := range src.Pix {
		if p > t {
			out.Pix[i] = 255
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
