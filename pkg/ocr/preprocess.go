package ocr

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

// Preprocess selects how an image is prepared before OCR.
type Preprocess string

const (
	// PreprocessLight converts to grayscale only. Works best on clean label photos.
	PreprocessLight Preprocess = "light"
	// PreprocessHeavy denoises, stretches contrast tile by tile and binarizes. Fallback for low-contrast shots.
	PreprocessHeavy Preprocess = "heavy"
)

// ParsePreprocess maps a config string to a Preprocess mode. Empty means light.
func ParsePreprocess(s string) (Preprocess, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PreprocessLight):
		return PreprocessLight, nil
	case string(PreprocessHeavy):
		return PreprocessHeavy, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreprocess, s)
}

// PreprocessFile opens path and applies mode, returning the image handed to OCR.
func PreprocessFile(path string, mode Preprocess) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return preprocessImage(img, mode), nil
}

// preprocessImage applies the selected mode. Image dimensions are preserved so token
// coordinates stay in the photo's pixel space.
func preprocessImage(img image.Image, mode Preprocess) image.Image {
	gray := imaging.Grayscale(img)
	if mode != PreprocessHeavy {
		return gray
	}
	denoised := imaging.Blur(gray, 0.8)
	enhanced := localContrast(denoised, contrastTile)
	return adaptiveThreshold(enhanced, 11, 2)
}

// contrastTile is the side of the square tiles stretched independently by localContrast.
const contrastTile = 64

// localContrast stretches the gray range of each tile to 0..255 so faint ink in a shadowed
// corner gains as much contrast as ink in a well lit one. Flat tiles are left unchanged.
func localContrast(img *image.NRGBA, tile int) *image.NRGBA {
	b := img.Bounds()
	out := imaging.Clone(img)
	for ty := b.Min.Y; ty < b.Max.Y; ty += tile {
		for tx := b.Min.X; tx < b.Max.X; tx += tile {
			r := image.Rect(tx, ty, min(tx+tile, b.Max.X), min(ty+tile, b.Max.Y))
			lo, hi := uint8(255), uint8(0)
			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					v := img.NRGBAAt(x, y).R
					lo, hi = min(lo, v), max(hi, v)
				}
			}
			if hi <= lo {
				continue
			}
			span := int(hi) - int(lo)
			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					c := img.NRGBAAt(x, y)
					v := uint8((int(c.R) - int(lo)) * 255 / span)
					out.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBA{v, v, v, c.A})
				}
			}
		}
	}
	return out
}

// adaptiveThreshold performs a mean adaptive threshold using an integral image.
func adaptiveThreshold(img image.Image, window int, bias int) *image.NRGBA {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	if w == 0 || h == 0 {
		return out
	}
	half := window / 2
	lum := make([]int, w*h)
	ints := make([]int, w*h)
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			v := int((r + g + bb) / 3 >> 8)
			lum[y*w+x] = v
			rowSum += v
			if y == 0 {
				ints[y*w+x] = rowSum
			} else {
				ints[y*w+x] = ints[(y-1)*w+x] + rowSum
			}
		}
	}
	at := func(x, y int) int {
		if x < 0 || y < 0 {
			return 0
		}
		return ints[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(x-half, 0), max(y-half, 0)
			x1, y1 := min(x+half, w-1), min(y+half, h-1)
			sum := at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			if lum[y*w+x] < mean-bias {
				out.Set(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return out
}
