package ocr

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestParsePreprocess(t *testing.T) {
	for in, want := range map[string]Preprocess{"": PreprocessLight, "light": PreprocessLight, "HEAVY": PreprocessHeavy} {
		got, err := ParsePreprocess(in)
		if err != nil || got != want {
			t.Fatalf("ParsePreprocess(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePreprocess("medium"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestPreprocessKeepsDimensions(t *testing.T) {
	img := imaging.New(120, 80, color.NRGBA{200, 180, 160, 255})
	for _, mode := range []Preprocess{PreprocessLight, PreprocessHeavy} {
		out := preprocessImage(img, mode)
		if out.Bounds().Dx() != 120 || out.Bounds().Dy() != 80 {
			t.Fatalf("%s changed size to %v", mode, out.Bounds())
		}
	}
}

func TestHeavyPreprocessIsBinary(t *testing.T) {
	img := imaging.New(60, 60, color.NRGBA{230, 230, 230, 255})
	// dark stroke in the middle
	for y := 25; y < 35; y++ {
		for x := 10; x < 50; x++ {
			img.Set(x, y, color.NRGBA{20, 20, 20, 255})
		}
	}
	out := preprocessImage(img, PreprocessHeavy)
	sawBlack := false
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(out.At(x, y)).(color.Gray).Y
			if g != 0 && g != 255 {
				t.Fatalf("pixel (%d,%d) not binary: %d", x, y, g)
			}
			if g == 0 {
				sawBlack = true
			}
		}
	}
	if !sawBlack {
		t.Fatalf("expected the stroke edge to survive thresholding")
	}
}

func TestAdaptiveThresholdUniformIsWhite(t *testing.T) {
	img := imaging.New(20, 20, color.NRGBA{90, 90, 90, 255})
	out := adaptiveThreshold(img, 5, 2)
	if out.At(10, 10) != (color.NRGBA{255, 255, 255, 255}) {
		t.Fatalf("uniform image should threshold to white, got %v", out.At(10, 10))
	}
}

func TestPreprocessFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "label.png")
	if err := imaging.Save(imaging.New(64, 48, color.NRGBA{30, 60, 90, 255}), p); err != nil {
		t.Fatal(err)
	}
	out, err := PreprocessFile(p, PreprocessHeavy)
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
		t.Fatalf("size changed to %v", out.Bounds())
	}
	if _, err := PreprocessFile(filepath.Join(t.TempDir(), "missing.png"), PreprocessLight); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLocalContrastStretchesEachTile(t *testing.T) {
	// left tile spans 100..120, right tile spans 200..210
	img := imaging.New(8, 4, color.NRGBA{100, 100, 100, 255})
	for y := 0; y < 4; y++ {
		img.SetNRGBA(1, y, color.NRGBA{120, 120, 120, 255})
		for x := 4; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{200, 200, 200, 255})
		}
		img.SetNRGBA(5, y, color.NRGBA{210, 210, 210, 255})
	}
	out := localContrast(img, 4)
	for _, tc := range []struct {
		x    int
		want uint8
	}{{0, 0}, {1, 255}, {4, 0}, {5, 255}} {
		if got := out.NRGBAAt(tc.x, 0).R; got != tc.want {
			t.Fatalf("pixel %d = %d, want %d", tc.x, got, tc.want)
		}
	}

	flat := imaging.New(8, 8, color.NRGBA{90, 90, 90, 255})
	if got := localContrast(flat, 4).NRGBAAt(3, 3).R; got != 90 {
		t.Fatalf("flat tile changed to %d", got)
	}
}
