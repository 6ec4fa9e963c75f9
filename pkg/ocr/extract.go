package ocr

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Extractor turns an image into word-level tokens.
type Extractor interface {
	Extract(path string) ([]Token, error)
}

// TesseractExtractor runs Tesseract through gosseract in sparse-text mode so that
// isolated label digits are reported as separate words with their boxes.
type TesseractExtractor struct {
	Language       string
	TessdataPrefix string
	Preprocess     Preprocess
}

// NewTesseractExtractor builds an extractor from detector config.
func NewTesseractExtractor(cfg Config) *TesseractExtractor {
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	return &TesseractExtractor{Language: lang, TessdataPrefix: cfg.TessdataPrefix, Preprocess: cfg.Preprocess}
}

// Extract returns every non-blank word Tesseract finds, in engine order.
func (e *TesseractExtractor) Extract(path string) ([]Token, error) {
	prepared, err := PreprocessFile(path, e.Preprocess)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, prepared, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if e.TessdataPrefix != "" {
		_ = client.SetTessdataPrefix(e.TessdataPrefix)
	}
	if err := client.SetLanguage(e.Language); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	_ = client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT)
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr error: %w", err)
	}
	tokens := make([]Token, 0, len(boxes))
	for _, bb := range boxes {
		text := strings.TrimSpace(bb.Word)
		if text == "" {
			continue
		}
		conf := -1
		if bb.Confidence >= 0 {
			conf = int(math.Round(bb.Confidence))
		}
		tokens = append(tokens, Token{
			Text:       text,
			Confidence: conf,
			X:          bb.Box.Min.X,
			Y:          bb.Box.Min.Y,
			Width:      bb.Box.Dx(),
			Height:     bb.Box.Dy(),
		})
	}
	logV("OCR TOKENS %s count=%d mode=%s", path, len(tokens), e.Preprocess)
	if len(tokens) == 0 {
		log.Printf("OCR empty %s", path)
	}
	return tokens, nil
}
