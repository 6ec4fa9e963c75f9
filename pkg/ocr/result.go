package ocr

import (
	"strings"
	"unicode"
)

// DetectionResult is the outcome of reading one label photo. Empty strings mean the
// field was not found.
type DetectionResult struct {
	SiteNumber     string  `json:"site_number,omitempty"`
	ArtifactNumber string  `json:"artifact_number,omitempty"`
	RawText        string  `json:"raw_text"`
	Confidence     float64 `json:"confidence"`
}

// IsValid reports whether both fields were detected.
func (r DetectionResult) IsValid() bool {
	return r.SiteNumber != "" && r.ArtifactNumber != ""
}

// Filename derives the canonical name, e.g. GDN-248 + 76656 -> gdn248_76656.jpg.
// ext may be given with or without the leading dot. ok is false for invalid results.
func (r DetectionResult) Filename(ext string) (string, bool) {
	if !r.IsValid() {
		return "", false
	}
	site := strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return unicode.ToLower(c)
		}
		return -1
	}, r.SiteNumber)
	name := site + "_" + r.ArtifactNumber
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	return name, true
}
