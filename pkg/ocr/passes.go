package ocr

import (
	"log"
	"path/filepath"
	"strings"
)

// SetRetryExtractor installs a second OCR pass used when the first one does not yield
// both numbers. nil disables retrying.
func (d *Detector) SetRetryExtractor(e Extractor) { d.retry = e }

// completeness counts the fields a result found.
func completeness(r DetectionResult) int {
	n := 0
	if r.SiteNumber != "" {
		n++
	}
	if r.ArtifactNumber != "" {
		n++
	}
	return n
}

// detectPasses runs the primary pass and, if needed, the retry pass. The more complete
// result wins; on a tie the first pass is kept.
func (d *Detector) detectPasses(path string) DetectionResult {
	name := filepath.Base(path)
	res := d.parse(d.extract(d.extractor, path).Text)
	if !res.IsValid() && d.retry != nil {
		logV("RETRY %s with second pass", name)
		if second := d.parse(d.extract(d.retry, path).Text); completeness(second) > completeness(res) {
			res = second
		}
	}
	if strings.TrimSpace(res.RawText) == "" {
		log.Printf("WARN no text detected in %s", name)
	}
	warnIncomplete(name, res)
	return res
}

func warnIncomplete(name string, res DetectionResult) {
	if !res.IsValid() {
		log.Printf("WARN incomplete detection for %s: site=%q artifact=%q", name, res.SiteNumber, res.ArtifactNumber)
	}
}
