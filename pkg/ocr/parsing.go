package ocr

import (
	"log"
	"regexp"
	"strings"
)

// Artifact numbers are 5 to 7 digits.
const (
	minArtifactDigits = 5
	maxArtifactDigits = 7
)

var (
	rowLineRE    = regexp.MustCompile(`(?m)` + rowSentinel + `(\d+):[ \t]*(.+)$`)
	regionLineRE = regexp.MustCompile(`(?m)ARTIFACT_REGION:[ \t]*(.+)$`)
	digitRunRE   = regexp.MustCompile(`\d+`)
	siteShapeRE  = regexp.MustCompile(`^([A-Za-z]+)[-\s]?(\d+)$`)

	// one optional separator between consecutive digits, longest run first
	spacedDigitsRE = []*regexp.Regexp{
		spacedDigits(7),
		spacedDigits(6),
		spacedDigits(5),
	}
)

func spacedDigits(n int) *regexp.Regexp {
	const sep = `[\s.\-_\\/()]?`
	return regexp.MustCompile(`\d` + strings.Repeat(sep+`\d`, n-1))
}

func artifactLength(digits string) bool {
	return len(digits) >= minArtifactDigits && len(digits) <= maxArtifactDigits
}

// ParseSiteNumber finds the site code and normalizes it to LETTERS-DIGITS.
// When the full pattern misses but the site marker is present as a word, it falls back
// to reconstructing the configured known site from scattered digits.
func (d *Detector) ParseSiteNumber(text string) string {
	if m := d.site.FindString(text); m != "" {
		site := normalizeSite(m)
		logV("SITE found %s", site)
		return site
	}
	if d.known == "" || d.markerWord == nil || !d.markerWord.MatchString(text) {
		return ""
	}
	all := strings.Join(digitRunRE.FindAllString(text, -1), "")
	if d.knownDigits != "" && strings.Contains(all, d.knownDigits) {
		logV("SITE reconstructed %s from digits %s", d.known, snippet(all, 40))
		return d.known
	}
	return ""
}

func normalizeSite(m string) string {
	m = strings.TrimSpace(m)
	if p := siteShapeRE.FindStringSubmatch(m); p != nil {
		return strings.ToUpper(p[1]) + "-" + p[2]
	}
	return strings.ToUpper(m)
}

// ParseArtifactNumber extracts one or more artifact numbers. Several rows are joined
// with underscores in top-to-bottom order. Returns "" when nothing qualifies.
func (d *Detector) ParseArtifactNumber(text string) string {
	stripped := d.site.ReplaceAllString(text, "")
	for _, strategy := range []func(string) string{
		fromRows,
		fromRegion,
		fromSpacedDigits,
		fromCombinedRuns,
	} {
		if n := strategy(stripped); n != "" {
			return n
		}
	}
	return ""
}

// fromRows reads the ARTIFACT_ROW_<n> sentinel lines.
func fromRows(text string) string {
	var found []string
	for _, m := range rowLineRE.FindAllStringSubmatch(text, -1) {
		idx, digits := m[1], onlyDigits(m[2])
		switch {
		case artifactLength(digits):
			found = append(found, digits)
		case len(digits) > maxArtifactDigits:
			// leading digits are usually ruler marks
			cand := lastN(digits, minArtifactDigits)
			log.Printf("ROW %s truncated %s -> %s (review)", idx, digits, cand)
			found = append(found, cand)
		case digits != "":
			logV("ROW %s skipped, only %d digits: %s", idx, len(digits), digits)
		}
	}
	return strings.Join(found, "_")
}

// fromRegion reads the single ARTIFACT_REGION sentinel written by older extractions.
func fromRegion(text string) string {
	m := regionLineRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	digits := onlyDigits(m[1])
	switch {
	case artifactLength(digits):
		return digits
	case len(digits) > maxArtifactDigits:
		cand := lastN(digits, maxArtifactDigits)
		log.Printf("REGION truncated %s -> %s (review)", digits, cand)
		return cand
	}
	return ""
}

func fromSpacedDigits(text string) string {
	for _, re := range spacedDigitsRE {
		if m := re.FindString(text); m != "" {
			if digits := onlyDigits(m); artifactLength(digits) {
				return digits
			}
		}
	}
	return ""
}

func fromCombinedRuns(text string) string {
	all := strings.Join(digitRunRE.FindAllString(text, -1), "")
	if len(all) < minArtifactDigits || len(all) > 10 {
		return ""
	}
	if cand := lastN(all, maxArtifactDigits); artifactLength(cand) {
		return cand
	}
	return ""
}
