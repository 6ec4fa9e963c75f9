package ocr

import (
	"fmt"
	"sort"
	"strings"
)

// Pixel distances tuned to typical label photo resolution.
const (
	rowWindowStart = 50   // first y offset below the site token considered
	rowWindowEnd   = 1200 // last y offset below the site token considered
	rowGap         = 50   // y distance from a row's first token that starts a new row
)

const rowSentinel = "ARTIFACT_ROW_"

// digitPunct are the characters OCR tends to emit when reading boxed digits.
const digitPunct = `\/(). -_`

// findSiteY returns the y of the last token that carries the site marker or starts
// with a site pattern match.
func (d *Detector) findSiteY(tokens []Token) (int, bool) {
	y, found := 0, false
	for _, t := range tokens {
		upper := strings.ToUpper(t.Text)
		if d.marker != "" && strings.Contains(upper, d.marker) {
			y, found = t.Y, true
			continue
		}
		if loc := d.site.FindStringIndex(t.Text); loc != nil && loc[0] == 0 {
			y, found = t.Y, true
		}
	}
	return y, found
}

// looksLikeDigits over-accepts on purpose; the parser's length checks drop the noise.
func looksLikeDigits(t Token) bool {
	text := t.Text
	n := len([]rune(text))
	digit := hasDigit(text)
	switch {
	case t.Confidence > 70 && digit:
		return true
	case t.Confidence > 40 && n <= 3 && digit:
		return true
	case n <= 12 && strings.Trim(text, "0123456789"+digitPunct) == "":
		return true
	case n <= 5 && digit:
		return true
	}
	return false
}

// GroupRows selects digit-like tokens in the band below the site token and groups them
// into rows top to bottom. No site token means no rows.
func (d *Detector) GroupRows(tokens []Token) []Row {
	siteY, ok := d.findSiteY(tokens)
	if !ok {
		return nil
	}
	var picked []Token
	for _, t := range tokens {
		if t.Y < siteY+rowWindowStart || t.Y > siteY+rowWindowEnd {
			continue
		}
		if !looksLikeDigits(t) {
			continue
		}
		logV("ROW candidate %q x=%d y=%d conf=%d", t.Text, t.X, t.Y, t.Confidence)
		picked = append(picked, t)
	}
	if len(picked) == 0 {
		return nil
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Y < picked[j].Y })

	var groups [][]Token
	current := []Token{picked[0]}
	anchor := picked[0].Y
	for _, t := range picked[1:] {
		if t.Y-anchor < rowGap {
			current = append(current, t)
			continue
		}
		groups = append(groups, current)
		current = []Token{t}
		anchor = t.Y
	}
	groups = append(groups, current)

	rows := make([]Row, 0, len(groups))
	for i, g := range groups {
		sort.SliceStable(g, func(a, b int) bool { return g[a].X < g[b].X })
		parts := make([]string, len(g))
		for k, t := range g {
			parts[k] = t.Text
		}
		row := Row{Index: i + 1, Tokens: g, Text: strings.Join(parts, " ")}
		logV("ROW %d: %s", row.Index, row.Text)
		rows = append(rows, row)
	}
	return rows
}

// Extraction is the combined text handed to the parser plus the pieces it was built from.
type Extraction struct {
	Text   string
	Tokens []Token
	Rows   []Row
}

// BuildText joins token texts one per line and appends a sentinel line per row so the
// parser can find rows positionally.
func (d *Detector) BuildText(tokens []Token) Extraction {
	lines := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if s := strings.TrimSpace(t.Text); s != "" {
			lines = append(lines, s)
		}
	}
	rows := d.GroupRows(tokens)
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s%d: %s", rowSentinel, r.Index, r.Text))
	}
	return Extraction{Text: strings.Join(lines, "\n"), Tokens: tokens, Rows: rows}
}
