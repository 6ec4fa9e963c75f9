package ocr

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubExtractor returns canned tokens, or err when set.
type stubExtractor struct {
	tokens []Token
	err    error
}

func (s stubExtractor) Extract(string) ([]Token, error) { return s.tokens, s.err }

func touch(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func labelTokens() []Token {
	return []Token{
		{Text: "NUNALLEQ", Confidence: 90, X: 100, Y: 40},
		{Text: "GDN-248", Confidence: 93, X: 120, Y: 100},
		// second row first in engine order, right to left
		{Text: "7", Confidence: 35, X: 260, Y: 402},
		{Text: "6", Confidence: 88, X: 140, Y: 400},
		{Text: "7", Confidence: 12, X: 100, Y: 405},
		{Text: "6", Confidence: 91, X: 180, Y: 398},
		{Text: "5", Confidence: 77, X: 220, Y: 401},
		// first row
		{Text: "7\\.6)6", Confidence: 20, X: 100, Y: 200},
		{Text: "5 6", Confidence: 55, X: 200, Y: 210},
		// ruler noise too far below
		{Text: "10 11 12", Confidence: 95, X: 0, Y: 1500},
		// words are not digit candidates
		{Text: "Alaska", Confidence: 95, X: 10, Y: 250},
	}
}

func TestGroupRowsOrdersRowsAndTokens(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	rows := d.GroupRows(labelTokens())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d: %+v", len(rows), rows)
	}
	if rows[0].Index != 1 || rows[0].Text != "7\\.6)6 5 6" {
		t.Fatalf("row 1 = %d %q", rows[0].Index, rows[0].Text)
	}
	if rows[1].Text != "7 6 6 5 7" {
		t.Fatalf("row 2 = %q", rows[1].Text)
	}
}

func TestGroupRowsWithoutSiteToken(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	rows := d.GroupRows([]Token{{Text: "76656", Confidence: 90, Y: 300}})
	if rows != nil {
		t.Fatalf("expected no rows got %+v", rows)
	}
}

func TestGroupRowsSplitsOnGap(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	tokens := []Token{
		{Text: "GDN", Confidence: 90, Y: 0},
		{Text: "1", Confidence: 90, X: 10, Y: 60},
		{Text: "2", Confidence: 90, X: 20, Y: 109},
		{Text: "3", Confidence: 90, X: 30, Y: 110},
	}
	rows := d.GroupRows(tokens)
	if len(rows) != 2 || rows[0].Text != "1 2" || rows[1].Text != "3" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestLooksLikeDigits(t *testing.T) {
	cases := []struct {
		tok  Token
		want bool
	}{
		{Token{Text: "A12345B", Confidence: 80}, true},
		{Token{Text: "A12345B", Confidence: 50}, false},
		{Token{Text: "a1b", Confidence: 45}, true},
		{Token{Text: `7\.2\3)\8`, Confidence: 3}, true},
		{Token{Text: "x1", Confidence: -1}, true},
		{Token{Text: "label", Confidence: 99}, false},
		{Token{Text: "abcdef1", Confidence: 10}, false},
	}
	for _, tc := range cases {
		if got := looksLikeDigits(tc.tok); got != tc.want {
			t.Fatalf("looksLikeDigits(%+v) = %v", tc.tok, got)
		}
	}
}

func TestDetectFromTokens(t *testing.T) {
	d, err := NewDetector(DefaultConfig(), stubExtractor{tokens: labelTokens()})
	if err != nil {
		t.Fatal(err)
	}
	res := d.Detect(touch(t, "DSC_0001.jpg"))
	if res.SiteNumber != "GDN-248" || res.ArtifactNumber != "76656_76657" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.IsValid() || res.Confidence != 1.0 {
		t.Fatalf("expected valid result with confidence 1, got %+v", res)
	}
	if !strings.Contains(res.RawText, "ARTIFACT_ROW_2: 7 6 6 5 7") {
		t.Fatalf("raw text missing row sentinel: %q", res.RawText)
	}
}

func TestDetectSingleLineLabel(t *testing.T) {
	tokens := []Token{{Text: "GDN-248", Confidence: 90}, {Text: "76656", Confidence: 90, X: 200}}
	d, _ := NewDetector(DefaultConfig(), stubExtractor{tokens: tokens})
	res := d.Detect(touch(t, "a.jpg"))
	name, ok := res.Filename("jpg")
	if !ok || name != "gdn248_76656.jpg" {
		t.Fatalf("expected gdn248_76656.jpg got %q (%+v)", name, res)
	}
}

func TestDetectMissingFile(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	res := d.Detect(filepath.Join(t.TempDir(), "nonexistent.jpg"))
	if res.IsValid() {
		t.Fatalf("expected invalid result")
	}
	if !strings.Contains(res.RawText, "Error") {
		t.Fatalf("raw text should explain the error, got %q", res.RawText)
	}
}

func TestDetectExtractionFailureIsSoft(t *testing.T) {
	d, _ := NewDetector(DefaultConfig(), stubExtractor{err: errors.New("tesseract missing")})
	res := d.Detect(touch(t, "b.jpg"))
	if res.IsValid() || res.RawText != "" || res.Confidence != 0.5 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDetectPartialResult(t *testing.T) {
	d, _ := NewDetector(DefaultConfig(), stubExtractor{tokens: []Token{{Text: "GDN-248", Confidence: 90}}})
	res := d.Detect(touch(t, "c.jpg"))
	if res.SiteNumber != "GDN-248" || res.ArtifactNumber != "" || res.IsValid() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDetectBatchOneResultPerPath(t *testing.T) {
	tokens := []Token{{Text: "GDN-248", Confidence: 90}, {Text: "76656", Confidence: 90, X: 200}}
	d, _ := NewDetector(DefaultConfig(), stubExtractor{tokens: tokens})
	dir := t.TempDir()
	var paths []string
	for _, n := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		p := filepath.Join(dir, n)
		_ = os.WriteFile(p, []byte("x"), 0o644)
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(dir, "missing.jpg"))
	out := d.DetectBatch(paths, 3)
	if len(out) != len(paths) {
		t.Fatalf("expected %d results got %d", len(paths), len(out))
	}
	for _, p := range paths[:4] {
		if !out[p].IsValid() {
			t.Fatalf("expected valid result for %s: %+v", p, out[p])
		}
	}
	if out[paths[4]].IsValid() {
		t.Fatalf("missing file should be invalid")
	}
}

func TestDetectRetryPass(t *testing.T) {
	partial := stubExtractor{tokens: []Token{{Text: "GDN-248", Confidence: 90}}}
	full := stubExtractor{tokens: []Token{{Text: "GDN-248", Confidence: 90}, {Text: "76656", Confidence: 90, Y: 200}}}
	empty := stubExtractor{}

	d, _ := NewDetector(DefaultConfig(), partial)
	d.SetRetryExtractor(full)
	if res := d.Detect(touch(t, "a.jpg")); !res.IsValid() || res.ArtifactNumber != "76656" {
		t.Fatalf("retry pass should complete the result: %+v", res)
	}

	d.SetRetryExtractor(empty)
	if res := d.Detect(touch(t, "b.jpg")); res.SiteNumber != "GDN-248" {
		t.Fatalf("worse retry must not replace the first pass: %+v", res)
	}

	// a complete first pass never reaches the retry extractor
	d, _ = NewDetector(DefaultConfig(), full)
	d.SetRetryExtractor(stubExtractor{err: errors.New("must not run")})
	if res := d.Detect(touch(t, "c.jpg")); !res.IsValid() {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestDetectUnreadablePathKeepsCause(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	// a regular file used as a directory fails with ENOTDIR, not "does not exist"
	res := d.Detect(filepath.Join(touch(t, "plain.jpg"), "inner.jpg"))
	if res.IsValid() {
		t.Fatalf("expected invalid result")
	}
	if strings.Contains(res.RawText, "file not found") || !strings.Contains(res.RawText, "cannot read file") {
		t.Fatalf("raw text should carry the stat error, got %q", res.RawText)
	}
}
