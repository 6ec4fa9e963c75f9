package ocr

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"regexp/syntax"
	"runtime"
	"strings"
	"sync"
	"unicode"
)

// DefaultSitePattern matches a three letter site code followed by digits, hyphen optional.
const DefaultSitePattern = `GDN[-\s]?\d+`

// DefaultKnownSite is reconstructed when OCR splits the site token apart.
const DefaultKnownSite = "GDN-248"

// Config controls pattern matching and the OCR engine.
type Config struct {
	SitePattern string
	// SiteMarker is the literal text that identifies the site token. Derived from the
	// pattern's literal prefix when empty.
	SiteMarker string
	// KnownSite enables reconstruction of one fixed site code from split digits. Empty disables it.
	KnownSite      string
	Language       string
	TessdataPrefix string
	Preprocess     Preprocess
	// RetryHeavy re-reads photos with heavy preprocessing when the first pass is incomplete.
	RetryHeavy bool
}

// DefaultConfig returns the settings used for the GDN label cards.
func DefaultConfig() Config {
	return Config{
		SitePattern: DefaultSitePattern,
		KnownSite:   DefaultKnownSite,
		Language:    "eng",
		Preprocess:  PreprocessLight,
	}
}

// Detector reads site and artifact numbers from label photos. It is safe for concurrent
// use; the compiled pattern is the only state shared between calls.
type Detector struct {
	extractor   Extractor
	site        *regexp.Regexp
	marker      string
	markerWord  *regexp.Regexp
	known       string
	knownDigits string
	retry       Extractor
}

// NewDetector compiles cfg.SitePattern once. A nil extractor selects Tesseract.
func NewDetector(cfg Config, extractor Extractor) (*Detector, error) {
	if cfg.SitePattern == "" {
		cfg.SitePattern = DefaultSitePattern
	}
	site, err := regexp.Compile(`(?i)` + cfg.SitePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSitePattern, err)
	}
	marker := strings.ToUpper(strings.TrimSpace(cfg.SiteMarker))
	if marker == "" {
		marker = literalPrefix(cfg.SitePattern)
	}
	// a trailing "-" would stop \b from matching once OCR splits the token
	marker = strings.TrimFunc(marker, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	var retry Extractor
	if extractor == nil {
		extractor = NewTesseractExtractor(cfg)
		if cfg.RetryHeavy && cfg.Preprocess != PreprocessHeavy {
			heavy := cfg
			heavy.Preprocess = PreprocessHeavy
			retry = NewTesseractExtractor(heavy)
		}
	}
	d := &Detector{
		extractor:   extractor,
		site:        site,
		marker:      marker,
		known:       strings.ToUpper(strings.TrimSpace(cfg.KnownSite)),
		knownDigits: onlyDigits(cfg.KnownSite),
		retry:       retry,
	}
	if marker != "" {
		d.markerWord = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(marker) + `\b`)
	}
	return d, nil
}

// literalPrefix returns the upper-cased literal text every match of pattern starts with.
func literalPrefix(pattern string) string {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return ""
	}
	prog, err := syntax.Compile(re.Simplify())
	if err != nil {
		return ""
	}
	prefix, _ := prog.Prefix()
	return strings.ToUpper(prefix)
}

// SitePattern returns the compiled site expression.
func (d *Detector) SitePattern() string { return d.site.String() }

// ExtractText runs OCR and row grouping. Extraction failures are logged and yield empty text.
func (d *Detector) ExtractText(path string) Extraction {
	return d.extract(d.extractor, path)
}

func (d *Detector) extract(e Extractor, path string) Extraction {
	tokens, err := e.Extract(path)
	if err != nil {
		log.Printf("ERROR extracting text from %s: %v", path, err)
		return Extraction{}
	}
	ex := d.BuildText(tokens)
	logV("OCR TEXT %s: %q", filepath.Base(path), snippet(ex.Text, 200))
	return ex
}

// Detect reads both fields from one photo. It never fails: a missing file yields an
// invalid result whose RawText describes the problem.
func (d *Detector) Detect(path string) DetectionResult {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("ERROR image not found: %s", path)
			return DetectionResult{RawText: fmt.Sprintf("Error: file not found: %s", path)}
		}
		log.Printf("ERROR image not readable: %s: %v", path, err)
		return DetectionResult{RawText: fmt.Sprintf("Error: cannot read file: %s: %v", path, err)}
	}
	return d.detectPasses(path)
}

// parse reads both fields without logging.
func (d *Detector) parse(text string) DetectionResult {
	res := DetectionResult{
		SiteNumber:     d.ParseSiteNumber(text),
		ArtifactNumber: d.ParseArtifactNumber(text),
		RawText:        text,
		Confidence:     0.5,
	}
	if res.IsValid() {
		res.Confidence = 1.0
	}
	return res
}

// DetectText parses already extracted text. name is only used for logging.
func (d *Detector) DetectText(text, name string) DetectionResult {
	res := d.parse(text)
	warnIncomplete(name, res)
	return res
}

// DetectBatch runs Detect over paths on a pool of workers. Each path gets exactly one result.
func (d *Detector) DetectBatch(paths []string, workers int) map[string]DetectionResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make(map[string]DetectionResult, len(paths))
	var mu sync.Mutex
	pathCh := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range pathCh {
				r := d.Detect(p)
				mu.Lock()
				out[p] = r
				mu.Unlock()
			}
		}()
	}
	for _, p := range paths {
		pathCh <- p
	}
	close(pathCh)
	wg.Wait()
	return out
}
