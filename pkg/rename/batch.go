package rename

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"labelocr/pkg/ocr"
)

// DefaultPattern matches the camera's JPEG output.
const DefaultPattern = "*.jpg"

// BatchOptions select which files a batch processes.
type BatchOptions struct {
	Pattern   string // glob matched case-insensitively against base names
	Recursive bool
	WriteLog  bool // write CSV, JSON and XLSX logs next to the results
	Workers   int  // detection workers, NumCPU when <= 0
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	RunID     string    `json:"run_id"`
	Started   time.Time `json:"started"`
	SourceDir string    `json:"source_directory"`
	OutputDir string    `json:"output_directory,omitempty"`
	Total     int       `json:"total_files"`
	Success   int       `json:"successful"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"detections"`
	LogFiles  []string  `json:"log_files,omitempty"`
}

// Preview is the would-be result of renaming one file.
type Preview struct {
	Original string `json:"original"`
	NewName  string `json:"new_name"`
	Site     string `json:"site"`
	Artifact string `json:"artifact"`
	Ready    bool   `json:"ready"`
}

// FindImages lists files under dir whose base name matches pattern, sorted.
// backup directories and the skip directories are not descended into.
func FindImages(dir, pattern string, recursive bool, skip ...string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	pattern = strings.ToLower(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == dir {
				return nil
			}
			if !recursive || d.Name() == "backup" {
				return filepath.SkipDir
			}
			for _, s := range skip {
				if s != "" && samePath(p, s) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, strings.ToLower(d.Name())); ok {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// detectAll runs detection on a worker pool; results keep the order of paths.
func (r *Renamer) detectAll(paths []string, workers int) []ocr.DetectionResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]ocr.DetectionResult, len(paths))
	idxCh := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxCh {
				results[idx] = r.det.Detect(paths[idx])
			}
		}()
	}
	for i := range paths {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()
	return results
}

// RenameBatch renames every matching image in dir. Detection runs in parallel;
// file operations run one at a time in sorted order so name collisions are deterministic.
func (r *Renamer) RenameBatch(dir string, opts BatchOptions) (BatchReport, error) {
	report := BatchReport{RunID: uuid.NewString(), Started: time.Now(), SourceDir: dir, OutputDir: r.opts.OutputDir}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return report, fmt.Errorf("%w: %s", ErrDirNotFound, dir)
	}
	files, err := FindImages(dir, opts.Pattern, opts.Recursive, r.opts.OutputDir)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		log.Printf("WARN no files matching %q found in %s", opts.Pattern, dir)
		return report, nil
	}
	log.Printf("Processing %d files (run=%s)", len(files), report.RunID)

	results := r.detectAll(files, opts.Workers)
	for i, p := range files {
		out := r.apply(p, results[i])
		report.Outcomes = append(report.Outcomes, out)
		if out.Success {
			report.Success++
		} else {
			report.Failed++
			logV("FAIL %s: %s", out.Original, out.Message)
		}
	}
	report.Total = len(files)

	if opts.WriteLog {
		logDir := r.opts.OutputDir
		if logDir == "" {
			logDir = dir
		}
		paths, err := WriteLogs(logDir, report)
		if err != nil {
			log.Printf("WARN writing batch logs: %v", err)
		}
		report.LogFiles = paths
	}
	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.Record(report.RunID, report.Outcomes); err != nil {
			log.Printf("WARN recording batch %s: %v", report.RunID, err)
		}
	}
	return report, nil
}

// PreviewBatch reports the names files would get without touching them.
func (r *Renamer) PreviewBatch(dir, pattern string, recursive bool, workers int) ([]Preview, error) {
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirNotFound, dir)
	}
	files, err := FindImages(dir, pattern, recursive)
	if err != nil {
		return nil, err
	}
	results := r.detectAll(files, workers)
	previews := make([]Preview, 0, len(files))
	for i, p := range files {
		res := results[i]
		pv := Preview{Original: filepath.Base(p), NewName: "N/A", Site: res.SiteNumber, Artifact: res.ArtifactNumber}
		if name, ok := res.Filename(strings.TrimPrefix(filepath.Ext(p), ".")); ok {
			pv.NewName = name
			pv.Ready = true
		}
		previews = append(previews, pv)
	}
	return previews, nil
}
