// Package rename renames artifact photos after the label numbers read by pkg/ocr.
package rename

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"labelocr/pkg/ocr"
)

// Detector is the part of ocr.Detector the renamer needs.
type Detector interface {
	Detect(path string) ocr.DetectionResult
}

// Recorder persists outcomes, e.g. into the audit table.
type Recorder interface {
	Record(runID string, outcomes []Outcome) error
}

// Options control how files are written.
type Options struct {
	DryRun    bool
	Backup    bool   // copy the original into <dir>/backup before renaming
	Overwrite bool   // replace an existing file with the same target name
	OutputDir string // copy renamed files here instead of renaming in place
	Recorder  Recorder
}

// Outcome describes what happened to one photo.
type Outcome struct {
	Source         string  `json:"source"`
	Original       string  `json:"original"`
	NewName        string  `json:"new_name,omitempty"`
	Target         string  `json:"target,omitempty"`
	SiteNumber     string  `json:"site_number,omitempty"`
	ArtifactNumber string  `json:"artifact_number,omitempty"`
	Confidence     float64 `json:"confidence"`
	Success        bool    `json:"success"`
	Message        string  `json:"message"`
	Err            error   `json:"-"`
}

// Renamer applies detection results to files.
type Renamer struct {
	det  Detector
	opts Options
}

// New returns a Renamer using det for label reading.
func New(det Detector, opts Options) *Renamer {
	return &Renamer{det: det, opts: opts}
}

// Options returns the renamer settings.
func (r *Renamer) Options() Options { return r.opts }

// RenameFile detects the label in path and renames (or copies) it.
func (r *Renamer) RenameFile(path string) Outcome {
	if _, err := os.Stat(path); err != nil {
		out := Outcome{Source: path, Original: filepath.Base(path), Err: err}
		if errors.Is(err, fs.ErrNotExist) {
			out.Message = fmt.Sprintf("File not found: %s", path)
			out.Err = fmt.Errorf("%w: %s", ErrFileNotFound, path)
		} else {
			out.Message = fmt.Sprintf("Cannot read %s: %v", path, err)
		}
		return out
	}
	return r.apply(path, r.det.Detect(path))
}

// apply performs the file operation for an existing detection.
func (r *Renamer) apply(path string, res ocr.DetectionResult) Outcome {
	out := Outcome{
		Source:         path,
		Original:       filepath.Base(path),
		SiteNumber:     res.SiteNumber,
		ArtifactNumber: res.ArtifactNumber,
		Confidence:     res.Confidence,
	}
	newName, ok := res.Filename(strings.TrimPrefix(filepath.Ext(path), "."))
	if !ok {
		out.Message = fmt.Sprintf("Could not detect both site and artifact numbers. Site: %s, Artifact: %s",
			orNone(res.SiteNumber), orNone(res.ArtifactNumber))
		out.Err = ErrIncomplete
		return out
	}
	out.NewName = newName

	dir := filepath.Dir(path)
	if r.opts.OutputDir != "" {
		dir = r.opts.OutputDir
		if !r.opts.DryRun {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				out.Message = fmt.Sprintf("Error creating output directory %s: %v", dir, err)
				out.Err = err
				return out
			}
		}
	}
	target := filepath.Join(dir, newName)
	out.Target = target
	same := samePath(target, path)

	if exists(target) && !r.opts.Overwrite && !same {
		out.Message = fmt.Sprintf("File already exists: %s (use -overwrite to replace)", newName)
		out.Err = fmt.Errorf("%w: %s", ErrTargetExists, target)
		return out
	}
	if r.opts.DryRun {
		out.Success = true
		out.Message = fmt.Sprintf("[DRY RUN] Would rename: %s -> %s", out.Original, newName)
		return out
	}
	if r.opts.Backup && !same {
		backupDir := filepath.Join(filepath.Dir(path), "backup")
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			log.Printf("WARN could not create backup dir %s: %v", backupDir, err)
		} else if err := copyFile(path, filepath.Join(backupDir, out.Original)); err != nil {
			log.Printf("WARN could not create backup of %s: %v", out.Original, err)
		} else {
			logV("BACKUP %s", filepath.Join(backupDir, out.Original))
		}
	}

	var err error
	if r.opts.OutputDir != "" {
		err = copyFile(path, target)
	} else if !same {
		err = moveFile(path, target)
	}
	if err != nil {
		out.Message = fmt.Sprintf("Error renaming %s: %v", out.Original, err)
		out.Err = err
		log.Printf("ERROR %s", out.Message)
		return out
	}
	out.Success = true
	out.Message = fmt.Sprintf("Renamed: %s -> %s", out.Original, newName)
	log.Printf("RENAMED %s -> %s", path, target)
	return out
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// Verbose enables per-file debug logging.
var Verbose bool

func logV(format string, args ...any) {
	if Verbose {
		log.Printf(format, args...)
	}
}
