package main

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"labelocr/pkg/rename"

	"github.com/google/uuid"
)

// Job states.
const (
	jobRunning  = "running"
	jobComplete = "complete"
	jobError    = "error"
)

const zipName = "renamed_photos.zip"

// JobResults is the summary shown once a job finishes.
type JobResults struct {
	Total        int              `json:"total"`
	Success      int              `json:"success"`
	Failed       int              `json:"failed"`
	ZipAvailable bool             `json:"zip_available"`
	Details      []rename.Outcome `json:"details"`
}

// Job is one upload batch processed by the web server.
type Job struct {
	mu       sync.Mutex
	ID       string
	Owner    string
	Created  time.Time
	Status   string
	Progress int
	Message  string
	Results  *JobResults
	dir      string
	zipPath  string
}

// JobView is the JSON snapshot of a job.
type JobView struct {
	ID       string      `json:"job_id"`
	Status   string      `json:"status"`
	Progress int         `json:"progress"`
	Message  string      `json:"message"`
	Results  *JobResults `json:"results"`
}

func (j *Job) view() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobView{ID: j.ID, Status: j.Status, Progress: j.Progress, Message: j.Message, Results: j.Results}
}

func (j *Job) set(progress int, message string) {
	j.mu.Lock()
	j.Progress = progress
	j.Message = message
	j.mu.Unlock()
}

func (j *Job) inputDir() string  { return filepath.Join(j.dir, "in") }
func (j *Job) outputDir() string { return filepath.Join(j.dir, "out") }

// jobStore keeps jobs in memory, keyed by id.
type jobStore struct {
	mu   sync.RWMutex
	base string
	jobs map[string]*Job
}

func newJobStore(base string) *jobStore {
	return &jobStore{base: base, jobs: map[string]*Job{}}
}

// create allocates a job and its working directories.
func (s *jobStore) create(owner string) (*Job, error) {
	id := uuid.NewString()
	j := &Job{ID: id, Owner: owner, Created: time.Now(), Status: jobRunning, Message: "Uploading photos...", dir: filepath.Join(s.base, id)}
	for _, d := range []string{j.inputDir(), j.outputDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()
	return j, nil
}

// get returns the job when it exists and belongs to owner.
func (s *jobStore) get(id, owner string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok || j.Owner != owner {
		return nil, false
	}
	return j, true
}

// remove deletes the job and its files.
func (s *jobStore) remove(j *Job) error {
	s.mu.Lock()
	delete(s.jobs, j.ID)
	s.mu.Unlock()
	return os.RemoveAll(j.dir)
}

// runJob renames the uploaded files into the job's output dir and packs them into a zip.
func runJob(j *Job, det rename.Detector, rec rename.Recorder, files []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR job %s panicked: %v", j.ID, r)
			j.mu.Lock()
			j.Status = jobError
			j.Message = fmt.Sprint(r)
			j.Results = nil
			j.mu.Unlock()
		}
	}()
	j.set(10, fmt.Sprintf("Processing %d photos...", len(files)))
	r := rename.New(det, rename.Options{OutputDir: j.outputDir()})
	res := &JobResults{Total: len(files)}
	for i, f := range files {
		j.set(10+i*80/len(files), fmt.Sprintf("Processing %d/%d: %s", i+1, len(files), filepath.Base(f)))
		out := r.RenameFile(f)
		if out.Success {
			res.Success++
		} else {
			res.Failed++
		}
		res.Details = append(res.Details, out)
	}
	if rec != nil {
		if err := rec.Record(j.ID, res.Details); err != nil {
			log.Printf("WARN recording job %s: %v", j.ID, err)
		}
	}

	status, msg := jobComplete, fmt.Sprintf("Completed! Processed %d of %d photos", res.Success, res.Total)
	if res.Success > 0 {
		j.set(90, "Creating download package...")
		zp := filepath.Join(j.dir, zipName)
		if err := zipDir(j.outputDir(), zp); err != nil {
			log.Printf("ERROR job %s zip: %v", j.ID, err)
			status, msg = jobError, fmt.Sprintf("creating zip: %v", err)
		} else {
			res.ZipAvailable = true
			j.mu.Lock()
			j.zipPath = zp
			j.mu.Unlock()
		}
	}
	j.mu.Lock()
	j.Status = status
	j.Progress = 100
	j.Message = msg
	j.Results = res
	j.mu.Unlock()
	log.Printf("JOB %s done: %d ok, %d failed", j.ID, res.Success, res.Failed)
}

// zipDir writes every regular file directly inside dir into a new zip at dst.
func zipDir(dir, dst string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := addToZip(zw, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func addToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
