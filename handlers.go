package main

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"labelocr/pkg/rename"

	"github.com/gin-gonic/gin"
)

// server holds the web UI state. Jobs are scoped to the session that created them.
type server struct {
	det          rename.Detector
	recorder     rename.Recorder
	jobs         *jobStore
	passwordHash []byte
	jwtSecret    []byte
}

func newServer(cfg Config, det rename.Detector, rec rename.Recorder) *server {
	s := &server{
		det:       det,
		recorder:  rec,
		jobs:      newJobStore(cfg.UploadBase),
		jwtSecret: []byte(cfg.JWTSecret),
	}
	if cfg.WebPasswordHash != "" {
		s.passwordHash = []byte(cfg.WebPasswordHash)
	}
	return s
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.GET("/", indexHandler)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/api/login", s.loginHandler)
	api := r.Group("/api/jobs")
	api.Use(s.jwtAuthMiddleware())
	api.POST("", s.createJobHandler)
	api.GET("/:id", s.getJobHandler)
	api.GET("/:id/download", s.downloadJobHandler)
	api.DELETE("/:id", s.deleteJobHandler)
}

func isAcceptedImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// createJobHandler saves the uploaded photos and starts processing them in the background.
func (s *server) createJobHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return
	}
	files := form.File["photos"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files selected"})
		return
	}
	job, err := s.jobs.create(sessionFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}
	var saved []string
	seen := map[string]bool{}
	for _, fh := range files {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || name == "." || !isAcceptedImage(name) || seen[name] {
			continue
		}
		seen[name] = true
		dst := filepath.Join(job.inputDir(), name)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			log.Printf("WARN job %s: saving %s: %v", job.ID, name, err)
			continue
		}
		saved = append(saved, dst)
	}
	if len(saved) == 0 {
		_ = s.jobs.remove(job)
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid JPG or PNG files found"})
		return
	}
	log.Printf("JOB %s started with %d photos", job.ID, len(saved))
	go runJob(job, s.det, s.recorder, saved)
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": jobRunning})
}

func (s *server) lookupJob(c *gin.Context) (*Job, bool) {
	job, ok := s.jobs.get(c.Param("id"), sessionFromContext(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	}
	return job, ok
}

func (s *server) getJobHandler(c *gin.Context) {
	job, ok := s.lookupJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.view())
}

func (s *server) downloadJobHandler(c *gin.Context) {
	job, ok := s.lookupJob(c)
	if !ok {
		return
	}
	job.mu.Lock()
	zp := job.zipPath
	job.mu.Unlock()
	if zp == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No results available"})
		return
	}
	c.FileAttachment(zp, zipName)
}

func (s *server) deleteJobHandler(c *gin.Context) {
	job, ok := s.lookupJob(c)
	if !ok {
		return
	}
	if job.view().Status == jobRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "job is still running"})
		return
	}
	if err := s.jobs.remove(job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("removing job files: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func indexHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Label OCR</title></head>
<body>
<h1>Artifact photo renamer</h1>
<p id="login" hidden><input id="pw" type="password" placeholder="password"> <button onclick="login()">Login</button></p>
<form id="upload">
  <input type="file" name="photos" accept=".jpg,.jpeg,.png" multiple>
  <button type="submit">Process</button>
</form>
<pre id="status"></pre>
<p><a id="download" hidden>Download renamed photos</a></p>
<script>
let token = "";
const hdr = () => token ? {"Authorization": "Bearer " + token} : {};
async function login() {
  const r = await fetch("/api/login", {method: "POST", headers: {"Content-Type": "application/json"},
    body: JSON.stringify({password: document.getElementById("pw").value})});
  const b = await r.json();
  if (b.token) { token = b.token; document.getElementById("login").hidden = true; }
}
document.getElementById("upload").onsubmit = async (e) => {
  e.preventDefault();
  const r = await fetch("/api/jobs", {method: "POST", headers: hdr(), body: new FormData(e.target)});
  const b = await r.json();
  if (r.status === 401) { document.getElementById("login").hidden = false; return; }
  if (!b.job_id) { document.getElementById("status").textContent = b.error; return; }
  poll(b.job_id);
};
async function poll(id) {
  const r = await fetch("/api/jobs/" + id, {headers: hdr()});
  const b = await r.json();
  document.getElementById("status").textContent = b.progress + "% " + b.message;
  if (b.status === "running") { setTimeout(() => poll(id), 1000); return; }
  if (b.results && b.results.zip_available) {
    const res = await fetch("/api/jobs/" + id + "/download", {headers: hdr()});
    const a = document.getElementById("download");
    a.href = URL.createObjectURL(await res.blob());
    a.download = "renamed_photos.zip";
    a.hidden = false;
  }
}
</script>
</body>
</html>
`
