package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"labelocr/pkg/ocr"
	"labelocr/pkg/rename"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// nameDetector answers by uploaded base name.
type nameDetector map[string]ocr.DetectionResult

func (n nameDetector) Detect(path string) ocr.DetectionResult {
	return n[filepath.Base(path)]
}

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T, cfg Config) (*gin.Engine, *server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.UploadBase = t.TempDir()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	det := nameDetector{
		"a.jpg": {SiteNumber: "GDN-248", ArtifactNumber: "76656", Confidence: 1},
		"b.JPG": {SiteNumber: "GDN-248", ArtifactNumber: "76657", Confidence: 1},
	}
	s := newServer(cfg, det, nil)
	r := gin.New()
	s.setupRoutes(r)
	return r, s
}

func uploadBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for _, n := range names {
		w, _ := mw.CreateFormFile("photos", n)
		_, _ = w.Write([]byte("photo " + n))
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func waitForJob(t *testing.T, r http.Handler, id, token string) JobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := performRequest(r, http.MethodGet, "/api/jobs/"+id, nil, token, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("status failed code=%d body=%s", resp.Code, resp.Body.String())
		}
		var v JobView
		_ = json.Unmarshal(resp.Body.Bytes(), &v)
		if v.Status != jobRunning {
			return v
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return JobView{}
}

func TestFullFlow(t *testing.T) {
	r, _ := setupTestServer(t, Config{})

	// 1. Upload: two labelled photos, one unreadable, one rejected by extension
	body, ct := uploadBody(t, "a.jpg", "b.JPG", "c.jpg", "notes.txt")
	resp := performRequest(r, http.MethodPost, "/api/jobs", body, "", ct)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	id := created["job_id"]
	if id == "" {
		t.Fatalf("empty job id: %s", resp.Body.String())
	}

	// 2. Status until complete
	v := waitForJob(t, r, id, "")
	if v.Status != jobComplete || v.Progress != 100 || v.Results == nil {
		t.Fatalf("unexpected job %+v", v)
	}
	if v.Results.Total != 3 || v.Results.Success != 2 || v.Results.Failed != 1 || !v.Results.ZipAvailable {
		t.Fatalf("unexpected results %+v", v.Results)
	}

	// 3. Download zip
	resp = performRequest(r, http.MethodGet, "/api/jobs/"+id+"/download", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("download failed status=%d", resp.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(resp.Body.Bytes()), int64(resp.Body.Len()))
	if err != nil {
		t.Fatalf("bad zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "gdn248_76656.jpg" || names[1] != "gdn248_76657.JPG" {
		t.Fatalf("zip entries %v", names)
	}

	// 4. Delete
	resp = performRequest(r, http.MethodDelete, "/api/jobs/"+id, nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/api/jobs/"+id, nil, "", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("deleted job still visible: %d", resp.Code)
	}
}

func TestUploadRejectsEmptyAndUnsupported(t *testing.T) {
	r, s := setupTestServer(t, Config{})
	body, ct := uploadBody(t)
	if resp := performRequest(r, http.MethodPost, "/api/jobs", body, "", ct); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for no files, got %d", resp.Code)
	}
	body, ct = uploadBody(t, "notes.txt", "scan.tiff")
	if resp := performRequest(r, http.MethodPost, "/api/jobs", body, "", ct); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported files, got %d", resp.Code)
	}
	if len(s.jobs.jobs) != 0 {
		t.Fatalf("rejected uploads left jobs behind: %d", len(s.jobs.jobs))
	}
	entries, _ := os.ReadDir(s.jobs.base)
	if len(entries) != 0 {
		t.Fatalf("rejected uploads left directories behind")
	}
}

func TestDownloadWithoutResults(t *testing.T) {
	r, _ := setupTestServer(t, Config{})
	body, ct := uploadBody(t, "c.jpg")
	resp := performRequest(r, http.MethodPost, "/api/jobs", body, "", ct)
	var created map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	v := waitForJob(t, r, created["job_id"], "")
	if v.Results == nil || v.Results.ZipAvailable {
		t.Fatalf("no zip expected: %+v", v.Results)
	}
	if resp := performRequest(r, http.MethodGet, "/api/jobs/"+v.ID+"/download", nil, "", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func login(t *testing.T, r http.Handler, password string) (int, string) {
	t.Helper()
	b, _ := json.Marshal(map[string]string{"password": password})
	resp := performRequest(r, http.MethodPost, "/api/login", bytes.NewBuffer(b), "", "application/json")
	var out map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &out)
	token, _ := out["token"].(string)
	return resp.Code, token
}

func TestAuthScopesJobsToSession(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("field-season"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := setupTestServer(t, Config{WebPasswordHash: string(hash)})

	body, ct := uploadBody(t, "a.jpg")
	if resp := performRequest(r, http.MethodPost, "/api/jobs", body, "", ct); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	if code, _ := login(t, r, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", code)
	}
	code, tokenA := login(t, r, "field-season")
	if code != http.StatusOK || tokenA == "" {
		t.Fatalf("login failed code=%d", code)
	}
	_, tokenB := login(t, r, "field-season")

	body, ct = uploadBody(t, "a.jpg")
	resp := performRequest(r, http.MethodPost, "/api/jobs", body, tokenA, ct)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	waitForJob(t, r, created["job_id"], tokenA)

	if resp := performRequest(r, http.MethodGet, "/api/jobs/"+created["job_id"], nil, tokenB, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("other session can see the job: %d", resp.Code)
	}
	if resp := performRequest(r, http.MethodGet, "/api/jobs/"+created["job_id"], nil, "garbage", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.Code)
	}
}

func TestLoginDisabledWithoutPassword(t *testing.T) {
	r, _ := setupTestServer(t, Config{})
	if code, _ := login(t, r, "anything"); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp := performRequest(r, http.MethodGet, "/healthz", nil, "", ""); resp.Code != http.StatusOK {
		t.Fatalf("healthz %d", resp.Code)
	}
	if resp := performRequest(r, http.MethodGet, "/", nil, "", ""); resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte("photos")) {
		t.Fatalf("index page missing upload form")
	}
}

func TestRecorderIntegration(t *testing.T) {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	cfg := loadConfig()
	cfg.DBAutoMigrate = true
	if err := initDB(cfg); err != nil {
		t.Fatalf("initDB: %v", err)
	}
	rec := gormRecorder{db: db, source: "test"}
	runID := uuid.NewString()
	outcomes := []rename.Outcome{
		{Original: "a.jpg", NewName: "gdn248_76656.jpg", SiteNumber: "GDN-248", ArtifactNumber: "76656", Confidence: 1, Success: true, Message: "Renamed"},
		{Original: "c.jpg", Confidence: 0.5, Message: "Could not detect"},
	}
	if err := rec.Record(runID, outcomes); err != nil {
		t.Fatalf("record: %v", err)
	}
	rows, err := recentDetections(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	found := 0
	for _, d := range rows {
		if d.RunID == runID {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("expected 2 rows for run %s, got %d", runID, found)
	}
	rep, err := monthlyReport(time.Now().UTC())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Runs < 1 || rep.Photos < 2 || rep.Renamed < 1 || rep.Failed < 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
