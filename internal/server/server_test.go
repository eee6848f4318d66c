package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/queue"
	"github.com/lumio-app/lumio/internal/results"
)

type testServer struct {
	server *Server
	queue  *queue.Queue
	store  *results.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.DiscardHandler)
	q, err := queue.New(context.Background(), rdb, logger, queue.Config{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	store := results.New(rdb, logger, time.Hour)
	analyzer := analysis.New(analysis.Config{Logger: logger})

	srv := New(Config{
		Queue:     q,
		Results:   store,
		Analyzer:  analyzer,
		Redis:     rdb,
		Logger:    logger,
		UploadDir: t.TempDir(),
	})
	return &testServer{server: srv, queue: q, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartPNG(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(pngBuf.Bytes()); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadAndStatus(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartPNG(t, "scan.png")
	rec := ts.do(t, http.MethodPost, "/api/upload", body, contentType)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var upload UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &upload); err != nil {
		t.Fatalf("bad upload response: %v", err)
	}
	if !strings.HasPrefix(upload.ID, "job-") {
		t.Errorf("expected job- prefixed ID, got %q", upload.ID)
	}
	if upload.Status != "processing" || upload.Filename != "scan.png" {
		t.Errorf("unexpected upload response: %+v", upload)
	}

	rec = ts.do(t, http.MethodGet, "/api/jobs/status/"+upload.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status JobProgressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad status response: %v", err)
	}
	if status.Status != "processing" || status.Progress != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Message == "" {
		t.Error("expected queued message for unstarted job")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("plain text, not a document"))
	mw.Close()

	rec := ts.do(t, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for text upload, got %d", rec.Code)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "no file here")
	mw.Close()

	rec := ts.do(t, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/jobs/status/job-missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestJobResultLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// Unknown job.
	rec := ts.do(t, http.MethodGet, "/api/jobs/result/job-missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}

	// Still processing.
	if err := ts.queue.Enqueue(ctx, "job-1", []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	rec = ts.do(t, http.MethodGet, "/api/jobs/result/job-1", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 while processing, got %d", rec.Code)
	}

	// Completed with result.
	if err := ts.store.Save(ctx, &results.JobResult{ID: "job-1", ExtractedText: "done"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec = ts.do(t, http.MethodGet, "/api/jobs/result/job-1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result results.JobResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad result body: %v", err)
	}
	if result.ExtractedText != "done" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestJobResultFailedJob(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if err := ts.queue.Enqueue(ctx, "job-1", []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := ts.queue.Claim(ctx, 10*time.Millisecond)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: %v", err)
	}
	// MaxAttempts is 1 in the fixture, so one nack fails the job.
	if err := ts.queue.Nack(ctx, job, errors.New("ocr exploded")); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/jobs/result/job-1", nil, "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for failed job, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ocr exploded") {
		t.Errorf("expected failure reason in body, got %s", rec.Body)
	}

	rec = ts.do(t, http.MethodGet, "/api/jobs/status/job-1", nil, "")
	var status JobProgressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad status body: %v", err)
	}
	if status.Status != "failed" || status.Message != "ocr exploded" {
		t.Errorf("unexpected failed status: %+v", status)
	}
}

func TestDeleteJobIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if err := ts.queue.Enqueue(ctx, "job-1", []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ts.store.Save(ctx, &results.JobResult{ID: "job-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodDelete, "/api/jobs/job-1", nil, "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("delete %d: expected 204, got %d", i, rec.Code)
		}
	}

	rec := ts.do(t, http.MethodGet, "/api/jobs/result/job-1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestQueueStats(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/jobs/queue/stats", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats queue.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("bad stats body: %v", err)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := bytes.NewBufferString(`{"text": "A wonderful day for shipping great software. What do you think?", "targets": ["twitter"]}`)
	rec := ts.do(t, http.MethodPost, "/api/analyze", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Analysis analysis.Result `json:"analysis"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad analyze body: %v", err)
	}
	if resp.Analysis.WordCount == 0 {
		t.Error("expected nonzero word count")
	}
	if resp.Analysis.ImprovedText.Twitter == "" {
		t.Error("expected twitter rewrite for requested target")
	}
	if resp.Analysis.ImprovedText.Instagram != "" || resp.Analysis.ImprovedText.LinkedIn != "" {
		t.Error("unrequested targets should be blank")
	}
}

func TestAnalyzeValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty text", `{"text": ""}`},
		{"whitespace text", `{"text": "   "}`},
		{"bad target", `{"text": "hello", "targets": ["myspace"]}`},
		{"too long", `{"text": "` + strings.Repeat("a", maxAnalyzeTextLen+1) + `"}`},
		{"bad json", `{not json`},
	}
	for _, tc := range cases {
		rec := ts.do(t, http.MethodPost, "/api/analyze", bytes.NewBufferString(tc.body), "application/json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestHashtagsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := bytes.NewBufferString(`{"text": "machine learning infrastructure machine learning pipelines"}`)
	rec := ts.do(t, http.MethodPost, "/api/hashtags", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Hashtags []analysis.Hashtag `json:"hashtags"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad hashtags body: %v", err)
	}
	if len(resp.Hashtags) == 0 {
		t.Error("expected hashtag suggestions")
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/ready", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /ready, got %d", rec.Code)
	}
}
