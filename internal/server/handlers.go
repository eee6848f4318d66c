package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/queue"
	"github.com/lumio-app/lumio/internal/results"
	"github.com/lumio-app/lumio/internal/worker"
)

const (
	maxAnalyzeTextLen = 50000
	maxHashtagTextLen = 10000
)

// allowedMimeTypes are the upload types the pipeline can process.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/tiff":      true,
	"image/bmp":       true,
	"image/webp":      true,
}

// UploadResponse is returned when a document is accepted.
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Status   string `json:"status"`
}

// JobProgressResponse is the polling view of a job.
type JobProgressResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"` // "processing", "done", "failed"
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// handleUpload accepts a multipart document upload, stages it to disk
// and enqueues a processing job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	mimeType, ok := detectMimeType(data, header.Header.Get("Content-Type"))
	if !ok {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("file type %s is not supported", header.Header.Get("Content-Type")))
		return
	}

	id := "job-" + uuid.New().String()
	filename := sanitizeFilename(header.Filename)

	uploadDir := s.uploadDir
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "lumio-uploads")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		s.logger.Error("failed to create upload dir", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}

	path := filepath.Join(uploadDir, id+"_"+filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("failed to stage upload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}

	payload, err := json.Marshal(worker.DocumentJob{
		ID:       id,
		Filename: filename,
		MimeType: mimeType,
		FilePath: path,
	})
	if err != nil {
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	if err := s.queue.Enqueue(r.Context(), id, payload); err != nil {
		os.Remove(path)
		s.logger.Error("failed to enqueue job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	s.logger.Info("file uploaded and job queued",
		"job_id", id, "filename", filename, "size", len(data), "mime_type", mimeType)

	writeJSON(w, http.StatusCreated, UploadResponse{
		ID:       id,
		Filename: filename,
		Size:     int64(len(data)),
		Status:   "processing",
	})
}

// handleJobStatus reports job progress for polling clients.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := s.queue.Status(r.Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load job status", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}

	resp := JobProgressResponse{ID: id, Progress: status.Progress}
	switch status.Status {
	case queue.StatusCompleted:
		resp.Status = "done"
		resp.Progress = 100
	case queue.StatusFailed:
		resp.Status = "failed"
		resp.Message = status.Error
	default:
		resp.Status = "processing"
		if status.Status == queue.StatusPending && status.Attempts == 0 {
			resp.Message = "Job queued, waiting to start"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleJobResult returns the finished output, distinguishing
// still-processing (202) from unknown (404) and failed (500) jobs.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.results.Get(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	if !errors.Is(err, results.ErrNotFound) {
		s.logger.Error("failed to load result", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}

	status, err := s.queue.Status(r.Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}

	switch status.Status {
	case queue.StatusFailed:
		writeError(w, http.StatusInternalServerError, "job failed: "+status.Error)
	case queue.StatusCompleted:
		writeError(w, http.StatusNotFound, "job result not available")
	default:
		writeJSON(w, http.StatusAccepted, JobProgressResponse{
			ID:       id,
			Status:   "processing",
			Progress: status.Progress,
		})
	}
}

// handleJobDelete removes a job and its result. Deleting twice or
// deleting an unknown ID still returns 204.
func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.queue.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	if err := s.results.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete result", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}

	s.logger.Info("job deleted", "job_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleQueueStats exposes queue depth for monitoring.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to load queue stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// analyzeRequest is the body for POST /api/analyze.
type analyzeRequest struct {
	Text    string              `json:"text"`
	Targets []analysis.Platform `json:"targets"`
}

// handleAnalyze runs synchronous text analysis.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if len(req.Text) > maxAnalyzeTextLen {
		writeError(w, http.StatusBadRequest, "text too long")
		return
	}
	for _, t := range req.Targets {
		switch t {
		case analysis.PlatformTwitter, analysis.PlatformInstagram, analysis.PlatformLinkedIn:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown target %q", t))
			return
		}
	}

	s.logger.Info("direct text analysis requested",
		"text_len", len(req.Text), "targets", req.Targets)

	result, err := s.analyzer.Analyze(r.Context(), req.Text, req.Targets)
	if err != nil {
		s.logger.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]*analysis.Result{"analysis": result})
}

// hashtagRequest is the body for POST /api/hashtags.
type hashtagRequest struct {
	Text string `json:"text"`
}

// handleHashtags runs the hashtag-only operation.
func (s *Server) handleHashtags(w http.ResponseWriter, r *http.Request) {
	var req hashtagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if len(req.Text) > maxHashtagTextLen {
		writeError(w, http.StatusBadRequest, "text too long")
		return
	}

	tags, err := s.analyzer.Hashtags(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("hashtag generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "hashtag generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]analysis.Hashtag{"hashtags": tags})
}

// detectMimeType decides the effective MIME type for an upload,
// preferring content sniffing over the declared header.
func detectMimeType(data []byte, declared string) (string, bool) {
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = strings.TrimSpace(sniffed[:i])
	}
	if allowedMimeTypes[sniffed] {
		return sniffed, true
	}

	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if allowedMimeTypes[declared] {
		if declared == "image/jpg" {
			declared = "image/jpeg"
		}
		return declared, true
	}
	return "", false
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFilename strips path components and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 100 {
		ext := filepath.Ext(name)
		name = name[:100-len(ext)] + ext
	}
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
