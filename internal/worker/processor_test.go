package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/extract"
	"github.com/lumio-app/lumio/internal/providers"
	"github.com/lumio-app/lumio/internal/queue"
	"github.com/lumio-app/lumio/internal/results"
)

type fixture struct {
	queue     *queue.Queue
	results   *results.Store
	processor *Processor
	client    *providers.MockClient
	rdb       *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.DiscardHandler)
	q, err := queue.New(context.Background(), rdb, logger, queue.Config{
		BackoffBase: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	mock := providers.NewMockClient()
	store := results.New(rdb, logger, time.Hour)
	extractor := extract.New(extract.Config{
		Client:       mock,
		Logger:       logger,
		TesseractBin: "lumio-test-no-such-binary",
	})
	analyzer := analysis.New(analysis.Config{
		Client:    mock,
		Logger:    logger,
		Attempts:  1,
		BaseDelay: time.Millisecond,
	})

	return &fixture{
		queue:     q,
		results:   store,
		processor: NewProcessor(extractor, analyzer, store, q, logger),
		client:    mock,
		rdb:       rdb,
	}
}

// stageUpload writes a small PNG to disk and enqueues a document job
// pointing at it, returning the claimed job.
func stageUpload(t *testing.T, f *fixture) *queue.Job {
	t.Helper()
	ctx := context.Background()

	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		if i%3 == 0 {
			img.Pix[i] = 255
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}

	path := filepath.Join(t.TempDir(), "upload.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to stage upload: %v", err)
	}

	doc := DocumentJob{
		ID:       "job-1",
		Filename: "upload.png",
		MimeType: "image/png",
		FilePath: path,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	if err := f.queue.Enqueue(ctx, doc.ID, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	job, err := f.queue.Claim(ctx, 10*time.Millisecond)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: job=%v err=%v", job, err)
	}
	return job
}

func TestProcessRedactsAndAnalyzes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Vision OCR returns text with an SSN; the completion call fails so
	// analysis falls back to heuristics.
	f.client.VisionResponses = []providers.MockResponse{
		{Text: `{"text": "Great quarter everyone. My SSN is 123-45-6789. What a win!", "lines": [], "confidence": 0.95}`},
	}
	f.client.CompleteResponses = []providers.MockResponse{
		{Err: errors.New("model unavailable")},
	}

	job := stageUpload(t, f)
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := f.queue.Complete(ctx, job); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	result, err := f.results.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("result not persisted: %v", err)
	}
	if strings.Contains(result.ExtractedText, "123-45-6789") {
		t.Error("SSN leaked into stored text")
	}
	if !strings.Contains(result.ExtractedText, "[REDACTED-SSN]") {
		t.Errorf("expected redaction marker, got %q", result.ExtractedText)
	}
	if !result.Meta.PIIDetected {
		t.Error("expected PIIDetected flag")
	}
	if result.Meta.Engine != extract.EngineAIOCR {
		t.Errorf("expected ai-ocr engine, got %q", result.Meta.Engine)
	}
	if result.Analysis == nil {
		t.Fatal("expected analysis in result")
	}
	if result.Analysis.WordCount == 0 {
		t.Error("heuristic fallback should produce a word count")
	}
	if len(result.Analysis.EngagementTips) != 3 {
		t.Errorf("expected 3 engagement tips, got %d", len(result.Analysis.EngagementTips))
	}

	status, err := f.queue.Status(ctx, "job-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != queue.StatusCompleted || status.Progress != 100 {
		t.Errorf("expected completed at 100%%, got %+v", status)
	}
}

func TestProcessEmptyTextStillAnalyzes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A blank scan: OCR succeeds but finds nothing, and the completion
	// call fails so analysis falls back to heuristics.
	f.client.VisionResponses = []providers.MockResponse{
		{Text: `{"text": "", "lines": [], "confidence": 0.3}`},
	}
	f.client.CompleteResponses = []providers.MockResponse{
		{Err: errors.New("model unavailable")},
	}

	job := stageUpload(t, f)
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, err := f.results.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("result not persisted: %v", err)
	}
	if result.Analysis == nil {
		t.Fatal("expected analysis even for empty text")
	}
	if result.Analysis.WordCount != 0 {
		t.Errorf("expected word count 0, got %d", result.Analysis.WordCount)
	}
	if len(result.Analysis.EngagementTips) != 3 {
		t.Errorf("expected 3 engagement tips, got %d", len(result.Analysis.EngagementTips))
	}

	raw, err := f.rdb.Get(ctx, "lumio:result:job-1").Result()
	if err != nil {
		t.Fatalf("raw result missing: %v", err)
	}
	if !strings.Contains(raw, `"analysis"`) {
		t.Error("persisted result should always carry the analysis key")
	}
}

func TestProcessRemovesStagedUpload(t *testing.T) {
	f := newFixture(t)
	f.client.VisionResponses = []providers.MockResponse{
		{Text: `{"text": "hello", "lines": ["hello"], "confidence": 0.9}`},
	}
	f.client.CompleteResponses = []providers.MockResponse{
		{Err: errors.New("down")},
	}

	job := stageUpload(t, f)
	var doc DocumentJob
	if err := json.Unmarshal(job.Payload, &doc); err != nil {
		t.Fatalf("bad payload: %v", err)
	}

	if err := f.processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := os.Stat(doc.FilePath); !os.IsNotExist(err) {
		t.Error("staged upload should be removed after processing")
	}
}

func TestProcessDetectsDeletedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.VisionResponses = []providers.MockResponse{
		{Text: `{"text": "hello", "lines": ["hello"], "confidence": 0.9}`},
	}

	job := stageUpload(t, f)
	if err := f.queue.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	err := f.processor.Process(ctx, job)
	if !errors.Is(err, ErrJobDeleted) {
		t.Errorf("expected ErrJobDeleted, got %v", err)
	}
	if _, err := f.results.Get(ctx, job.ID); !errors.Is(err, results.ErrNotFound) {
		t.Error("deleted job should not persist a result")
	}
}

func TestProcessFailureIsRetriable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Both OCR engines fail, so extraction errors out.
	f.client.VisionResponses = []providers.MockResponse{
		{Text: "not json"},
	}

	job := stageUpload(t, f)
	err := f.processor.Process(ctx, job)
	if err == nil {
		t.Fatal("expected extraction failure")
	}
	if err := f.queue.Nack(ctx, job, err); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	status, _ := f.queue.Status(ctx, "job-1")
	if status.Status != queue.StatusDelayed {
		t.Errorf("expected delayed status, got %s", status.Status)
	}
}

func TestPoolDrainsQueue(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.client.VisionResponses = []providers.MockResponse{
		{Text: `{"text": "some readable words here", "lines": [], "confidence": 0.9}`},
	}
	f.client.CompleteResponses = []providers.MockResponse{
		{Err: errors.New("down")},
	}

	stageUploadUnclaimed(t, f, "job-a")
	stageUploadUnclaimed(t, f, "job-b")

	pool := NewPool(f.queue, f.processor, slog.New(slog.DiscardHandler), PoolConfig{
		Concurrency:  2,
		ClaimBlock:   10 * time.Millisecond,
		PromoteEvery: 10 * time.Millisecond,
	})
	pool.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		sa, errA := f.queue.Status(ctx, "job-a")
		sb, errB := f.queue.Status(ctx, "job-b")
		if errA == nil && errB == nil &&
			sa.Status == queue.StatusCompleted && sb.Status == queue.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("jobs did not complete: a=%v b=%v", sa, sb)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	pool.Wait()
}

// stageUploadUnclaimed enqueues a job without claiming it.
func stageUploadUnclaimed(t *testing.T, f *fixture, id string) {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(2, 2, color.Gray{Y: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	path := filepath.Join(t.TempDir(), id+".png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to stage upload: %v", err)
	}

	payload, _ := json.Marshal(DocumentJob{
		ID:       id,
		Filename: id + ".png",
		MimeType: "image/png",
		FilePath: path,
	})
	if err := f.queue.Enqueue(context.Background(), id, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
}
