package handler

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/engine"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/internal/store"
	"github.com/stemsplit/api/internal/websocket"
	"github.com/stemsplit/api/internal/worker"
)

type fakeSeparator struct{}

func (fakeSeparator) Run(ctx context.Context, inputPath, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	outputs := []string{"accompaniment.wav", "vocals.wav"}
	for _, name := range outputs {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte("stem:"+name), 0o644); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func (fakeSeparator) Close() error { return nil }

type testApp struct {
	app   *fiber.App
	store *store.JobStore
}

// setupApp builds the route tree from main.go with an in-process fake
// engine and no rate limiter, so no external services are needed.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Storage:   config.StorageConfig{Root: t.TempDir()},
		Limits:    config.LimitsConfig{MaxDurationSeconds: 600, MaxUploadBytes: 10 * 1024 * 1024},
		Engine:    config.EngineConfig{DefaultStems: "2stems", MaxStems: 4},
		Retention: config.RetentionConfig{Capacity: 100, Floor: 50},
	}

	factory := func(profile model.StemProfile) (engine.Separator, error) {
		return fakeSeparator{}, nil
	}

	hub := websocket.NewHub()
	go hub.Run()
	jobStore := store.New()
	w := worker.New(jobStore, engine.NewCache(factory), hub, cfg.Retention)

	jobService := service.NewJobService(jobStore, w, nil, cfg)
	analyzeService := service.NewAnalyzeService(nil)

	jobHandler := NewJobHandler(jobService, validator.New())
	analyzeHandler := NewAnalyzeHandler(analyzeService)

	app := fiber.New(fiber.Config{BodyLimit: int(cfg.Limits.MaxUploadBytes)})
	app.Get("/health", jobHandler.Health)
	api := app.Group("/api")
	api.Get("/queue", jobHandler.Queue)
	api.Post("/jobs", jobHandler.Submit)
	api.Get("/jobs/:id", jobHandler.Status)
	api.Get("/jobs/:id/outputs/+", jobHandler.Output)
	api.Post("/analyze", analyzeHandler.Analyze)

	return &testApp{app: app, store: jobStore}
}

// multipartAudio builds a multipart request with an audio file part
func multipartAudio(t *testing.T, path, filename string, audio []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	partHeader.Set("Content-Type", "audio/mpeg")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(audio)
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("parse json: %v (body: %s)", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}

func overlongWAV() []byte {
	byteRate := uint32(1000)
	dataSize := uint32(700) * byteRate

	var b []byte
	b = append(b, "RIFF"...)
	b = binary.LittleEndian.AppendUint32(b, 36+dataSize)
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint32(b, byteRate)
	b = binary.LittleEndian.AppendUint32(b, byteRate)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 8)
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, dataSize)
	return b
}

func submitJob(t *testing.T, ta *testApp, stems string) string {
	t.Helper()
	req := multipartAudio(t, "/api/jobs", "song.mp3", []byte("fake mpeg frames"), map[string]string{"stems": stems})
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	result := parseJSON(t, resp)
	id, _ := result["jobId"].(string)
	if id == "" {
		t.Fatal("expected jobId in response")
	}
	return id
}

func waitTerminal(t *testing.T, ta *testApp, id string) model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := ta.store.Get(id)
		if err == nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return model.Job{}
}

func TestSubmitJob(t *testing.T) {
	ta := setupApp(t)

	req := multipartAudio(t, "/api/jobs", "song.mp3", []byte("fake mpeg frames"), map[string]string{"stems": "5stems"})
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == "" || result["jobId"] == nil {
		t.Error("expected jobId")
	}
	if result["status"] != "queued" {
		t.Errorf("status = %v, want queued", result["status"])
	}
	// 5 stems exceeds max_stems=4, the effective profile is echoed
	if result["profile"] != "4stems" {
		t.Errorf("profile = %v, want 4stems", result["profile"])
	}
	if result["message"] == "" {
		t.Error("expected a queue message")
	}
}

func TestSubmitJobNoFile(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest(http.MethodPost, "/api/jobs", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj, _ := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("error code = %v, want VALIDATION_ERROR", errObj["code"])
	}
}

func TestSubmitJobDurationExceeded(t *testing.T) {
	ta := setupApp(t)

	req := multipartAudio(t, "/api/jobs", "long.wav", overlongWAV(), nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj, _ := result["error"].(map[string]interface{})
	if errObj["code"] != "DURATION_EXCEEDED" {
		t.Errorf("error code = %v, want DURATION_EXCEEDED", errObj["code"])
	}
	msg, _ := errObj["message"].(string)
	if msg == "" {
		t.Error("expected a message naming the limit")
	}
}

func TestJobStatusLifecycle(t *testing.T) {
	ta := setupApp(t)

	id := submitJob(t, ta, "2stems")
	waitTerminal(t, ta, id)

	req, _ := http.NewRequest(http.MethodGet, "/api/jobs/"+id, nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "succeeded" {
		t.Fatalf("status = %v, want succeeded", result["status"])
	}
	if result["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", result["progress"])
	}
	outputs, _ := result["outputs"].([]interface{})
	if len(outputs) != 2 {
		t.Errorf("outputs = %v, want 2 stems", outputs)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest(http.MethodGet, "/api/jobs/does-not-exist", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDownloadOutput(t *testing.T) {
	ta := setupApp(t)

	id := submitJob(t, ta, "2stems")
	job := waitTerminal(t, ta, id)
	if len(job.Outputs) == 0 {
		t.Fatal("job finished with no outputs")
	}

	req, _ := http.NewRequest(http.MethodGet, "/api/jobs/"+id+"/outputs/"+job.Outputs[0], nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "stem:"+job.Outputs[0] {
		t.Errorf("body = %q, want stem content", body)
	}
}

func TestDownloadUnknownOutput(t *testing.T) {
	ta := setupApp(t)

	id := submitJob(t, ta, "2stems")
	waitTerminal(t, ta, id)

	req, _ := http.NewRequest(http.MethodGet, "/api/jobs/"+id+"/outputs/nope.wav", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestQueueStatsEndpoint(t *testing.T) {
	ta := setupApp(t)

	id := submitJob(t, ta, "2stems")
	waitTerminal(t, ta, id)

	req, _ := http.NewRequest(http.MethodGet, "/api/queue", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["completeCount"] != float64(1) {
		t.Errorf("completeCount = %v, want 1", result["completeCount"])
	}
	if result["pendingCount"] != float64(0) || result["runningCount"] != float64(0) {
		t.Errorf("unexpected queue stats: %v", result)
	}
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("status = %v, want ok", result["status"])
	}
	if _, ok := result["pendingCount"]; !ok {
		t.Error("health payload missing pendingCount")
	}
}

func TestAnalyzeUnavailable(t *testing.T) {
	ta := setupApp(t)

	req := multipartAudio(t, "/api/analyze", "song.mp3", []byte("x"), nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusServiceUnavailable)
}

func TestAnalyzeNoFile(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest(http.MethodPost, "/api/analyze", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestPendingPositionsVisibleWhilePredecessorRuns(t *testing.T) {
	ta := setupApp(t)

	// Two back-to-back submissions with profile 2stems: the first is
	// position 0 (or already running), the second sits behind it
	a := submitJob(t, ta, "2stems")
	b := submitJob(t, ta, "2stems")

	req, _ := http.NewRequest(http.MethodGet, "/api/jobs/"+b, nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	result := parseJSON(t, resp)
	status, _ := result["status"].(string)
	switch status {
	case "queued":
		if pos, ok := result["queuePosition"].(float64); ok && pos > 1 {
			t.Errorf("queuePosition = %v, want <= 1", pos)
		}
	case "running", "succeeded":
		// The fake engine is fast; B may already have run after A
	default:
		t.Errorf("unexpected status %q for second submission", status)
	}

	waitTerminal(t, ta, a)
	waitTerminal(t, ta, b)
}
