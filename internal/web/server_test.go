package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/conversation"
	"github.com/lashiv/lashivgpt/internal/history"
	"github.com/lashiv/lashivgpt/internal/images"
	"github.com/lashiv/lashivgpt/internal/logging"
	"github.com/lashiv/lashivgpt/internal/provider"
	"github.com/lashiv/lashivgpt/internal/queue"
	"github.com/lashiv/lashivgpt/internal/ratelimit"
	"github.com/lashiv/lashivgpt/internal/scheduler"
)

type fakeTextGen struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeTextGen) Generate(ctx context.Context, modelID string, ctxMessages []conversation.Message, message string) (string, error) {
	f.lastPrompt = message
	return f.reply, f.err
}

type fakeImageGen struct {
	png []byte
	b64 string
	err error
}

func (f *fakeImageGen) TextToImage(ctx context.Context, prompt string) ([]byte, string, error) {
	return f.png, f.b64, f.err
}

func newTestServer(t *testing.T, textGen TextGenerator, imageGen ImageGenerator) *Server {
	t.Helper()

	models, err := config.LoadModels()
	if err != nil {
		t.Fatalf("LoadModels() error = %v", err)
	}

	logger := logging.New(logging.LevelError, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	q := queue.New(time.Millisecond, logger)
	q.Start(ctx)

	limiter := ratelimit.New(models, logger)
	sched := scheduler.New(limiter, models, logger)

	return NewServer("localhost:0", Deps{
		Logger:    logger,
		Models:    models,
		History:   history.NewStore(t.TempDir(), logger),
		Images:    images.NewStore(t.TempDir()),
		Queue:     q,
		Scheduler: sched,
		TextGen:   textGen,
		ImageGen:  imageGen,
		Fallback:  provider.NewFallback(),
		BaseURL:   "http://localhost:8080",
	})
}

func postChat(t *testing.T, s *Server, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) chatResponse {
	t.Helper()

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode chat response: %v", err)
	}
	return resp
}

func TestChat_TextTurn(t *testing.T) {
	textGen := &fakeTextGen{reply: "Terraform manages infrastructure as code."}
	s := newTestServer(t, textGen, nil)

	rec := postChat(t, s, map[string]string{
		"userId":  "alice",
		"message": "what is terraform?",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	resp := decodeChat(t, rec)
	if resp.Reply != textGen.reply {
		t.Errorf("reply = %q, want generator reply", resp.Reply)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(resp.History))
	}
	if resp.History[0].Role != conversation.RoleUser || resp.History[0].Content != "what is terraform?" {
		t.Errorf("history[0] = %+v, want the user turn", resp.History[0])
	}
	if resp.History[1].Role != conversation.RoleAssistant || resp.History[1].Content != textGen.reply {
		t.Errorf("history[1] = %+v, want the assistant turn", resp.History[1])
	}

	// The persisted history must match what the response returned.
	stored := s.history.Read("alice")
	if len(stored) != len(resp.History) {
		t.Fatalf("persisted history length = %d, response length = %d", len(stored), len(resp.History))
	}
	for i := range stored {
		if stored[i].Content != resp.History[i].Content {
			t.Errorf("persisted[%d] = %q, response %q", i, stored[i].Content, resp.History[i].Content)
		}
	}
}

func TestChat_HistoryAccumulatesAcrossTurns(t *testing.T) {
	textGen := &fakeTextGen{reply: "answer"}
	s := newTestServer(t, textGen, nil)

	for i := 0; i < 3; i++ {
		rec := postChat(t, s, map[string]string{
			"userId":  "bob",
			"message": fmt.Sprintf("question %d", i),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("turn %d status = %d", i, rec.Code)
		}
	}

	if got := len(s.history.Read("bob")); got != 6 {
		t.Errorf("persisted history length = %d, want 6", got)
	}
}

func TestChat_Validation(t *testing.T) {
	s := newTestServer(t, &fakeTextGen{reply: "x"}, nil)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing userId", map[string]string{"message": "hi"}},
		{"missing message", map[string]string{"userId": "alice"}},
		{"invalid userId", map[string]string{"userId": "../etc", "message": "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, s, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChat_MissingTextCredential(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := postChat(t, s, map[string]string{"userId": "alice", "message": "hi there"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestChat_MissingImageCredential(t *testing.T) {
	s := newTestServer(t, &fakeTextGen{reply: "x"}, nil)

	rec := postChat(t, s, map[string]string{"userId": "alice", "message": "draw a cat"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestChat_ImageTurn(t *testing.T) {
	pngData := []byte("\x89PNG\r\n\x1a\nfake image")
	imageGen := &fakeImageGen{png: pngData, b64: "ZmFrZQ=="}
	s := newTestServer(t, nil, imageGen)

	rec := postChat(t, s, map[string]string{"userId": "carol", "message": "draw a lighthouse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	resp := decodeChat(t, rec)
	if resp.ImageFilename == "" {
		t.Fatal("imageFilename is empty")
	}
	if resp.ImageData != imageGen.b64 {
		t.Errorf("imageData = %q, want generator payload", resp.ImageData)
	}
	if !strings.Contains(resp.Reply, resp.ImageFilename) {
		t.Errorf("reply markup %q missing image filename", resp.Reply)
	}
	if len(resp.History) != 2 {
		t.Errorf("history length = %d, want 2", len(resp.History))
	}

	// The generated image must be retrievable.
	req := httptest.NewRequest(http.MethodGet, "/images/"+resp.ImageFilename, nil)
	imgRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(imgRec, req)

	if imgRec.Code != http.StatusOK {
		t.Fatalf("image fetch status = %d, want 200", imgRec.Code)
	}
	if imgRec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", imgRec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(imgRec.Body.Bytes(), pngData) {
		t.Error("served image differs from generated data")
	}
}

func TestChat_ImageFailureStillRecordsTurn(t *testing.T) {
	imageGen := &fakeImageGen{err: errors.New("upstream unavailable")}
	s := newTestServer(t, nil, imageGen)

	rec := postChat(t, s, map[string]string{"userId": "dave", "message": "draw a boat"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeChat(t, rec)
	if resp.ImageFilename != "" {
		t.Error("imageFilename set on failure")
	}
	if !strings.Contains(resp.Reply, "couldn't generate") {
		t.Errorf("reply = %q, want failure markup", resp.Reply)
	}
	if got := len(s.history.Read("dave")); got != 2 {
		t.Errorf("persisted history length = %d, want 2", got)
	}
}

func TestChat_AllModelsThrottled(t *testing.T) {
	textGen := &fakeTextGen{err: &provider.StatusError{StatusCode: 429, Message: "resource exhausted"}}
	s := newTestServer(t, textGen, nil)
	s.scheduler = newFastScheduler(t)

	rec := postChat(t, s, map[string]string{"userId": "erin", "message": "hello?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeChat(t, rec)
	if !strings.Contains(resp.Reply, "rate limited") {
		t.Errorf("reply = %q, want rate limit notice", resp.Reply)
	}
	if got := len(s.history.Read("erin")); got != 2 {
		t.Errorf("persisted history length = %d, want 2", got)
	}
}

func TestChat_ProviderFailureUsesFallback(t *testing.T) {
	textGen := &fakeTextGen{err: errors.New("connection refused")}
	s := newTestServer(t, textGen, nil)

	rec := postChat(t, s, map[string]string{"userId": "finn", "message": "explain monads"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeChat(t, rec)
	if !strings.Contains(resp.Reply, "fallback") {
		t.Errorf("reply = %q, want fallback markup", resp.Reply)
	}
}

func TestChat_MultipartWithTextFile(t *testing.T) {
	textGen := &fakeTextGen{reply: "summarized"}
	s := newTestServer(t, textGen, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("userId", "gina")
	_ = mw.WriteField("message", "summarize this file")
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = fw.Write([]byte("deploy on fridays is forbidden"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(textGen.lastPrompt, "deploy on fridays is forbidden") {
		t.Errorf("prompt %q missing inlined file content", textGen.lastPrompt)
	}
	if !strings.Contains(textGen.lastPrompt, "summarize this file") {
		t.Errorf("prompt %q missing user question", textGen.lastPrompt)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	textGen := &fakeTextGen{reply: "sure"}
	s := newTestServer(t, textGen, nil)

	rec := postChat(t, s, map[string]string{"userId": "hank", "message": "remember this"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	// GET returns the recorded turns.
	req := httptest.NewRequest(http.MethodGet, "/history/hank", nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, req)

	if getRec.Code != http.StatusOK {
		t.Fatalf("get history status = %d", getRec.Code)
	}

	var got struct {
		UserID  string                 `json:"userId"`
		History []conversation.Message `json:"history"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode history response: %v", err)
	}
	if got.UserID != "hank" || len(got.History) != 2 {
		t.Errorf("history response = %+v, want 2 turns for hank", got)
	}

	// DELETE clears it.
	req = httptest.NewRequest(http.MethodDelete, "/history/hank", nil)
	delRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(delRec, req)

	if delRec.Code != http.StatusOK {
		t.Fatalf("delete history status = %d", delRec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/history/hank", nil)
	getRec = httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, req)

	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode history response: %v", err)
	}
	if len(got.History) != 0 {
		t.Errorf("history after delete has %d entries, want 0", len(got.History))
	}
}

func TestHistory_InvalidUserID(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/history/..%2Fetc", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestModelsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got struct {
		Models       map[string]config.ModelProfile `json:"models"`
		DefaultModel string                         `json:"defaultModel"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode models response: %v", err)
	}
	if len(got.Models) != 3 {
		t.Errorf("models count = %d, want 3", len(got.Models))
	}
	if _, ok := got.Models[got.DefaultModel]; !ok {
		t.Errorf("defaultModel %q not in models", got.DefaultModel)
	}
}

func TestImageEndpoint_Validation(t *testing.T) {
	s := newTestServer(t, nil, nil)

	tests := []struct {
		name     string
		filename string
		want     int
	}{
		{"arbitrary name", "evil.png", http.StatusBadRequest},
		{"valid shape but missing", "image_1_00000000-0000-0000-0000-000000000000.png", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/images/"+tt.filename, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeTextGen{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got struct {
		Status        string `json:"status"`
		TextProvider  bool   `json:"textProvider"`
		ImageProvider bool   `json:"imageProvider"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode ready response: %v", err)
	}
	if got.Status != "ok" || !got.TextProvider || got.ImageProvider {
		t.Errorf("ready = %+v, want ok with text provider only", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin header")
	}
}

// newFastScheduler builds a scheduler whose backoff sleeps are skipped so
// throttle-exhaustion tests finish quickly.
func newFastScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	models, err := config.LoadModels()
	if err != nil {
		t.Fatalf("LoadModels() error = %v", err)
	}
	logger := logging.New(logging.LevelError, os.Stderr)
	return scheduler.NewWithSleep(ratelimit.New(models, logger), models, logger,
		func(ctx context.Context, d time.Duration) error { return nil })
}
