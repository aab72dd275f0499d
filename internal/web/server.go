// Package web provides the HTTP API for the chat backend.
//
// Routes:
//
//	POST   /chat               run a chat turn (text or image)
//	GET    /history/{userID}   fetch a user's conversation history
//	DELETE /history/{userID}   clear a user's conversation history
//	GET    /models             list available models
//	GET    /images/{filename}  serve a generated image
//	GET    /ready              readiness probe
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lashiv/lashivgpt/internal/classify"
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

const (
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration before timing out writes.
	// Chat turns wait in the queue and then on the provider, so this is
	// much longer than a typical API timeout.
	WriteTimeout = 180 * time.Second

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// MaxUploadSize is the maximum size of an attached file (10MB).
	MaxUploadSize = 10 * 1024 * 1024

	// MaxRequestBodySize is the maximum size of POST request bodies.
	// Large enough for an attached file plus multipart overhead.
	MaxRequestBodySize = MaxUploadSize + 1024*1024
)

// textExtensions are file extensions whose content is inlined into the
// prompt when attached to a chat message.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".csv": true, ".log": true, ".xml": true, ".html": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".sh": true,
	".tf": true, ".sql": true,
}

// TextGenerator produces a chat reply with the prior history as context.
type TextGenerator interface {
	Generate(ctx context.Context, modelID string, ctxMessages []conversation.Message, message string) (string, error)
}

// ImageGenerator produces a PNG image for a prompt.
type ImageGenerator interface {
	TextToImage(ctx context.Context, prompt string) (png []byte, b64 string, err error)
}

// FallbackGenerator produces canned replies when all providers are down.
type FallbackGenerator interface {
	Generate(message string) string
}

// Deps holds the injected dependencies for a Server.
// TextGen and ImageGen may be nil when the matching credential is missing;
// the affected endpoints then return a configuration error.
type Deps struct {
	Logger    *logging.Logger
	Models    *config.ModelRegistry
	History   *history.Store
	Images    *images.Store
	Queue     *queue.Queue
	Scheduler *scheduler.Scheduler
	TextGen   TextGenerator
	ImageGen  ImageGenerator
	Fallback  FallbackGenerator

	// BaseURL is the externally visible URL used in image links.
	BaseURL string
}

// Server provides HTTP serving for the chat API.
type Server struct {
	addr   string
	server *http.Server
	logger *logging.Logger

	models    *config.ModelRegistry
	history   *history.Store
	images    *images.Store
	queue     *queue.Queue
	scheduler *scheduler.Scheduler
	textGen   TextGenerator
	imageGen  ImageGenerator
	fallback  FallbackGenerator
	baseURL   string
}

// NewServer creates a server listening on addr with injected dependencies.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		addr:      addr,
		logger:    deps.Logger.WithComponent("web"),
		models:    deps.Models,
		history:   deps.History,
		images:    deps.Images,
		queue:     deps.Queue,
		scheduler: deps.Scheduler,
		textGen:   deps.TextGen,
		imageGen:  deps.ImageGen,
		fallback:  deps.Fallback,
		baseURL:   strings.TrimSuffix(deps.BaseURL, "/"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      withCORS(mux),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /history/{userID}", s.handleGetHistory)
	mux.HandleFunc("DELETE /history/{userID}", s.handleDeleteHistory)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /images/{filename}", s.handleImage)
	mux.HandleFunc("GET /ready", s.handleReady)
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server on http://%s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		s.logger.Info("server stopped")
		return nil

	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// chatRequest is a parsed POST /chat request.
type chatRequest struct {
	UserID        string `json:"userId"`
	Message       string `json:"message"`
	SelectedModel string `json:"selectedModel"`

	// fileContext is built from an attached file, multipart only.
	fileContext string
}

// chatResponse is the POST /chat response body.
type chatResponse struct {
	Reply         string                 `json:"reply"`
	History       []conversation.Message `json:"history"`
	ImageData     string                 `json:"imageData,omitempty"`
	ImageFilename string                 `json:"imageFilename,omitempty"`
}

// textResult carries a finished text turn from the queue worker back to
// the waiting handler.
type textResult struct {
	reply   string
	history []conversation.Message
}

// handleChat runs one chat turn.
// Image requests are served directly; text requests go through the serial
// queue and the retry scheduler.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err := history.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	message := conversation.Sanitize(req.Message)
	modelID := s.models.Resolve(req.SelectedModel)

	if classify.IsImageRequest(message) {
		s.handleImageChat(w, r, req.UserID, message)
		return
	}

	s.handleTextChat(w, r, req.UserID, modelID, message, req.fileContext)
}

// parseChatRequest decodes a JSON or multipart chat request.
func parseChatRequest(r *http.Request) (*chatRequest, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		return parseMultipartChatRequest(r)
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	return &req, nil
}

// parseMultipartChatRequest handles chat requests with an attached file.
func parseMultipartChatRequest(r *http.Request) (*chatRequest, error) {
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return nil, errors.New("invalid multipart request")
	}

	req := &chatRequest{
		UserID:        r.FormValue("userId"),
		Message:       r.FormValue("message"),
		SelectedModel: r.FormValue("selectedModel"),
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil
		}
		return nil, errors.New("invalid file upload")
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxUploadSize)
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize))
	if err != nil {
		return nil, errors.New("failed to read file upload")
	}

	req.fileContext = describeUpload(header.Filename, data)
	return req, nil
}

// describeUpload turns an attached file into prompt context.
// Text files are inlined; binary formats get a placeholder so the model
// knows a file was attached even though it cannot read it.
func describeUpload(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if textExtensions[ext] && utf8.Valid(data) {
		return fmt.Sprintf("Attached file %q:\n%s", filename, string(data))
	}
	return fmt.Sprintf("[Attached file %q (%d bytes). The file is in a binary format and its content could not be read as text.]", filename, len(data))
}

// handleImageChat generates an image and records the turn.
// Image generation bypasses the queue and the model rate limiter; the
// image provider has its own quota accounting.
func (s *Server) handleImageChat(w http.ResponseWriter, r *http.Request, userID, message string) {
	if s.imageGen == nil {
		writeError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	var reply, imageData, imageFilename string

	png, b64, err := s.imageGen.TextToImage(r.Context(), message)
	if err != nil {
		s.logger.Warn("image generation failed: %v", err)
		reply = imageFailureMarkup(message)
	} else {
		filename, saveErr := s.images.Save(png)
		if saveErr != nil {
			s.logger.Error("failed to store generated image: %v", saveErr)
			reply = imageFailureMarkup(message)
		} else {
			reply = imageSuccessMarkup(message, s.baseURL+s.images.URL(filename), filename)
			imageData = b64
			imageFilename = filename
		}
	}

	hist := s.history.Read(userID)
	hist = append(hist,
		conversation.NewMessage(conversation.RoleUser, message),
		conversation.NewMessage(conversation.RoleAssistant, reply),
	)
	if err := s.history.Write(userID, hist); err != nil {
		s.logger.Error("failed to persist history for %s: %v", userID, err)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:         reply,
		History:       hist,
		ImageData:     imageData,
		ImageFilename: imageFilename,
	})
}

// handleTextChat enqueues a text turn and waits for its result.
func (s *Server) handleTextChat(w http.ResponseWriter, r *http.Request, userID, modelID, message, fileContext string) {
	if s.textGen == nil {
		writeError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	resultCh := make(chan textResult, 1)
	s.queue.Enqueue(func(ctx context.Context) {
		resultCh <- s.runTextTurn(ctx, userID, modelID, message, fileContext)
	})

	select {
	case res := <-resultCh:
		writeJSON(w, http.StatusOK, chatResponse{Reply: res.reply, History: res.history})
	case <-r.Context().Done():
		// Client went away; the queued turn still completes and persists.
	}
}

// runTextTurn executes one queued text turn: read history, call the
// scheduler, degrade to a rate-limit notice or a fallback reply on
// failure, and persist the appended history.
//
// History reads and writes for text turns happen inside the single queue
// worker, so concurrent turns for the same user cannot interleave.
func (s *Server) runTextTurn(ctx context.Context, userID, modelID, message, fileContext string) textResult {
	hist := s.history.Read(userID)

	prompt := message
	if fileContext != "" {
		prompt = fmt.Sprintf("File Content:\n%s\n\nUser Question: %s", fileContext, message)
	}

	ctxWindow := conversation.Trim(hist)

	reply, err := s.scheduler.Execute(ctx, modelID, func(ctx context.Context, m string) (string, error) {
		return s.textGen.Generate(ctx, m, ctxWindow, prompt)
	})
	if err != nil {
		reply = s.degradedReply(message, err)
	}

	hist = append(hist,
		conversation.NewMessage(conversation.RoleUser, message),
		conversation.NewMessage(conversation.RoleAssistant, reply),
	)
	if werr := s.history.Write(userID, hist); werr != nil {
		s.logger.Error("failed to persist history for %s: %v", userID, werr)
	}

	return textResult{reply: reply, history: hist}
}

// degradedReply picks the failure reply for a text turn: a rate-limit
// notice when the models were throttled, otherwise an offline fallback.
func (s *Server) degradedReply(message string, err error) string {
	var exhausted *scheduler.ExhaustedError
	if errors.As(err, &exhausted) && provider.IsThrottle(exhausted.LastErr) {
		waitSeconds := 0
		var limitErr *ratelimit.LimitError
		if errors.As(exhausted.LastErr, &limitErr) {
			waitSeconds = limitErr.WaitSeconds
		}
		s.logger.Warn("all models throttled, returning rate limit notice")
		return rateLimitMarkup(waitSeconds)
	}

	s.logger.Warn("text generation failed, returning fallback reply: %v", err)
	return fallbackMarkup(s.fallback.Generate(message))
}

// handleGetHistory returns a user's full conversation history.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if err := history.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":  userID,
		"history": s.history.Read(userID),
	})
}

// handleDeleteHistory clears a user's conversation history.
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if err := history.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	if err := s.history.Delete(userID); err != nil {
		s.logger.Error("failed to delete history for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Conversation history cleared",
	})
}

// handleModels lists the available models and the default.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":       s.models.Profiles(),
		"defaultModel": s.models.Default(),
	})
}

// handleImage serves a generated PNG.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	data, err := s.images.Open(filename)
	if err != nil {
		switch {
		case errors.Is(err, images.ErrInvalidFilename):
			writeError(w, http.StatusBadRequest, "invalid image filename")
		case errors.Is(err, images.ErrNotFound):
			writeError(w, http.StatusNotFound, "image not found")
		default:
			s.logger.Error("failed to read image %s: %v", filename, err)
			writeError(w, http.StatusInternalServerError, "failed to read image")
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}

// handleReady reports readiness and which providers are configured.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"textProvider":  s.textGen != nil,
		"imageProvider": s.imageGen != nil,
	})
}

// withCORS allows the hosted frontend, served from another origin, to call
// the API. Preflight requests are answered directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
