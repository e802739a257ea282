// Package httpapi exposes the live-session pipeline over HTTP.
//
// Routes mirror the client protocol: JSON bodies for session lifecycle,
// multipart forms for media-bearing submissions. Timestamps on the wire are
// Unix milliseconds.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/core"
	"github.com/memoryglass/memoryglass-go/pkg/llm"
)

// maxUploadBytes bounds multipart parsing memory; larger parts spill to disk.
const maxUploadBytes = 32 << 20

// Server routes HTTP requests to a core.Client.
type Server struct {
	client *core.Client
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server around the client.
func NewServer(client *core.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{client: client, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("/api/live-stream/start", s.handleStart)
	s.mux.HandleFunc("/api/live-stream/chunk", s.handleChunk)
	s.mux.HandleFunc("/api/live-stream/end", s.handleEnd)
	s.mux.HandleFunc("/api/live-answer", s.handleAnswer)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type startRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.client.StartSession(req.UserID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	userID := r.FormValue("userId")
	media, err := readMediaPart(r, "video")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "video part required")
		return
	}

	resp, err := s.client.IngestChunk(r.Context(), userID, media)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.client.EndSession(r.Context(), req.UserID)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := core.AskRequest{
		UserID:   r.FormValue("userId"),
		Question: r.FormValue("question"),
	}
	if ts := r.FormValue("timestamp"); ts != "" {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			req.Timestamp = time.UnixMilli(ms)
		}
	}
	if media, err := readMediaPart(r, "video"); err == nil {
		req.Media = media
	}

	resp, err := s.client.Ask(r.Context(), req)
	if err != nil {
		s.writeTaxonomyError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.client.Health())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.client.Stats())
}

// readMediaPart reads the named multipart file part into an llm.Media.
func readMediaPart(r *http.Request, field string) (*llm.Media, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &llm.Media{MimeType: partMimeType(header), Data: data}, nil
}

// partMimeType resolves the declared content type, guessing video/webm for
// webm uploads that arrive as application/octet-stream.
func partMimeType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		if strings.HasSuffix(strings.ToLower(header.Filename), ".webm") {
			return "video/webm"
		}
	}
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfterSeconds,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// writeTaxonomyError maps pipeline errors to HTTP statuses.
func (s *Server) writeTaxonomyError(w http.ResponseWriter, err error) {
	var rl *core.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
		s.writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:      "rate limited",
			RetryAfter: rl.RetryAfterSeconds(),
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, core.ErrBadInput), errors.Is(err, core.ErrMalformedMedia):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrUnavailable), errors.Is(err, core.ErrTransient):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
