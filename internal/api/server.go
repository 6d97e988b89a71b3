package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bull/policy-rag/internal/rag"
)

// Version is reported by / and /health.
const Version = "1.0.0"

const maxBodyBytes = 1 << 20

// Pipeline is the question-answering surface. rag.Pipeline satisfies it.
type Pipeline interface {
	Query(ctx context.Context, req rag.Request) (*rag.Response, error)
	SearchAndSummarize(ctx context.Context, question string, topK int) (string, error)
	History() []rag.Entry
	ClearHistory()
}

// Config holds handler dependencies.
type Config struct {
	Pipeline    Pipeline
	Index       Index
	CORSOrigins []string
	TopK        int     // Default top_k for advanced queries
	MinScore    float64 // Default min_score for advanced queries
	Logger      *slog.Logger
}

// Server routes REST requests to the pipeline.
type Server struct {
	pipeline Pipeline
	topK     int
	minScore float64
	logger   *slog.Logger
	handler  http.Handler
}

// NewServer builds the REST handler tree.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK < 1 || topK > MaxTopK {
		topK = rag.DefaultTopK
	}
	s := &Server{
		pipeline: cfg.Pipeline,
		topK:     topK,
		minScore: cfg.MinScore,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", NewHealthHandler(cfg.Index, Version))
	mux.HandleFunc("POST /api/query/basic", s.handleBasic)
	mux.HandleFunc("POST /api/query/advanced", s.handleAdvanced)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("GET /", NewLandingHandler(Version))

	s.handler = withCORS(cfg.CORSOrigins, mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// withCORS answers preflight requests and tags responses for allowed origins.
func withCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(origins, "*") || slices.Contains(origins, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, ErrorResponse{Error: title, Detail: detail, Timestamp: now()})
}

// decode reads a JSON body of bounded size into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("request body must be a JSON object")
	}
	return nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrMalformedInput):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, rag.ErrIndexNotLoaded), errors.Is(err, rag.ErrNotFound):
		return http.StatusServiceUnavailable, "Index Unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	case errors.Is(err, rag.ErrEmbedding), errors.Is(err, rag.ErrGeneration):
		return http.StatusBadGateway, "Upstream Error"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func validateQuestion(q string) string {
	if strings.TrimSpace(q) == "" {
		return "question must not be empty"
	}
	if len([]rune(q)) > MaxQuestionChars {
		return "question must be at most 500 characters"
	}
	return ""
}

func validateTopK(k int) string {
	if k < 1 || k > MaxTopK {
		return "top_k must be between 1 and 10"
	}
	return ""
}
