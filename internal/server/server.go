// Package server exposes sessions over HTTP: one agent per session id,
// routed with chi and instrumented with the observability middlewares.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/history"
	"github.com/KaramelBytes/dataloom-cli/internal/observability"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
)

// Info is served at /v1/info for front ends.
type Info struct {
	AppTitle      string `json:"app_title"`
	SidebarHeader string `json:"sidebar_header"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Version       string `json:"version"`
}

type Dependencies struct {
	Store  *Store
	Info   Info
	Logger *slog.Logger
	// MaxUploadBytes caps request bodies on the dataset route; 0 disables the cap.
	MaxUploadBytes int64
}

type handler struct {
	deps   Dependencies
	logger *slog.Logger
}

type ctxKey struct{}

func NewHandler(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	h := &handler{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observability.TraceMiddleware)
	r.Use(observability.MetricsMiddleware)
	r.Use(observability.LoggingMiddleware(logger))

	r.Get("/v1/health", h.health)
	r.Get("/v1/info", h.info)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(h.session)
			r.Delete("/", h.deleteSession)
			r.Post("/reset", h.resetSession)
			r.Put("/dataset", h.uploadDataset)
			r.Get("/summary", h.summary)
			r.Post("/ask", h.ask)
			r.Get("/log", h.log)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.deps.Store.Len()})
}

func (h *handler) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Info)
}

func (h *handler) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, ok := h.deps.Store.Get(id)
		if !ok {
			writeError(r.Context(), w, http.StatusNotFound, "session_not_found", "unknown session", map[string]any{"session_id": id})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, a)))
	})
}

func agentFrom(r *http.Request) *agent.Agent {
	return r.Context().Value(ctxKey{}).(*agent.Agent)
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	id, _, err := h.deps.Store.Create()
	if errors.Is(err, ErrTooManySessions) {
		writeError(r.Context(), w, http.StatusTooManyRequests, "too_many_sessions", err.Error(), nil)
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create session failed", slog.Any("error", err))
		writeError(r.Context(), w, http.StatusInternalServerError, "session_create_failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	h.deps.Store.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) resetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Store.Reset(id); !ok {
		writeError(r.Context(), w, http.StatusNotFound, "session_not_found", "unknown session", map[string]any{"session_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "reset"})
}

// uploadDataset accepts either a multipart form with a "file" field or a raw
// body named by the filename query parameter.
func (h *handler) uploadDataset(w http.ResponseWriter, r *http.Request) {
	if h.deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes)
	}
	filename, raw, err := readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "file_too_large", dataset.ErrFileTooLarge.Error(), map[string]any{"limit_bytes": maxErr.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "invalid_upload", err.Error(), nil)
		return
	}

	a := agentFrom(r)
	ds, err := a.Load(filename, raw)
	if err != nil {
		status, code := loadErrorStatus(err)
		writeError(r.Context(), w, status, code, err.Error(), map[string]any{"filename": filename})
		return
	}
	pa, err := a.PreAnalysis()
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "pre_analysis_failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      ds.Message(),
		"pre_analysis": pa,
	})
}

func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return "", nil, err
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil, errors.New(`multipart upload needs a "file" field`)
			}
			if err != nil {
				return "", nil, err
			}
			if part.FormName() != "file" {
				continue
			}
			raw, err := io.ReadAll(part)
			if err != nil {
				return "", nil, err
			}
			return filepath.Base(part.FileName()), raw, nil
		}
	}
	name := r.URL.Query().Get("filename")
	if name == "" {
		return "", nil, errors.New("filename query parameter is required for raw uploads")
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(name), raw, nil
}

func loadErrorStatus(err error) (int, string) {
	var decErr *dataset.DecodeError
	switch {
	case errors.Is(err, dataset.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, dataset.ErrNoTabularFileInArchive):
		return http.StatusBadRequest, "no_tabular_file"
	case errors.As(err, &decErr):
		return http.StatusBadRequest, "decode_failed"
	default:
		return http.StatusBadRequest, "load_failed"
	}
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	pa, err := agentFrom(r).PreAnalysis()
	if errors.Is(err, agent.ErrNoDataset) {
		writeError(r.Context(), w, http.StatusConflict, "no_dataset", err.Error(), nil)
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "pre_analysis_failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, pa)
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string         `json:"question"`
	Code     string         `json:"code"`
	Result   result.Payload `json:"result"`
}

func (h *handler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid_question", "question cannot be empty", nil)
		return
	}
	a := agentFrom(r)
	if a.Dataset() == nil {
		writeError(r.Context(), w, http.StatusConflict, "no_dataset", agent.ErrNoDataset.Error(), nil)
		return
	}
	ans := a.Ask(r.Context(), req.Question)
	writeJSON(w, http.StatusOK, askResponse{Question: ans.Question, Code: ans.Code, Result: ans.Payload})
}

func (h *handler) log(w http.ResponseWriter, r *http.Request) {
	l := agentFrom(r).Log()
	if r.URL.Query().Get("format") == "jsonl" {
		var buf bytes.Buffer
		if err := l.Export(&buf); err != nil {
			h.logger.WarnContext(r.Context(), "log export failed", slog.Any("error", err))
			writeError(r.Context(), w, http.StatusInternalServerError, "export_failed", err.Error(), nil)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}
	records := l.All()
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// writeJSON encodes before writing the header so an unencodable payload
// turns into a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]string{
			"error_code": "encode_failed",
			"message":    err.Error(),
			"trace_id":   w.Header().Get("X-Trace-ID"),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	payload := map[string]any{
		"error_code": code,
		"message":    message,
		"trace_id":   observability.TraceIDFromContext(ctx),
	}
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

// Serve runs the handler on addr until ctx is cancelled, then drains
// in-flight requests for up to five seconds.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
