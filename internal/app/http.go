package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"newsroom/api/internal/search"
	"newsroom/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		if s.service.SearchHealthy() {
			checks["search"] = map[string]any{"status": "ok"}
		} else {
			// Degraded, not fatal: the full-text fallback still serves.
			checks["search"] = map[string]any{"status": "degraded"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/feed" {
		payload, err := s.service.Feed(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/feed/") {
		parts := splitPath(r.URL.Path)
		if len(parts) == 3 {
			view, err := s.service.FeedItem(r.Context(), parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/threads" {
		statusFilter := strings.TrimSpace(r.URL.Query().Get("status"))
		views := s.service.Threads()
		if statusFilter != "" {
			filtered := make([]ThreadView, 0, len(views))
			for _, view := range views {
				if view.Status == statusFilter {
					filtered = append(filtered, view)
				}
			}
			views = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{"threads": views, "count": len(views)})
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/threads/") {
		parts := splitPath(r.URL.Path)
		if len(parts) == 3 {
			view, err := s.service.Thread(parts[2])
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/stories" {
		filter := store.StoryFilter{
			ThreadID:      strings.TrimSpace(r.URL.Query().Get("threadId")),
			PriorityClass: strings.TrimSpace(r.URL.Query().Get("priorityClass")),
			Topic:         strings.TrimSpace(r.URL.Query().Get("topic")),
			Limit:         queryInt(r, "limit", 50),
			Offset:        queryInt(r, "offset", 0),
		}
		payload, err := s.service.Stories(r.Context(), filter)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
			return
		}
		resp := s.service.Search(search.Query{
			Text:                q,
			FilterType:          search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
			FilterCommunity:     strings.TrimSpace(r.URL.Query().Get("community")),
			FilterPriorityClass: strings.TrimSpace(r.URL.Query().Get("priorityClass")),
			Limit:               queryInt(r, "limit", 20),
			Offset:              queryInt(r, "offset", 0),
		})
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/pipeline" {
		writeJSON(w, http.StatusOK, s.service.PipelineStatus())
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/pipeline/start" {
		var input StartPipelineInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.StartPipeline(input); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, s.service.PipelineStatus())
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/pipeline/stop" {
		s.service.StopPipeline()
		writeJSON(w, http.StatusOK, s.service.PipelineStatus())
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/maintenance" {
		writeJSON(w, http.StatusOK, map[string]any{"state": s.service.MaintenanceState()})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/maintenance/run" {
		report, err := s.service.RunMaintenance(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if r.Method == http.MethodDelete && r.URL.Path == "/api/history" {
		confirmed := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("confirm")), "true")
		if err := s.service.ClearHistory(r.Context(), confirmed); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body means "use the defaults".
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

