package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flames/api/internal/auth"
	"flames/api/internal/authpw"
	"flames/api/internal/dashboard"
	"flames/api/internal/metrics"
	"flames/api/internal/moderation"
	"flames/api/internal/store"
)

const defaultMaxMediaBytes = 5 << 20

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	logger         *zap.Logger
	metrics        *metrics.HTTP
	metricsHandler http.Handler
	limiter        *RateLimiter
	maxMediaBytes  int64
}

type ServerOption func(*HTTPServer)

func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *HTTPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics into m and serves handler on /metrics.
func WithMetrics(m *metrics.HTTP, handler http.Handler) ServerOption {
	return func(s *HTTPServer) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

// WithRateLimiter throttles the public form endpoints per client IP.
func WithRateLimiter(limiter *RateLimiter) ServerOption {
	return func(s *HTTPServer) { s.limiter = limiter }
}

func WithMaxMediaBytes(n int64) ServerOption {
	return func(s *HTTPServer) {
		if n > 0 {
			s.maxMediaBytes = n
		}
	}
}

func NewHTTPServer(service *Service, corsOrigin string, opts ...ServerOption) *HTTPServer {
	s := &HTTPServer{
		service:       service,
		corsOrigin:    corsOrigin,
		logger:        zap.NewNop(),
		maxMediaBytes: defaultMaxMediaBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.metricsHandler != nil {
		s.metricsHandler.ServeHTTP(w, r)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleAuthSignIn(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh":
		s.handleAuthRefresh(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout":
		s.handleAuthLogout(w, r)
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "applications":
		s.handleApplications(w, r, parts[2:])
	case "contact":
		if r.Method == http.MethodPost && len(parts) == 2 {
			s.handleContactSubmit(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	case "subscribe":
		if r.Method == http.MethodPost && len(parts) == 2 {
			s.handleSubscribe(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	case "media":
		if r.Method == http.MethodPost && len(parts) == 2 {
			s.handleMediaUpload(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	case "public":
		if r.Method == http.MethodGet && len(parts) == 3 {
			s.handlePublished(w, r, parts[2])
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	case "admin":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleAdmin(w, r, session, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err, "authenticate")
		return Session{}, false
	}
	return session, true
}

// allow applies the per-IP limit to public form posts.
func (s *HTTPServer) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil || s.limiter.Allow(s.limiter.clientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again in a minute", nil)
	return false
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		took := time.Since(started)
		s.metrics.Observe(r.Method, routeLabel(r.URL.Path), writer.status, took)
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", took.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// routeLabel collapses ids and kinds out of a path so metric labels stay
// bounded.
func routeLabel(path string) string {
	if path == "/metrics" {
		return path
	}
	parts := splitPath(path)
	if len(parts) < 2 || parts[0] != "api" {
		return "unmatched"
	}
	switch parts[1] {
	case "applications", "public":
		if len(parts) > 2 {
			parts[2] = "{kind}"
		}
	case "admin":
		if len(parts) > 3 {
			switch parts[2] {
			case "nominations":
				parts[3] = "{kind}"
				if len(parts) > 4 {
					parts[4] = "{id}"
				}
			case "contacts", "subscribers":
				parts[3] = "{id}"
			case "tickets":
				switch parts[3] {
				case "summary", "lookup", "export.csv":
				default:
					parts[3] = "{id}"
				}
			}
		}
	}
	return "/" + strings.Join(parts, "/")
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

// writeServiceError maps err onto the JSON envelope. Unexpected errors are
// logged and reported as "Failed to <action>".
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("action", action),
			zap.Error(err),
		)
		message = "Failed to " + action
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// expectedVersion reads the caller's record version from If-Match, falling
// back to the version query parameter.
func expectedVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("version"))
	}
	if raw == "" {
		return 0, errVersionRequired
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		return 0, domainError(http.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer", nil)
	}
	return version, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var (
		domainErr *DomainError
		dup       *moderation.DuplicateError
		invalid   *moderation.ValidationError
	)
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.As(err, &dup):
		return http.StatusConflict, "DUPLICATE", dup.Message, map[string]any{"field": dup.Field}
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", invalid.Fields
	case errors.Is(err, moderation.ErrUnknownKind):
		return errUnknownKind.Status, errUnknownKind.Code, errUnknownKind.Message, nil
	case errors.Is(err, moderation.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, moderation.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, moderation.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT", "This record changed since you loaded it", nil
	case errors.Is(err, moderation.ErrAlreadyArrived):
		return http.StatusConflict, "ALREADY_CHECKED_IN", "This ticket has already been checked in", nil
	case errors.Is(err, moderation.ErrNoMediaStorage):
		return errMediaUnavailable.Status, errMediaUnavailable.Code, errMediaUnavailable.Message, nil
	case errors.Is(err, dashboard.ErrInvalidCursor):
		return http.StatusBadRequest, "INVALID_CURSOR", "Invalid cursor", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials), errors.Is(err, authpw.ErrMissingFields):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
