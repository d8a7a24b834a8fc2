package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type api struct {
	store *Store
	log   *slog.Logger
	bus   *EventBus
	// rate limiting buckets per IP:key
	rlMu sync.Mutex
	rl   map[string]*rateBucket
}

func newAPI(store *Store, log *slog.Logger) *api {
	return &api{store: store, log: log, bus: NewEventBus(), rl: map[string]*rateBucket{}}
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func (a *api) allow(ip, key string, max int, window time.Duration) bool {
	now := time.Now()
	rk := ip + ":" + key
	a.rlMu.Lock()
	b, ok := a.rl[rk]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{count: 0, resetAt: now.Add(window)}
		a.rl[rk] = b
	}
	if b.count >= max {
		a.rlMu.Unlock()
		return false
	}
	b.count++
	a.rlMu.Unlock()
	return true
}

func (a *api) withRateLimit(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if !a.allow(ip, name, max, window) {
			writeError(w, 429, "too many requests")
			return
		}
		next(w, r)
	}
}

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func (a *api) sessionTTL() time.Duration {
	if v := getenv("SESSION_TTL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 14 * 24 * time.Hour
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// fail maps store sentinels to their status codes; anything unexpected is
// logged and hidden behind a generic 500.
func (a *api) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, "not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, 403, "forbidden")
	case errors.Is(err, ErrConflict):
		writeError(w, 409, "conflict")
	case errors.Is(err, ErrNoFields):
		writeError(w, 400, "no updatable fields")
	default:
		a.log.Error(op, "err", err)
		writeError(w, 500, "internal error")
	}
}

// principal is the caller's identity with its admin capability resolved once
// at the auth boundary. Handlers check the flag, never role names.
type principal struct {
	User
}

func (p *principal) canModifyTask(t Task) bool {
	if p.IsAdmin {
		return true
	}
	return t.AuthorID != nil && *t.AuthorID == p.ID
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func (a *api) principal(r *http.Request) (*principal, error) {
	tok := bearerToken(r)
	if tok == "" {
		return nil, ErrNotFound
	}
	u, err := a.store.UserBySession(r.Context(), tok)
	if err != nil {
		return nil, err
	}
	return &principal{User: u}, nil
}

// requireAuth wraps a handler and enforces a valid bearer token
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.principal(r); err != nil {
			writeError(w, 401, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (a *api) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.principal(r)
		if err != nil {
			writeError(w, 401, "unauthorized")
			return
		}
		if !p.IsAdmin {
			writeError(w, 403, "forbidden")
			return
		}
		next(w, r)
	}
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status,
			"dur_ms", time.Since(start).Milliseconds(), "request_id", reqID)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Implement http.Flusher if underlying writer supports it (needed for SSE)
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (a *api) routes(mux *http.ServeMux) {
	// Auth
	mux.HandleFunc("POST /api/auth/register", a.withRateLimit("auth", 20, time.Minute, a.handleRegister))
	mux.HandleFunc("POST /api/auth/login", a.withRateLimit("auth", 30, time.Minute, a.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/auth/me", a.handleMe)
	mux.HandleFunc("PATCH /api/auth/me", a.handleUpdateMe)

	// Admin: users and roles
	mux.HandleFunc("GET /api/auth/users", a.requireAdmin(a.handleListAccounts))
	mux.HandleFunc("POST /api/auth/users", a.requireAdmin(a.handleCreateAccount))
	mux.HandleFunc("PATCH /api/auth/users/{id}", a.requireAdmin(a.handleUpdateAccount))
	mux.HandleFunc("DELETE /api/auth/users/{id}", a.requireAdmin(a.handleDeleteAccount))
	mux.HandleFunc("GET /api/auth/roles", a.requireAdmin(a.handleListRoles))
	mux.HandleFunc("POST /api/auth/roles", a.requireAdmin(a.handleCreateRole))
	mux.HandleFunc("PATCH /api/auth/roles/{id}", a.requireAdmin(a.handleUpdateRole))
	mux.HandleFunc("DELETE /api/auth/roles/{id}", a.requireAdmin(a.handleDeleteRole))

	// Reference data
	mux.HandleFunc("GET /api/refs/projects", a.requireAuth(a.handleListProjects))
	mux.HandleFunc("POST /api/refs/projects", a.requireAdmin(a.handleCreateProject))
	mux.HandleFunc("GET /api/refs/projects/{id}", a.requireAuth(a.handleGetProject))
	mux.HandleFunc("PATCH /api/refs/projects/{id}", a.requireAdmin(a.handleUpdateProject))
	mux.HandleFunc("DELETE /api/refs/projects/{id}", a.requireAdmin(a.handleDeleteProject))
	mux.HandleFunc("GET /api/refs/projects/{id}/members", a.requireAuth(a.handleProjectMembers))
	mux.HandleFunc("GET /api/refs/statuses", a.requireAuth(a.handleListStatuses))
	mux.HandleFunc("POST /api/refs/statuses", a.requireAdmin(a.handleCreateStatus))
	mux.HandleFunc("PATCH /api/refs/statuses/{id}", a.requireAdmin(a.handleUpdateStatus))
	mux.HandleFunc("DELETE /api/refs/statuses/{id}", a.requireAdmin(a.handleDeleteStatus))
	mux.HandleFunc("GET /api/refs/priorities", a.requireAuth(a.handleListPriorities))
	mux.HandleFunc("POST /api/refs/priorities", a.requireAdmin(a.handleCreatePriority))
	mux.HandleFunc("DELETE /api/refs/priorities/{id}", a.requireAdmin(a.handleDeletePriority))
	mux.HandleFunc("GET /api/refs/task-types", a.requireAuth(a.handleListTaskTypes))
	mux.HandleFunc("POST /api/refs/task-types", a.requireAdmin(a.handleCreateTaskType))
	mux.HandleFunc("DELETE /api/refs/task-types/{id}", a.requireAdmin(a.handleDeleteTaskType))
	mux.HandleFunc("GET /api/refs/users", a.requireAuth(a.handleListUsers))

	// Tasks
	mux.HandleFunc("GET /api/tasks", a.requireAuth(a.handleListTasks))
	mux.HandleFunc("POST /api/tasks", a.requireAuth(a.handleCreateTask))
	mux.HandleFunc("GET /api/tasks/{id}", a.requireAuth(a.handleGetTask))
	mux.HandleFunc("PATCH /api/tasks/{id}", a.requireAuth(a.handleUpdateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", a.requireAuth(a.handleDeleteTask))
	mux.HandleFunc("GET /api/tasks/{id}/comments", a.requireAuth(a.handleCommentsByTask))
	mux.HandleFunc("POST /api/tasks/{id}/comments", a.requireAuth(a.handleAddComment))
	mux.HandleFunc("GET /api/tasks/{id}/history", a.requireAuth(a.handleTaskHistory))

	// Events & health
	mux.HandleFunc("GET /api/events", a.requireAuth(a.handleEvents))
	mux.HandleFunc("GET /api/health", a.handleHealth)
}
