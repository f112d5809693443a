// Package api provides the local REST API of the launcher.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rennerdo30/ys-launcher/internal/launcher"
	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/updater"
	"github.com/rennerdo30/ys-launcher/internal/version"
	"github.com/rennerdo30/ys-launcher/internal/versioncheck"
)

// Service is the launcher functionality exposed over HTTP.
type Service interface {
	Status(ctx context.Context) launcher.Status
	Check(ctx context.Context) (game, self versioncheck.Result)
	Update(ctx context.Context, cb updater.Callbacks) (*updater.Result, error)
	Launch(ctx context.Context) (int, error)
}

// Update job phases.
const (
	JobDownloading = "downloading"
	JobUnpacking   = "unpacking"
	JobFinished    = "finished"
	JobFailed      = "failed"
)

// UpdateJob is the state of the background update started over the API.
type UpdateJob struct {
	Running    bool            `json:"running"`
	Phase      string          `json:"phase,omitempty"`
	Downloaded float64         `json:"downloaded"`
	Total      float64         `json:"total"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Result     *updater.Result `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// API provides the REST API for the launcher.
type API struct {
	service Service
	metrics http.Handler
	token   string

	mu  sync.Mutex
	job UpdateJob
	wg  sync.WaitGroup
}

// Config holds API configuration.
type Config struct {
	Service Service
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Token   string
}

// New creates a new API server.
func New(cfg Config) *API {
	return &API{
		service: cfg.Service,
		metrics: cfg.Metrics,
		token:   cfg.Token,
	}
}

// Handler returns the HTTP handler for the API.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(securityHeadersMiddleware)

	// Auth middleware if token is set
	if a.token != "" {
		r.Use(a.authMiddleware)
	}

	r.Use(corsMiddleware)

	a.addRoutes(r)
	return r
}

// Wait blocks until a background update started over the API has finished.
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) addRoutes(r chi.Router) {
	r.Get("/api/v1/health", a.handleHealth)
	r.Get("/api/v1/version", a.handleVersion)
	r.Get("/api/v1/status", a.handleStatus)
	r.Get("/api/v1/check", a.handleCheck)

	r.Get("/api/v1/update", a.handleGetUpdate)
	r.Post("/api/v1/update", a.handleStartUpdate)

	r.Post("/api/v1/launch", a.handleLaunch)

	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); isLocalOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isLocalOrigin checks if the origin is from localhost or a loopback address.
func isLocalOrigin(origin string) bool {
	for _, prefix := range []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
		"http://[::1]",
		"https://[::1]",
	} {
		if rest, ok := strings.CutPrefix(origin, prefix); ok {
			if rest == "" || rest[0] == ':' || rest[0] == '/' {
				return true
			}
		}
	}
	return false
}

// securityHeadersMiddleware adds common security headers to all responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"installation": a.service.Status(r.Context()),
		"update":       a.snapshot(),
	})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	game, self := a.service.Check(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"game":     checkResponse(game),
		"launcher": checkResponse(self),
	})
}

func checkResponse(res versioncheck.Result) map[string]interface{} {
	resp := map[string]interface{}{
		"status":          res.Status,
		"remote":          res.Remote,
		"local":           res.Local,
		"update_required": res.UpdateRequired(),
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	return resp
}

func (a *API) handleGetUpdate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.snapshot())
}

func (a *API) handleStartUpdate(w http.ResponseWriter, r *http.Request) {
	if a.service.Status(r.Context()).Running {
		writeError(w, http.StatusConflict, launcher.ErrGameRunning.Error())
		return
	}

	a.mu.Lock()
	if a.job.Running {
		a.mu.Unlock()
		writeError(w, http.StatusConflict, updater.ErrUpdateInProgress.Error())
		return
	}
	now := time.Now()
	a.job = UpdateJob{Running: true, Phase: JobDownloading, StartedAt: &now}
	job := a.job
	a.mu.Unlock()

	a.wg.Add(1)
	go a.runUpdate(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusAccepted, job)
}

func (a *API) runUpdate(ctx context.Context) {
	defer a.wg.Done()

	res, err := a.service.Update(ctx, updater.Callbacks{
		Progress: func(downloaded, total float64) {
			a.mu.Lock()
			a.job.Downloaded, a.job.Total = downloaded, total
			a.mu.Unlock()
		},
		UnpackStarting: func() {
			a.mu.Lock()
			a.job.Phase = JobUnpacking
			a.mu.Unlock()
		},
	})

	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.job.Running = false
	a.job.FinishedAt = &now
	a.job.Result = res
	if err != nil {
		a.job.Phase = JobFailed
		a.job.Error = err.Error()
		logging.Error("update via API failed", "error", err)
		return
	}
	a.job.Phase = JobFinished
}

func (a *API) snapshot() UpdateJob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.job
}

func (a *API) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if a.snapshot().Running {
		writeError(w, http.StatusConflict, updater.ErrUpdateInProgress.Error())
		return
	}

	pid, err := a.service.Launch(r.Context())
	switch {
	case errors.Is(err, launcher.ErrNotInstalled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, launcher.ErrGameRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]int{"pid": pid})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
