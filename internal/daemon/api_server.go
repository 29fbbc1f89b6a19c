package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dripfeed/internal/api"
	"dripfeed/internal/catalog"
	"dripfeed/internal/config"
	"dripfeed/internal/logging"
	"dripfeed/internal/queue"
	"dripfeed/internal/services"
)

const maxSubmitBytes = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      d.cfg.ExecutorTimeout()*time.Duration(max(d.cfg.Workflow.MaxConcurrency, 1)) + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(s.token, s.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(s.token, s.handleJob))
	mux.HandleFunc("/api/tick", authMiddleware(s.token, s.handleTick))
	mux.HandleFunc("/api/catalog", authMiddleware(s.token, s.handleCatalog))
	mux.HandleFunc("/api/catalog/", authMiddleware(s.token, s.handleCatalogApp))
	mux.Handle("/metrics", s.daemon.metrics.Handler())
	return requestIDMiddleware(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var statuses []queue.Status
		for _, value := range r.URL.Query()["status"] {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, ok := queue.ParseStatus(value)
			if !ok {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
				return
			}
			statuses = append(statuses, status)
		}
		jobs, err := s.daemon.jobs.List(r.Context(), statuses...)
		if err != nil {
			s.fail(w, r, "list", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	case http.MethodPost:
		var req api.SubmitRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		job, err := s.daemon.jobs.Submit(r.Context(), req)
		if err != nil {
			s.fail(w, r, "submit", err)
			return
		}
		logging.WithContext(r.Context(), s.logger).Info("job submitted",
			logging.String(logging.FieldEventType, "job_submitted"),
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String("app", job.AppName),
			logging.Int("steps", len(job.RemainingSteps)),
		)
		writeJSON(w, http.StatusCreated, map[string]any{"job": job})
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if idStr == "" || strings.Contains(idStr, "/") {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.daemon.jobs.Describe(r.Context(), id)
		if err != nil {
			s.fail(w, r, "describe", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": job})
	case http.MethodDelete:
		res, err := s.daemon.jobs.Remove(r.Context(), id)
		if err != nil {
			s.fail(w, r, "remove", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary := s.daemon.Tick(r.Context())
	writeJSON(w, http.StatusOK, api.FromSummary(summary, time.Now()))
}

func (s *apiServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	apps := []api.CatalogApp{}
	if s.daemon.catalog != nil {
		apps = api.FromCatalogApps(s.daemon.catalog.Apps())
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

func (s *apiServer) handleCatalogApp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/catalog/")
	if name == "" || strings.Contains(name, "/") || s.daemon.catalog == nil {
		writeJSONError(w, http.StatusNotFound, "app not found")
		return
	}
	app, err := s.daemon.catalog.Lookup(name)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownApp) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.fail(w, r, "catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"app": api.FromCatalogApp(app)})
}

func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("op", op),
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
		)
	}
	writeJSONError(w, status, err.Error())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
