package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/summary"
)

const (
	DefaultAddr     = "127.0.0.1:5100"
	shutdownTimeout = 15 * time.Second
)

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

var errInvalidName = errors.New("invalid report name")

type store struct {
	dir string
}

func (s *store) list() ([]string, error) {
	return summary.ListReports(s.dir)
}

func (s *store) load(name string) (*summary.Report, error) {
	if !validName.MatchString(name) || strings.HasPrefix(name, ".") {
		return nil, errInvalidName
	}
	return summary.LoadReport(filepath.Join(s.dir, name+".json"))
}

type App struct {
	router *chi.Mux
	log    *zap.Logger
}

// New builds the report browser over the reports stored in resultsDir.
func New(resultsDir string, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	s := &store{dir: resultsDir}

	registry := prometheus.NewRegistry()
	registry.MustRegister(newReportCollector(s))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	h := &handlers{store: s, log: log}
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{name}", h.report)
		r.Get("/{name}/text", h.text)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return &App{router: r, log: log}
}

func (app *App) Handler() http.Handler {
	return app.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (app *App) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.log.Info("report server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("report server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	app.log.Info("shutting down report server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("report server shutdown: %w", err)
	}
	return nil
}

type handlers struct {
	store *store
	log   *zap.Logger
}

func (h *handlers) list(w http.ResponseWriter, _ *http.Request) {
	names, err := h.store.list()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.log.Error("failed to list reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": names})
}

func (h *handlers) loadOrFail(w http.ResponseWriter, r *http.Request) (*summary.Report, bool) {
	name := chi.URLParam(r, "name")
	report, err := h.store.load(name)
	switch {
	case err == nil:
		return report, true
	case errors.Is(err, errInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "report not found")
	default:
		h.log.Error("failed to load report", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
	}
	return nil, false
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	if report, ok := h.loadOrFail(w, r); ok {
		writeJSON(w, http.StatusOK, report)
	}
}

func (h *handlers) text(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadOrFail(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, b := range report.Benchmarks {
		for _, v := range b.Variations {
			fmt.Fprintf(w, "%s %s (concurrency %d)\n", b.Name, v.Query, v.Concurrency)
			fmt.Fprintln(w, summary.Text(v.Data))
		}
	}
	summary.WriteSummary(w, report)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func formatThreshold(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
