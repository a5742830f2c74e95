package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/model"
	"github.com/sells-group/sprawl-cli/internal/pipeline"
	"github.com/sells-group/sprawl-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for sprawl analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		a, err := newAnalyzer(cfg, "")
		if err != nil {
			return err
		}
		st, err := optionalStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		srv := newServer(ctx, &runner{analyzer: a, store: st, defaults: cfg.Analysis})
		return srv.listenAndServe(ctx, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// server serves the analysis API. Analyses accepted asynchronously run
// under baseCtx and are awaited on shutdown.
type server struct {
	runner  *runner
	baseCtx context.Context
	wg      sync.WaitGroup
}

func newServer(ctx context.Context, r *runner) *server {
	return &server{runner: r, baseCtx: ctx}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func (s *server) listenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	s.wg.Wait()
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalyze runs synchronously without a store or with ?wait=true.
// Otherwise it records the run, answers 202 and analyzes in the background.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req model.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wait := s.runner.store == nil || r.URL.Query().Get("wait") == "true"
	ctx := r.Context()
	if !wait {
		ctx = s.baseCtx
	}

	run, preq, err := s.runner.prepare(ctx, req)
	if err != nil {
		if errors.Is(err, errInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("prepare run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record run")
		return
	}

	if !wait {
		accepted := map[string]string{
			"run_id":   run.ID,
			"status":   string(run.Status),
			"district": run.Request.District,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.runner.execute(ctx, run, preq)
		}()
		writeJSON(w, http.StatusAccepted, accepted)
		return
	}

	err = s.runner.execute(ctx, run, preq)
	writeJSON(w, analysisStatus(err), run)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runner.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		Status:   model.RunStatus(q.Get("status")),
		District: q.Get("district"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	runs, err := s.runner.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runner.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	run, err := s.runner.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// analysisStatus maps an analysis outcome to an HTTP status code.
func analysisStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pipeline.ErrDistrictNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrNoImagery), errors.Is(err, pipeline.ErrNoValidTiles):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrCancelled):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrInvalidScale):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
