package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xscopehub/capmon/internal/api"
	"github.com/xscopehub/capmon/internal/audit"
	"github.com/xscopehub/capmon/internal/auth"
	"github.com/xscopehub/capmon/internal/cache"
	"github.com/xscopehub/capmon/internal/catalog"
	"github.com/xscopehub/capmon/internal/config"
	"github.com/xscopehub/capmon/internal/forecast"
	"github.com/xscopehub/capmon/internal/limiter"
	"github.com/xscopehub/capmon/internal/report"
	"github.com/xscopehub/capmon/internal/series"
	"github.com/xscopehub/capmon/internal/task"
)

// Server hosts the analyze pipeline over HTTP.
type Server struct {
	cfg      config.Config
	router   chi.Router
	logger   *slog.Logger
	auth     *auth.Authenticator
	catalog  *catalog.Store
	cache    *cache.Cache
	limiter  *limiter.Limiter
	auditLog *audit.Logger
	engine   forecast.Engine
}

// New constructs a server with all dependencies wired. A nil engine falls
// back to the default forecasting strategy.
func New(cfg config.Config, logger *slog.Logger, authn *auth.Authenticator, cat *catalog.Store, cacheStore *cache.Cache, limit *limiter.Limiter, auditLog *audit.Logger, engine forecast.Engine) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		auth:     authn,
		catalog:  cat,
		cache:    cacheStore,
		limiter:  limit,
		auditLog: auditLog,
		engine:   engine,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Post("/api/analyze", s.handleAnalyze)
	r.Get("/api/datasources", s.handleDatasources)
	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

// Handler exposes the HTTP handler for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleDatasources(w http.ResponseWriter, _ *http.Request) {
	payload, err := json.Marshal(s.cfg.SourceOptions())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "marshal datasources failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req api.Request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	s.applyDefaults(&req)

	if strings.TrimSpace(req.Query) == "" {
		s.fail(w, r, req, "", start, http.StatusBadRequest, "no query provided")
		return
	}
	if strings.TrimSpace(req.Datasource) == "" {
		s.fail(w, r, req, "", start, http.StatusBadRequest, "no datasource selected")
		return
	}
	if _, err := req.StepDuration(); err != nil {
		s.fail(w, r, req, "", start, http.StatusBadRequest, "invalid step duration")
		return
	}

	user, err := s.auth.Verify(r)
	if err != nil {
		s.fail(w, r, req, "", start, http.StatusUnauthorized, err.Error())
		return
	}

	if err := s.limiter.Allow(r.Context(), callerKey(user, r)); err != nil {
		status := http.StatusTooManyRequests
		if !errors.Is(err, limiter.ErrRateLimited) {
			status = http.StatusInternalServerError
		}
		s.fail(w, r, req, user, start, status, err.Error())
		return
	}

	cacheKey := buildCacheKey(req)
	if payload, ok := s.cache.Get(r.Context(), cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
		s.auditLog.Log(auditEntry(req, user, time.Since(start), true, ""))
		return
	}

	logger := s.logger.With(
		"datasource", req.Datasource,
		"query", req.Query,
		"lookback_days", req.LookbackDays,
		"forecast_days", req.ForecastDays,
	)
	logger.Info("received analysis query")

	ds, err := s.resolveDatasource(r.Context(), req.Datasource)
	if err != nil {
		s.fail(w, r, req, user, start, http.StatusBadRequest, err.Error())
		return
	}

	rep, fetched, err := s.analyze(r.Context(), ds, req, logger)
	if err != nil {
		var execErr task.ExecError
		if errors.As(err, &execErr) {
			logger.Error("analysis failed", "error", execErr.ExecMessage())
			s.fail(w, r, req, user, start, http.StatusBadGateway, execErr.ExecMessage())
			return
		}
		logger.Error("analysis failed", "error", err)
		s.fail(w, r, req, user, start, http.StatusInternalServerError, err.Error())
		return
	}

	resp := api.FromReport(req, rep)
	resp.Stats.Cached = false
	resp.Stats.DurationMS = time.Since(start).Milliseconds()

	payload, err := json.Marshal(resp)
	if err != nil {
		s.fail(w, r, req, user, start, http.StatusInternalServerError, "marshal response failed")
		return
	}

	s.cache.Set(r.Context(), cacheKey, payload)

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)

	entry := auditEntry(req, user, time.Since(start), false, "")
	entry.Series = len(fetched)
	s.auditLog.Log(entry)
}

// analyze runs the fetch and forecast stages as awaited tasks. Each request
// builds its own Query and Forecaster; nothing is shared across requests.
func (s *Server) analyze(ctx context.Context, ds config.Datasource, req api.Request, logger *slog.Logger) (report.Report, []series.Timeseries, error) {
	query, err := ds.QueryFor(req.Query, req.LookbackDays, req.Step, s.cfg.Analysis.FetchTimeout)
	if err != nil {
		return report.Report{}, nil, err
	}

	logger.Info("fetching query data")
	fetched, err := task.Go[[]series.Timeseries](ctx, query).Wait()
	if err != nil {
		return report.Report{}, nil, err
	}

	logger.Info("running analysis for data", "series", len(fetched))
	forecaster := forecast.NewForecaster(fetched, req.ForecastDays, s.engine)
	rep, err := task.Go[report.Report](ctx, forecaster).Wait()
	if err != nil {
		return report.Report{}, nil, err
	}

	return rep, fetched, nil
}

func (s *Server) resolveDatasource(ctx context.Context, name string) (config.Datasource, error) {
	if ds, ok := s.cfg.Datasource(name); ok {
		return ds, nil
	}
	ds, err := s.catalog.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return config.Datasource{}, fmt.Errorf("unknown datasource: %s", name)
		}
		return config.Datasource{}, err
	}
	return ds, nil
}

func (s *Server) applyDefaults(req *api.Request) {
	if req.LookbackDays <= 0 {
		req.LookbackDays = s.cfg.Analysis.DefaultLookbackDays
	}
	if req.ForecastDays <= 0 {
		req.ForecastDays = s.cfg.Analysis.DefaultForecastDays
	}
	if req.Step == "" {
		req.Step = s.cfg.Analysis.DefaultStep
	}
}

func (s *Server) fail(w http.ResponseWriter, _ *http.Request, req api.Request, user string, start time.Time, status int, msg string) {
	s.writeError(w, status, msg)
	s.auditLog.Log(auditEntry(req, user, time.Since(start), false, msg))
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, _ := json.Marshal(map[string]string{"error": msg})
	w.Write(payload)
}

func auditEntry(req api.Request, user string, d time.Duration, cached bool, errMsg string) audit.Entry {
	return audit.Entry{
		User:         user,
		Datasource:   req.Datasource,
		Query:        req.Query,
		LookbackDays: req.LookbackDays,
		ForecastDays: req.ForecastDays,
		Step:         req.Step,
		Duration:     d,
		Cached:       cached,
		Error:        errMsg,
	}
}

func callerKey(user string, r *http.Request) string {
	if user != "" {
		return user
	}
	return r.RemoteAddr
}

func buildCacheKey(req api.Request) string {
	parts := []string{
		req.Datasource,
		req.Query,
		strconv.Itoa(req.LookbackDays),
		strconv.FormatFloat(req.ForecastDays, 'f', -1, 64),
		req.Step,
	}
	return strings.Join(parts, "|")
}
