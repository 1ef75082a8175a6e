package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"

	"github.com/liamcoop/timestamps/internal/config"
	"github.com/liamcoop/timestamps/internal/logger"
	"github.com/liamcoop/timestamps/migrations"
	"github.com/liamcoop/timestamps/rules"
	"github.com/liamcoop/timestamps/rulesets"
)

const slowRequestThreshold = time.Second

type Server struct {
	db      *sql.DB
	engine  *rules.Engine
	manager *rulesets.Manager
	router  *chi.Mux
}

// NewServer builds the default engine and, when a database is configured,
// loads every stored rule set
func NewServer(cfg *config.Config) (*Server, error) {
	engine, err := cfg.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to build default engine: %w", err)
	}

	if cfg.DatabaseURL == "" {
		logger.Info("no database configured, serving built-in rules only")
		return newServer(engine, nil, nil), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, err
		}
	}

	manager := rulesets.NewManager(db, cfg.EngineOptions()...)
	if err := manager.LoadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load rule sets: %w", err)
	}

	return newServer(engine, manager, db), nil
}

func newServer(engine *rules.Engine, manager *rulesets.Manager, db *sql.DB) *Server {
	s := &Server{
		db:      db,
		engine:  engine,
		manager: manager,
	}
	s.setupRoutes()
	return s
}

func runMigrations(databaseURL string) error {
	m, err := migrations.New(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/convert", s.handleConvert)
	r.Get("/api/v1/rules", s.handleListDefaultRules)

	// Rule sets live in the database
	if s.manager != nil {
		r.Route("/api/v1/rulesets", func(r chi.Router) {
			r.Get("/", s.handleListRuleSets)
			r.Post("/", s.handleCreateRuleSet)

			r.Route("/{ruleSetId}", func(r chi.Router) {
				r.Get("/", s.handleGetRuleSet)
				r.Delete("/", s.handleUnloadRuleSet)
				r.Get("/options", s.handleGetOptions)
				r.Put("/options", s.handleUpdateOptions)
				r.Post("/seed", s.handleSeed)

				r.Post("/rules", s.handleCreateRule)
				r.Get("/rules", s.handleListRules)
				r.Get("/rules/{ruleId}", s.handleGetRule)
				r.Put("/rules/{ruleId}", s.handleUpdateRule)
				r.Delete("/rules/{ruleId}", s.handleDeleteRule)
			})
		})
	}

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestMetrics logs every request and counts error responses and slow requests
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx()
		}
		if elapsed > slowRequestThreshold {
			logger.WarnSlowRequest()
		}

		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed.String(),
			"requestId", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Counters: logger.Counters(),
	}
	if active, err := s.engine.Rules(); err == nil {
		resp.Rules = len(active)
	}
	if s.manager != nil {
		resp.RuleSetsLoaded = len(s.manager.List())
	}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	engine := s.engine
	if req.RuleSetID != "" {
		if s.manager == nil {
			respondError(w, http.StatusNotFound, "rule sets require a database", nil)
			return
		}
		var err error
		engine, err = s.manager.Engine(req.RuleSetID)
		if err != nil {
			respondError(w, statusFor(err), "rule set not found", err)
			return
		}
	}

	now := engine.Now()
	if req.Now != nil {
		now = time.Unix(*req.Now, 0)
	}

	start := time.Now()
	conv := engine.Explain(req.Text, now)

	respondJSON(w, http.StatusOK, ConvertResponse{
		Text:           conv.Text,
		Now:            conv.Now.Unix(),
		Replacements:   conv.Replacements,
		ConversionTime: time.Since(start).String(),
	})
}

func (s *Server) handleListDefaultRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Store().List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	sets := s.manager.List()
	resp := RuleSetsListResponse{RuleSets: make([]RuleSetResponse, 0, len(sets))}
	for _, rs := range sets {
		resp.RuleSets = append(resp.RuleSets, toRuleSetResponse(rs))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	opts := rulesets.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	if err := rulesets.ValidateName(req.Name); err != nil {
		respondError(w, http.StatusBadRequest, "invalid name", err)
		return
	}
	if err := rulesets.ValidateOptions(opts); err != nil {
		respondError(w, http.StatusBadRequest, "invalid options", err)
		return
	}

	rs, err := s.manager.Create(req.Name, opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule set", err)
		return
	}

	if req.Seed {
		if _, err := s.manager.Seed(rs.ID); err != nil {
			// A failed seed leaves no rule set behind.
			if rmErr := s.manager.Remove(rs.ID); rmErr != nil {
				logger.Error("failed to remove unseeded rule set", "ruleSetId", rs.ID, "error", rmErr)
			}
			respondError(w, http.StatusInternalServerError, "failed to seed rule set", err)
			return
		}
	}

	respondJSON(w, http.StatusCreated, toRuleSetResponse(rs))
}

func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := s.manager.Get(chi.URLParam(r, "ruleSetId"))
	if err != nil {
		respondError(w, statusFor(err), "rule set not found", err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleSetResponse(rs))
}

func (s *Server) handleUnloadRuleSet(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "ruleSetId")); err != nil {
		respondError(w, statusFor(err), "rule set not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	rs, err := s.manager.Get(chi.URLParam(r, "ruleSetId"))
	if err != nil {
		respondError(w, statusFor(err), "rule set not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rs.Options)
}

func (s *Server) handleUpdateOptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleSetId")

	var opts rulesets.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := rulesets.ValidateOptions(opts); err != nil {
		respondError(w, http.StatusBadRequest, "invalid options", err)
		return
	}

	if err := s.manager.UpdateOptions(id, opts); err != nil {
		respondError(w, statusFor(err), "failed to update options", err)
		return
	}
	respondJSON(w, http.StatusOK, opts)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	added, err := s.manager.Seed(chi.URLParam(r, "ruleSetId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to seed rule set", err)
		return
	}
	respondJSON(w, http.StatusOK, SeedResponse{Added: added})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleSetId")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Type == nil {
		respondError(w, http.StatusBadRequest, "type is required", nil)
		return
	}

	rule := req.toRule(req.ID)
	if err := s.manager.AddRule(id, rule); err != nil {
		respondError(w, statusFor(err), "failed to add rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.Engine(chi.URLParam(r, "ruleSetId"))
	if err != nil {
		respondError(w, statusFor(err), "rule set not found", err)
		return
	}

	list, err := engine.Store().List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.Engine(chi.URLParam(r, "ruleSetId"))
	if err != nil {
		respondError(w, statusFor(err), "rule set not found", err)
		return
	}

	rule, err := engine.Store().Get(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleSetId")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Type == nil {
		respondError(w, http.StatusBadRequest, "type is required", nil)
		return
	}

	rule := req.toRule(chi.URLParam(r, "ruleId"))
	if err := s.manager.UpdateRule(id, rule); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.manager.DeleteRule(chi.URLParam(r, "ruleSetId"), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps domain errors to HTTP status codes. Anything unrecognised
// is treated as a validation failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rulesets.ErrRuleSetNotFound), errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	if status >= 500 {
		logger.Error(message, "status", status, "error", err)
	}
	respondJSON(w, status, resp)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML, TOML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	logger.SetLevel(cfg.Level())

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")

	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}
}
