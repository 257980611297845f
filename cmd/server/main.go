package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grademark/grademark/internal/exam"
	"github.com/grademark/grademark/internal/grading"
	"github.com/grademark/grademark/internal/httpapi"
	"github.com/grademark/grademark/internal/platform/cache"
	"github.com/grademark/grademark/internal/platform/config"
	"github.com/grademark/grademark/internal/platform/database"
	"github.com/grademark/grademark/internal/session"
	"github.com/grademark/grademark/internal/stream"
	"github.com/grademark/grademark/internal/suggest"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	def, err := loadExamDefinition(cfg)
	if err != nil {
		slog.Error("failed to load exam definition", "error", err)
		os.Exit(1)
	}

	settings := grading.NewSettings(exam.Thresholds{
		AIConfidence: float64(cfg.Thresholds.AIConfidence),
		StudentScore: float64(cfg.Thresholds.StudentScore),
	})

	store, events, cleanup, err := buildStore(ctx, cfg, def)
	if err != nil {
		slog.Error("failed to set up grade store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var mirror *session.Mirror
	if cfg.Cache.URL != "" {
		c, err := cache.Connect(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		mirror = session.NewMirror(c.Client, time.Duration(cfg.Session.TTLHours)*time.Hour)
	}

	hub := stream.NewHub()

	svc := grading.NewService(grading.ServiceConfig{
		Store:       store,
		Events:      events,
		Settings:    settings,
		Broadcaster: hub,
		Mirror:      mirror,
		SessionID:   cfg.Session.ID,
	})

	// With the memory store, a mirrored snapshot from a previous run is
	// the only durable state; pick it up before serving.
	if cfg.Store.Driver == config.StoreMemory {
		if restored, err := svc.RestoreFromMirror(ctx); err != nil {
			slog.Warn("session snapshot restore failed", "error", err)
		} else if restored {
			slog.Info("session snapshot restored")
		}
	}

	var suggestions suggest.Source
	if cfg.Suggest.URL != "" {
		src, err := suggest.NewHTTPSource(cfg.Suggest.URL)
		if err != nil {
			slog.Error("failed to set up suggestion source", "error", err)
			os.Exit(1)
		}
		suggestions = src
	}

	handler := httpapi.New(httpapi.Config{
		Service:     svc,
		Suggestions: suggestions,
		Live:        hub,
		TokenHash:   cfg.Auth.TokenHash,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "exam", def.ID, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// loadExamDefinition loads the configured exam, or the only one on disk
// when no id is configured.
func loadExamDefinition(cfg *config.Config) (exam.Definition, error) {
	loader, err := exam.NewLoader(cfg.Exam.Path)
	if err != nil {
		return exam.Definition{}, err
	}

	if cfg.Exam.ID != "" {
		def, ok := loader.Get(cfg.Exam.ID)
		if !ok {
			return exam.Definition{}, fmt.Errorf("exam %q not found under %s", cfg.Exam.ID, cfg.Exam.Path)
		}
		return def, nil
	}

	defs := loader.All()
	switch len(defs) {
	case 0:
		return exam.Definition{}, fmt.Errorf("no exam definitions under %s", cfg.Exam.Path)
	case 1:
		return defs[0], nil
	default:
		return exam.Definition{}, fmt.Errorf("%d exams under %s, set GRADE_EXAM_ID", len(defs), cfg.Exam.Path)
	}
}

// buildStore creates the configured store backend plus its event logger.
func buildStore(ctx context.Context, cfg *config.Config, def exam.Definition) (grading.GradeStore, grading.EventLogger, func(), error) {
	if cfg.Store.Driver == config.StorePostgres {
		db, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := grading.NewPostgresStore(ctx, db.Pool, def)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return store, grading.NewPostgresEventLogger(db.Pool), db.Close, nil
	}

	repo := &exam.Repository{
		ExamID:             def.ID,
		Questions:          def.Questions,
		StudentSubmissions: []exam.StudentSubmission{},
	}
	return grading.NewMemoryStore(repo), grading.NewMemoryEventLogger(), func() {}, nil
}
