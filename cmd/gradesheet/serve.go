package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/gradesheet/internal/handler"
	appI18n "github.com/pavelanni/gradesheet/internal/i18n"
	"github.com/pavelanni/gradesheet/internal/model"
	"github.com/pavelanni/gradesheet/internal/store"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addDBFlag(f)
	f.String("upload-dir", "uploads", "Directory for uploaded documents")
	f.Int64("max-upload-mb", 10, "Maximum size of each uploaded file in MB")
	f.IntP("workers", "w", 4, "Number of submissions graded concurrently")
	f.Int("queue-size", 64, "Number of submissions that may wait for a worker")
	f.StringP("lang", "l", "en", "Default API message language (en, ru)")
	f.String("admin-password", "", "Initial admin password (or set GRADESHEET_ADMIN_PASSWORD)")
	addGradingFlags(f)
	addLogFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.GradeConfig{
		UploadDir:     v.GetString("upload-dir"),
		MaxUploadMB:   v.GetInt64("max-upload-mb"),
		Workers:       v.GetInt("workers"),
		QueueSize:     v.GetInt("queue-size"),
		PromptVariant: promptVariant(v),
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	g, cleanup, err := newGrader(ctx, v, db, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handler.New(db, g, cfg).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.Run(ctx)
	})
	eg.Go(func() error {
		slog.Info("starting server",
			"addr", addr,
			"provider", v.GetString("llm-provider"),
			"lang", lang,
			"workers", cfg.Workers,
			"prompt_variant", cfg.PromptVariant,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
