package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"triage-assistant/internal/app"
	"triage-assistant/internal/chat"
	"triage-assistant/internal/config"
	"triage-assistant/internal/observability"
	"triage-assistant/internal/triage"
	"triage-assistant/internal/vitals"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	observability.Setup(cfg.LogFile, cfg.LogToConsole, cfg.LogLevel)
	cfg.LogSummary()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		observability.Logger().Error("startup failed", "error", err)
		os.Exit(1)
	}
	a.Run(ctx)

	var stt triage.Transcriber
	if a.STT != nil {
		stt = a.STT
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.RequestContext)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Route("/api", func(r chi.Router) {
		vitals.RegisterRoutes(r, vitals.NewHandler(a.Monitor, a.Home))
		triage.RegisterRoutes(r, triage.NewHandler(a.Triage, stt))
		chat.RegisterRoutes(r, chat.NewHandler(a.Chat))
	})

	srv := newHTTPServer(":"+cfg.Port, r)

	go func() {
		observability.Logger().Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Logger().Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	observability.Logger().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.Logger().Error("http shutdown failed", "error", err)
	}
	if err := a.Close(); err != nil {
		observability.Logger().Error("cleanup failed", "error", err)
	}
}
