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

	"github.com/pavelanni/patientsim/internal/chat"
	"github.com/pavelanni/patientsim/internal/handler"
	appI18n "github.com/pavelanni/patientsim/internal/i18n"
	"github.com/pavelanni/patientsim/internal/llm"
	"github.com/pavelanni/patientsim/internal/session"
	"github.com/pavelanni/patientsim/internal/store"
)

const cleanupInterval = time.Hour

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("store", "memory", "Session store (memory, sqlite)")
	f.String("db", "patientsim.db", "SQLite database path (with --store sqlite)")
	f.StringSlice("cases", nil, "Extra patient case JSON files (repeatable)")
	f.String("llm-provider", "openai", "LLM provider (openai, anthropic, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Int("max-tokens", llm.DefaultOptions.MaxTokens, "Maximum tokens per patient reply")
	f.Float32("temperature", llm.DefaultOptions.Temperature, "Sampling temperature")
	f.Int("history-window", chat.DefaultConfig.HistoryWindow, "Number of recent turns sent to the LLM")
	f.Duration("session-ttl", session.DefaultTTL, "How long idle sessions are kept")
	f.StringP("lang", "l", "en", "Default language for API messages (en, ru)")
	f.Bool("skip-llm-check", false, "Do not check the LLM endpoint at startup")
	addLogFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := loadRegistry(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}

	var sessions session.Store
	switch v.GetString("store") {
	case "sqlite":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if n, err := db.SessionCount(ctx); err == nil {
			slog.Info("opened session database", "path", v.GetString("db"), "sessions", n)
		}
		go cleanupLoop(ctx, db)
		sessions = db
	case "memory", "":
		sessions = session.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store %q (want memory or sqlite)", v.GetString("store"))
	}

	lang := v.GetString("lang")
	tr, err := appI18n.New(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := llm.NewGenerator(ctx, llm.Config{
		Provider: v.GetString("llm-provider"),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		Options: llm.Options{
			MaxTokens:   v.GetInt("max-tokens"),
			Temperature: float32(v.GetFloat64("temperature")),
		},
	})
	if err != nil {
		return fmt.Errorf("init LLM: %w", err)
	}
	if !v.GetBool("skip-llm-check") {
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", v.GetString("llm-provider"), "model", v.GetString("llm-model"))
	}

	svc := chat.NewService(llmClient, sessions, reg, chat.Config{
		HistoryWindow: v.GetInt("history-window"),
		SessionTTL:    v.GetDuration("session-ttl"),
	})
	h := handler.New(svc, reg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(tr.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"store", v.GetString("store"),
			"provider", v.GetString("llm-provider"),
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"cases", len(reg.List()),
			"history_window", v.GetInt("history-window"),
			"session_ttl", v.GetDuration("session-ttl"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cleanupLoop removes expired sqlite sessions until ctx is done.
func cleanupLoop(ctx context.Context, db *store.Store) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.CleanupExpired(ctx)
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired sessions", "count", n)
			}
		}
	}
}
