package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nelsonwm45/senti-mochi-go/internal/archive"
	"github.com/nelsonwm45/senti-mochi-go/internal/backend"
	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
	"github.com/nelsonwm45/senti-mochi-go/internal/config"
	"github.com/nelsonwm45/senti-mochi-go/internal/llm"
	"github.com/nelsonwm45/senti-mochi-go/internal/logger"
	"github.com/nelsonwm45/senti-mochi-go/internal/news"
	"github.com/nelsonwm45/senti-mochi-go/internal/server"
	"github.com/nelsonwm45/senti-mochi-go/internal/watchlist"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatalw("failed to load configuration", "error", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.File)

	// Local storage is best-effort: the app still works without it, it just
	// loses the offline archive and the watchlist.
	var archiveStore *archive.Store
	var watchStore *watchlist.Store
	if cfg.Store.Path != "" {
		archiveStore, err = archive.Open(cfg.Store.Path)
		if err != nil {
			logger.L.Warnw("archive unavailable", "path", cfg.Store.Path, "error", err)
		} else {
			defer archiveStore.Close()
			watchStore, err = watchlist.New(archiveStore.DB())
			if err != nil {
				logger.L.Warnw("watchlist unavailable", "error", err)
			}
		}
	}

	convOpts := chat.Options{
		StageDelay:    time.Duration(cfg.Chat.StageDelayMS) * time.Millisecond,
		CompleteDelay: time.Duration(cfg.Chat.CompleteDelayMS) * time.Millisecond,
		HistoryLimit:  cfg.Chat.HistoryLimit,
	}
	if archiveStore != nil {
		convOpts.Archive = archiveStore
	}

	srvOpts := server.Options{
		Streaming: cfg.Chat.Streaming,
		Watchlist: watchStore,
	}

	var source chat.ResponseSource
	switch {
	case cfg.Backend.BaseURL != "":
		client := backend.New(cfg.Backend)
		source = client
		srvOpts.Deleter = client
		logger.L.Infow("using retrieval backend", "baseUrl", cfg.Backend.BaseURL)
	case cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "":
		source = llm.NewSource(llm.NewClient(cfg.LLM), cfg.LLM)
		logger.L.Infow("no backend configured, answering with the LLM directly", "model", cfg.LLM.Model)
	default:
		logger.L.Fatalw("no response source configured; set backend.base_url or llm.api_key")
	}

	if cfg.News.APIKey != "" {
		srvOpts.News = news.NewClient(cfg.News)
	}
	if archiveStore != nil {
		srvOpts.Archive = archiveStore
	}

	conv := chat.NewConversation(source, convOpts)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(conv, srvOpts).Router(),
	}

	go func() {
		logger.L.Infow("starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatalw("server listen error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Errorw("server shutdown error", "error", err)
	}
	logger.L.Infow("server shutdown complete")
}
