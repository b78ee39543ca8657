package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "prospector/internal/adapters/http"
	pg "prospector/internal/adapters/postgres"
	"prospector/internal/classify"
	"prospector/internal/config"
	"prospector/internal/edgar"
	"prospector/internal/extract"
	"prospector/internal/logging"
	"prospector/internal/ports"
	"prospector/internal/progress"
	"prospector/internal/services/scrape"
	"prospector/internal/stats"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Logging.Level)
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	collector := stats.NewCollector()

	fetcher := edgar.NewFetcher(edgar.FetcherConfig{
		MinInterval: cfg.Registry.MinInterval(),
		UserAgent:   cfg.Registry.UserAgent,
		MaxRetries:  cfg.Registry.MaxRetries,
		BackoffBase: cfg.Registry.BackoffBase(),
		Timeout:     cfg.Registry.RequestTimeout(),
	}, nil, collector)
	walker := edgar.NewWalker(fetcher, edgar.WalkerConfig{
		SubmissionsBaseURL: cfg.Registry.SubmissionsBaseURL,
		ArchiveBaseURL:     cfg.Registry.ArchiveBaseURL,
		TickerIndexURL:     cfg.Registry.TickerIndexURL,
	}, logger)

	classifier := classify.New(classify.Config{
		MinDocumentBytes: cfg.Classifier.MinDocumentBytes,
		KeywordMinBytes:  cfg.Classifier.KeywordMinBytes,
		SizeOnlyMinBytes: cfg.Classifier.SizeOnlyMinBytes,
		Keywords:         cfg.Classifier.Keywords,
	})

	var extractor ports.Extractor
	if cfg.Extraction.Endpoint != "" {
		extractor = extract.NewClient(extract.Config{
			Endpoint:      cfg.Extraction.Endpoint,
			APIKey:        cfg.Extraction.APIKey,
			Model:         cfg.Extraction.Model,
			Timeout:       cfg.Extraction.Timeout(),
			MaxInputBytes: cfg.Extraction.MaxInputBytes,
			MaxRetries:    cfg.Extraction.MaxRetries,
		})
		logger.Info("extraction enabled", "model", cfg.Extraction.Model)
	} else {
		logger.Info("extraction disabled, persisting classification metadata only")
	}

	channel := progress.NewChannel(cfg.Scrape.HistorySize, cfg.Scrape.Heartbeat())
	channel.StartHeartbeat(ctx)

	orchestrator := scrape.New(scrape.Deps{
		Source:     walker,
		Resolver:   walker,
		Classifier: classifier,
		Documents:  db,
		Companies:  db,
		Runs:       db,
		Extractor:  extractor,
		Bodies:     fetcher,
		Progress:   channel,
		Stats:      collector,
		Logger:     logger,
		Workers:    cfg.Scrape.Workers,
		Watchlist:  cfg.Scrape.GlobalWatchlist,
		FormTypes:  cfg.Scrape.FormTypes,
	})

	srv := httpadapter.New(orchestrator, db, channel, collector, logger)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	server := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("listening", "addr", cfg.ListenAddr, "workers", cfg.Scrape.Workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		orchestrator.Shutdown()
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
