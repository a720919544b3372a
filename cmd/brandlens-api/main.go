package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"brandlens/internal/analyzer"
	"brandlens/internal/breaker"
	"brandlens/internal/cache"
	"brandlens/internal/config"
	"brandlens/internal/distill"
	"brandlens/internal/fetcher"
	server "brandlens/internal/http"
	"brandlens/internal/llm"
	"brandlens/internal/oplog"
	"brandlens/internal/safety"
	"brandlens/internal/scan"
	"brandlens/internal/sched"
	"brandlens/internal/social"
	"brandlens/internal/vision"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	ops, err := oplog.New(filepath.Join(cfg.Data.Dir, "oplog"))
	if err != nil {
		log.Fatalf("oplog init failed: %v", err)
	}

	// Two-stage content acquisition: managed scraper first, headless browser
	// as fallback. Either stage may be absent.
	var scraper, browser fetcher.Engine
	if cfg.Fetcher.ScraperBaseURL != "" {
		scraper = fetcher.NewManagedScraper(
			cfg.Fetcher.ScraperBaseURL,
			cfg.Fetcher.ScraperAPIKey,
			cfg.Fetcher.Country,
			time.Duration(cfg.Fetcher.ScraperTimeoutMs)*time.Millisecond,
		)
	}
	if cfg.Fetcher.BrowserEnabled {
		browser = fetcher.NewRodFetcher(cfg.Fetcher.BrowserURL, time.Duration(cfg.Fetcher.BrowserTimeoutMs)*time.Millisecond)
	}
	if scraper == nil && browser == nil {
		log.Fatal("no fetch engine configured: set fetcher.scraperBaseURL or fetcher.browserEnabled")
	}
	engine := fetcher.NewCascade(scraper, browser)

	breakers := breaker.NewRegistry(cfg.Breaker.Threshold, time.Duration(cfg.Breaker.CooldownSeconds)*time.Second, logger)
	llmClient := llm.NewClient(cfg.LLM, breakers, logger)
	budget := sched.New(cfg.LLM.Concurrency, cfg.LLM.TPMLimit)

	results := cache.NewResultCache(
		filepath.Join(cfg.Cache.Dir, "results"),
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		cfg.Cache.RedisURL,
		logger,
	)
	screenshots := cache.NewScreenshotStore(
		filepath.Join(cfg.Data.Dir, "screenshots"),
		time.Duration(cfg.Stream.ScreenshotTTLMinutes)*time.Minute,
		logger,
	)

	analyze := analyzer.New(llmClient, budget, results, nil, ops, cfg.LLM.PromptVersion, logger)

	policy := safety.NewPolicy()

	svc := &scan.Services{
		Fetcher:     engine,
		Analyzer:    analyze,
		Vision:      vision.NewRunner(analyze, logger),
		Summarizer:  llmClient,
		Screenshots: screenshots,
		Distiller:   distill.New(),
		Social:      social.NewHarvester(engine, 20*time.Second),
		HTTP:        policy.HTTPClient(20 * time.Second),
		Ops:         ops,
		Cfg:         cfg,
		Log:         logger,
	}

	registry := scan.NewRegistry(svc, cfg.Stream.ChannelSize, time.Duration(cfg.Stream.ScanTTLMinutes)*time.Minute)
	registry.StartGC(context.Background(), time.Minute)

	srv := server.NewServer(cfg, registry, policy, screenshots, logger)
	logger.Info("starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := srv.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
