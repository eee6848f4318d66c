package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/cache"
	"github.com/lumio-app/lumio/internal/config"
	"github.com/lumio-app/lumio/internal/extract"
	"github.com/lumio-app/lumio/internal/providers"
	"github.com/lumio-app/lumio/internal/queue"
	"github.com/lumio-app/lumio/internal/results"
	"github.com/lumio-app/lumio/internal/server"
	"github.com/lumio-app/lumio/internal/worker"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Lumio server and worker pool",
	Long: `Start the Lumio HTTP API and the document processing workers.

The server provides:
  - POST /api/upload           - Upload a PDF or image for processing
  - GET  /api/jobs/status/{id} - Poll job progress
  - GET  /api/jobs/result/{id} - Fetch the finished result
  - POST /api/analyze          - Synchronous text analysis
  - POST /api/hashtags         - Hashtag suggestions only

Examples:
  lumio serve                  # Start on default port 3000
  lumio serve --port 8080      # Start on custom port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		logger := newLogger(cfg.Log)
		slog.SetDefault(logger)

		cm.OnChange(func(c *config.Config) {
			logger.Info("config reloaded", "log_level", c.Log.Level)
		})
		cm.WatchConfig()

		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = config.ResolveEnvVars(cfg.Redis.Password)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", "url", cfg.Redis.URL)

		client := newAIClient(cfg.Provider, logger)

		q, err := queue.New(ctx, rdb, logger, queue.Config{
			JobTTL:      cfg.Queue.JobTTL,
			MaxAttempts: cfg.Queue.MaxAttempts,
			BackoffBase: cfg.Queue.BackoffBase,
			Lease:       cfg.Queue.Lease,
		})
		if err != nil {
			return err
		}

		store := results.New(rdb, logger, cfg.Queue.JobTTL)
		analysisCache := cache.New(rdb, logger)

		analyzer := analysis.New(analysis.Config{
			Client: client,
			Cache:  analysisCache,
			Logger: logger,
		})
		extractor := extract.New(extract.Config{
			Client:             client,
			Logger:             logger,
			MaxPages:           cfg.Pipeline.MaxPDFPages,
			TextLayerThreshold: cfg.Pipeline.TextLayerThreshold,
			RenderDPI:          cfg.Pipeline.RenderDPI,
			TesseractBin:       cfg.Pipeline.TesseractBin,
		})

		processor := worker.NewProcessor(extractor, analyzer, store, q, logger)
		pool := worker.NewPool(q, processor, logger, worker.PoolConfig{
			Concurrency:  cfg.Queue.Concurrency,
			PromoteEvery: cfg.Queue.PromoteEvery,
		})
		pool.Start(ctx)

		srv := server.New(server.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			UploadDir:      cfg.Pipeline.UploadDir,
			Queue:          q,
			Results:        store,
			Analyzer:       analyzer,
			Redis:          rdb,
			Logger:         logger,
		})

		err = srv.Start(ctx)
		pool.Wait()
		return err
	},
}

// newAIClient builds the configured AI client. A missing API key is not
// fatal: the pipeline degrades to local OCR and heuristic analysis.
func newAIClient(cfg config.ProviderConfig, logger *slog.Logger) providers.AIClient {
	apiKey := config.ResolveEnvVars(cfg.APIKey)
	if apiKey == "" {
		logger.Warn("no AI provider API key configured, running with local OCR and heuristic analysis only")
		return nil
	}

	switch cfg.Type {
	case "", providers.GeminiName:
		return providers.NewGeminiClient(providers.ClientConfig{
			APIKey:     apiKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
			MaxRetries: cfg.MaxRetries,
			RateLimit:  cfg.RateLimit,
		})
	default:
		logger.Warn("unknown provider type, running without AI backend", "type", cfg.Type)
		return nil
	}
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")

	rootCmd.AddCommand(serveCmd)
}
