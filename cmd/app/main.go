package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calmwave-audio-service/internal/config"
	"calmwave-audio-service/internal/infra/adapters/denoise"
	"calmwave-audio-service/internal/infra/db/postgres"
	"calmwave-audio-service/internal/infra/logging"
	"calmwave-audio-service/internal/infra/metrics"
	redisinfra "calmwave-audio-service/internal/infra/redis"
	"calmwave-audio-service/internal/infra/sched"
	"calmwave-audio-service/internal/infra/storage"
	"calmwave-audio-service/internal/infra/transcode"
	"calmwave-audio-service/internal/infra/web"
	"calmwave-audio-service/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	dev := flag.Bool("dev", false, "development mode: console logs, no sampling")
	flag.Parse()

	if err := run(*configPath, *dev); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, dev bool) error {
	cfg, err := config.LoadConfig(configPath, dev)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Log, dev)
	logger.Info().Bool("dev", dev).Msg("calmwave audio service starting")

	// The pipeline is useless without ffmpeg; refuse to start quietly broken.
	if err := transcode.CheckBinary(cfg.Transcode.FFmpegBin); err != nil {
		return fmt.Errorf("ffmpeg check: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	metrics.MustRegister()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	var limiter *redisinfra.RateLimiter
	if cfg.Redis.URL != "" {
		redisCli, err := redisinfra.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisCli.Close()
		limiter = redisinfra.NewRateLimiter(redisCli)
		logger.Info().Msg("upload rate limiter enabled")
	} else {
		logger.Warn().Msg("redis not configured, upload rate limiting disabled")
	}

	chunks, err := storage.NewChunkStore(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("init chunk store: %w", err)
	}
	artifacts, err := storage.NewArtifactStore(cfg.Storage.UploadDir, cfg.Storage.WavDir, cfg.Storage.ProcessedDir)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	cleaner := storage.NewCleaner(cfg.Storage.UploadDir, cfg.Storage.WavDir, logger)

	transcoder := transcode.NewFFmpegTranscoder(cfg.Transcode.SampleRate, cfg.Transcode.Bitrate, cfg.Transcode.Timeout, logger)
	denoiser, err := denoise.NewHTTPClient(cfg.Denoise.URL, cfg.Denoise.Intensity, cfg.Denoise.Timeout, logger)
	if err != nil {
		return fmt.Errorf("init denoise client: %w", err)
	}

	repo := postgres.NewSubmissionRepo(pool)
	uc := usecase.NewSubmissionUseCase(repo, transcoder, denoiser, chunks, artifacts, cleaner, logger)

	worker := sched.NewRedispatchWorker(repo, uc, cfg.Denoise.RetryInterval, logger)
	go worker.Run(ctx)

	srv := web.NewServer(cfg, logger, uc, artifacts, limiter)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("goodbye")
	return nil
}
