package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/olistqa/olistqa/internal/config"
	"github.com/olistqa/olistqa/internal/observability"
	"github.com/olistqa/olistqa/internal/seed"
	s3store "github.com/olistqa/olistqa/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("olistqa-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink seed.Sink
	switch seedCfg.Target {
	case seed.TargetObject:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		sink = seed.ObjectSink{Store: store, Prefix: seedCfg.Prefix}
	default:
		sink = seed.DirSink{Dir: seedCfg.Dir}
	}

	data, err := seed.NewGenerator(seedCfg.Seed).Generate(seedCfg.Options())
	if err != nil {
		logger.Error("failed to generate dataset", slog.Any("error", err))
		os.Exit(1)
	}

	written, err := seed.Write(ctx, sink, data)
	if err != nil {
		logger.Error("failed to write dataset", slog.Any("error", err))
		os.Exit(1)
	}
	for _, file := range written {
		logger.Info("dataset file written",
			slog.String("name", file.Name),
			slog.String("location", file.Location),
			slog.Int("rows", file.Rows),
			slog.Int("bytes", file.Bytes),
		)
	}
	logger.Info("seed complete",
		slog.String("target", seedCfg.Target),
		slog.Int64("seed", seedCfg.Seed),
		slog.Time("end", seedCfg.End),
	)
}
