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

	"github.com/olistqa/olistqa/internal/api"
	"github.com/olistqa/olistqa/internal/api/uistatic"
	"github.com/olistqa/olistqa/internal/assistant"
	"github.com/olistqa/olistqa/internal/auth"
	"github.com/olistqa/olistqa/internal/completion"
	"github.com/olistqa/olistqa/internal/config"
	"github.com/olistqa/olistqa/internal/dataset"
	"github.com/olistqa/olistqa/internal/migrations"
	"github.com/olistqa/olistqa/internal/nl2sql"
	"github.com/olistqa/olistqa/internal/observability"
	duckdbengine "github.com/olistqa/olistqa/internal/query/duckdb"
	"github.com/olistqa/olistqa/internal/session"
	"github.com/olistqa/olistqa/internal/session/memory"
	sessionpostgres "github.com/olistqa/olistqa/internal/session/postgres"
	s3store "github.com/olistqa/olistqa/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("olistqa-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelStartup()

	source, err := datasetSource(startupCtx, cfg)
	if err != nil {
		logger.Error("failed to configure dataset source", slog.Any("error", err))
		os.Exit(1)
	}
	files, release, err := source.Resolve(startupCtx)
	if err != nil {
		logger.Error("failed to resolve dataset files", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := duckdbengine.Open(nl2sql.WorkingTable)
	if err != nil {
		logger.Error("failed to open duckdb", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	info, err := engine.LoadWorkingTable(startupCtx, files)
	release()
	if err != nil {
		logger.Error("failed to load working table", slog.Any("error", err))
		os.Exit(1)
	}
	if err := engine.Seal(startupCtx); err != nil {
		logger.Error("failed to seal working table", slog.Any("error", err))
		os.Exit(1)
	}
	observability.SetWorkingTableRows(info.RowCount)
	logger.Info("working table loaded",
		slog.String("table", info.Name),
		slog.Int64("rows", info.RowCount),
		slog.Time("max_timestamp", info.MaxTimestamp),
	)

	vocabulary, err := nl2sql.LoadVocabulary(cfg.Assistant.VocabularyFile)
	if err != nil {
		logger.Error("failed to load vocabulary", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := completion.New(completion.Config{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	asker, err := assistant.New(client, engine, assistant.Options{
		Rewriter:                   nl2sql.Rewriter{AsOf: info.MaxTimestamp, Vocabulary: vocabulary},
		PreviewRows:                cfg.Assistant.PreviewRows,
		SummarySampleRows:          cfg.Assistant.SummarySampleRows,
		RepairTranslatesCategories: cfg.Assistant.RepairTranslatesCategories,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	store, closeStore, err := sessionStore(startupCtx, cfg)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	service, err := assistant.NewService(store, asker, logger, cfg.Assistant.MaxQuestionLength)
	if err != nil {
		logger.Error("failed to initialize conversation service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:        logger,
		Conversations: service,
		Dataset:       engine,
		UI:            uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckWorkingTable(engine),
			api.CheckSessionStore(store),
			api.CheckCompletionConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("data_covers_up_to", asker.AsOfDate()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func datasetSource(ctx context.Context, cfg config.Config) (dataset.Source, error) {
	switch cfg.Dataset.Source {
	case config.DatasetSourceLocal:
		return dataset.LocalSource{Dir: cfg.Dataset.Dir, Format: cfg.Dataset.Format}, nil
	case config.DatasetSourceObject:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
			ReadOnly:        true,
		})
		if err != nil {
			return nil, err
		}
		return dataset.ObjectSource{Store: store, Prefix: cfg.Dataset.Prefix, Format: cfg.Dataset.Format}, nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.Dataset.Source)
	}
}

func sessionStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	switch cfg.SessionStore.Driver {
	case config.SessionStoreMemory:
		return memory.NewStore(
			memory.WithMaxSessions(cfg.SessionStore.MemoryMaxSessions),
			memory.WithIdleTTL(cfg.SessionStore.MemoryIdleTTL),
		), func() {}, nil
	case config.SessionStorePostgres:
		db, err := sessionpostgres.Open(ctx, sessionpostgres.DBConfig{
			DSN:             cfg.SessionStore.DSN,
			MaxOpenConns:    cfg.SessionStore.MaxOpenConns,
			MaxIdleConns:    cfg.SessionStore.MaxIdleConns,
			ConnMaxIdleTime: cfg.SessionStore.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.SessionStore.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		pending, err := migrations.NewRunner().Pending(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("check session schema: %w", err)
		}
		if pending > 0 {
			_ = db.Close()
			return nil, nil, fmt.Errorf("session schema has %d pending migration(s); run olistqa-migrate", pending)
		}
		return sessionpostgres.NewStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.SessionStore.Driver)
	}
}
