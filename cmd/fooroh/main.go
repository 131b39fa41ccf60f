// fooroh — сервис бота водяных знаков для Bluesky.
//
// Процесс:
//   - Собирает общие ресурсы (хранилища, очереди, секреты) по выбранным бэкендам
//   - Запускает пять пайплайнов: follow, signup, set-watermark-image, watermarking, signout
//   - Опционально читает Jetstream и раскладывает посты по очередям
//   - Отдаёт /healthz, /metrics и API статуса
//
// Конфигурация читается из переменных окружения (см. internal/config).
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/shaiso/fooroh/internal/api"
	"github.com/shaiso/fooroh/internal/bot"
	"github.com/shaiso/fooroh/internal/config"
	"github.com/shaiso/fooroh/internal/engine"
	"github.com/shaiso/fooroh/internal/firehose"
	"github.com/shaiso/fooroh/internal/mq"
	"github.com/shaiso/fooroh/internal/pipeline"
	"github.com/shaiso/fooroh/internal/queue"
	"github.com/shaiso/fooroh/internal/repo"
	"github.com/shaiso/fooroh/internal/secrets"
	"github.com/shaiso/fooroh/internal/social"
	"github.com/shaiso/fooroh/internal/storage"
	"github.com/shaiso/fooroh/internal/telemetry"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(telemetry.LoggerConfig{
		Service: cfg.AppName,
		Level:   telemetry.ParseLevel(cfg.LogLevel),
		Format:  cfg.LogFormat,
	})
	logger.Info("starting fooroh",
		"stage", cfg.Stage,
		"queue_backend", cfg.QueueBackend,
		"storage_backend", cfg.StorageBackend,
		"secret_backend", cfg.SecretBackend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fooroh stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("fooroh stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// Ресурсы
	res, closeRes, err := buildResources(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeRes)

	// Хранилище execution'ов
	var store engine.ExecutionStore
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		if err := repo.Migrate(ctx, pool); err != nil {
			return err
		}
		store = repo.NewExecutionRepo(pool)
		logger.Info("execution records stored in postgres")
	}

	// Пайплайны
	accounts := bot.NewAccounts(social.NewDialer(social.ClientConfig{
		Service:   cfg.BskyService,
		ChatProxy: cfg.BskyChatService,
	}))

	set, err := pipeline.NewSet(pipeline.SetConfig{
		Resources: res,
		Options: pipeline.Options{
			Deps:            bot.Deps{Accounts: accounts},
			SignupEnabled:   cfg.SignupEnabled,
			SignupSchedule:  cfg.SignupInterval,
			SignoutSchedule: cfg.SignoutInterval,
			KeepOriginal:    !cfg.WatermarkDeleteOriginal,
			Remotes:         cfg.RemoteWorkers,
			HTTPClient:      &http.Client{Timeout: 5 * time.Minute},
			Logger:          logger,
		},
		Store:       store,
		Concurrency: cfg.EngineConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("compose pipelines: %w", err)
	}

	if cfg.FirehoseEnabled {
		if err := addFirehose(set, res, accounts, cfg, logger); err != nil {
			return err
		}
	}

	if err := set.Start(ctx); err != nil {
		return err
	}

	// HTTP: /healthz, /metrics, API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())
	api.NewHandler(api.Config{Service: set, Logger: logger}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serverErr:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if stopErr := set.Stop(); stopErr != nil && !errors.Is(stopErr, context.Canceled) {
		logger.Error("pipelines stopped with error", "error", stopErr)
	}
	return err
}

// buildResources создаёт хранилища, очереди и провайдер секретов.
func buildResources(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pipeline.CommonResources, func(), error) {
	closer := func() {}

	needAWS := cfg.StorageBackend == config.BackendS3 || cfg.SecretBackend == config.BackendSSM
	var s3Client *s3.Client
	var ssmClient *ssm.Client
	if needAWS {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, closer, fmt.Errorf("load aws config: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
		ssmClient = ssm.NewFromConfig(awsCfg)
	}

	var sp secrets.Provider
	switch cfg.SecretBackend {
	case config.BackendSSM:
		sp = secrets.NewSSM(ssmClient, cfg.SecretName)
	default:
		static, err := secrets.NewStaticJSON(cfg.SecretJSON)
		if err != nil {
			return nil, closer, fmt.Errorf("secret bundle: %w", err)
		}
		sp = static
	}

	var buckets map[string]storage.Bucket
	switch cfg.StorageBackend {
	case config.BackendS3:
		buckets = pipeline.NewS3Buckets(s3Client, cfg.BucketPrefix)
	default:
		buckets = pipeline.NewMemoryBuckets()
	}

	var queues map[string]queue.Queue
	switch cfg.QueueBackend {
	case config.BackendAMQP:
		conn, err := mq.NewConnection(cfg.AMQPURL, logger)
		if err != nil {
			return nil, closer, fmt.Errorf("connect rabbitmq: %w", err)
		}
		closer = func() { conn.Close() }
		queues, err = pipeline.NewAMQPQueues(ctx, conn, logger)
		if err != nil {
			return nil, closer, err
		}
		logger.Info("RabbitMQ connected")
	default:
		queues = pipeline.NewMemoryQueues()
	}

	res, err := pipeline.NewCommonResources(buckets, queues, sp)
	if err != nil {
		return nil, closer, err
	}
	return res, closer, nil
}

// addFirehose подключает Jetstream и диспетчер постов к набору пайплайнов.
func addFirehose(set *pipeline.Set, res *pipeline.CommonResources, accounts *bot.Accounts, cfg config.Config, logger *slog.Logger) error {
	setWatermark, ok := res.Queue(bot.QueueSetWatermarkImg)
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrUnknownQueue, bot.QueueSetWatermarkImg)
	}
	watermarking, ok := res.Queue(bot.QueueWatermarking)
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrUnknownQueue, bot.QueueWatermarking)
	}

	flog := logger.With("component", "firehose")
	dispatcher := firehose.NewDispatcher(firehose.DispatcherConfig{
		Accounts:        accounts,
		Secrets:         res.Secrets(),
		SetWatermark:    setWatermark,
		Watermarking:    watermarking,
		RefreshInterval: cfg.FirehoseRefresh,
		Logger:          flog,
	})
	source := firehose.NewJetstream(firehose.JetstreamConfig{
		URL:     cfg.FirehoseURL,
		Handler: dispatcher.Handle,
		Logger:  flog,
	})

	set.Add("firehose-dispatcher", dispatcher)
	set.Add("firehose-jetstream", source)
	return nil
}
