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

	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/artifact"
	"github.com/Brownie44l1/pneumo-api/internal/auth"
	"github.com/Brownie44l1/pneumo-api/internal/config"
	"github.com/Brownie44l1/pneumo-api/internal/events"
	"github.com/Brownie44l1/pneumo-api/internal/handlers"
	"github.com/Brownie44l1/pneumo-api/internal/imaging"
	"github.com/Brownie44l1/pneumo-api/internal/model"
	"github.com/Brownie44l1/pneumo-api/internal/model/onnx"
	"github.com/Brownie44l1/pneumo-api/internal/pipeline"
	"github.com/Brownie44l1/pneumo-api/internal/saliency"
	"github.com/Brownie44l1/pneumo-api/internal/service"
	"github.com/Brownie44l1/pneumo-api/internal/storage"
)

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	meta, err := model.LoadMetadata(cfg.ModelMetadata)
	if err != nil {
		return err
	}

	var backbone model.Backbone
	if cfg.ModelBackend == config.BackendONNX {
		b, err := onnx.New(meta, cfg.ONNXLibraryPath)
		if err != nil {
			return err
		}
		defer b.Close()
		backbone = b
	}
	network, err := model.LoadNetwork(meta, backbone)
	if err != nil {
		return err
	}
	logger.Info("model loaded",
		zap.String("backend", cfg.ModelBackend),
		zap.String("targetLayer", network.TargetLayer()),
		zap.Strings("classes", meta.Classes),
	)

	normalizer, err := imaging.NewNormalizer(meta)
	if err != nil {
		return err
	}
	p := pipeline.New(normalizer, network, saliency.NewGenerator(meta.ImageSize, logger), logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher artifact.Publisher
	staticDir := cfg.HeatmapDir
	if cfg.S3Bucket != "" {
		publisher, err = artifact.NewS3Publisher(artifact.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			return err
		}
		staticDir = ""
	} else {
		publisher = artifact.NewStaticPublisher(cfg.PublicBaseURL)
	}
	if err := os.MkdirAll(cfg.HeatmapDir, 0o755); err != nil {
		return err
	}

	var ev events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.ConnectProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		kafka := events.NewKafkaPublisher(producer, cfg.KafkaTopic, logger)
		defer kafka.Close()
		ev = kafka
	}

	var (
		resolver auth.Resolver
		issuer   service.Issuer
	)
	switch cfg.AuthMode {
	case config.AuthOkta:
		resolver = auth.NewOktaResolver(cfg.OktaDomain, cfg.OktaClientID, store)
	default:
		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, store)
		if err != nil {
			return err
		}
		resolver, issuer = tokens, tokens
	}

	analyses := service.NewAnalysisService(p, store, publisher, ev, cfg.HeatmapDir, logger)
	accounts := service.NewAccountService(store, issuer, logger)
	handler := handlers.NewHandler(analyses, accounts, resolver, cfg.MaxUpload, logger)
	router := handlers.NewRouter(handler, handlers.RouterOptions{
		CORSOrigin: cfg.CORSOrigin,
		HeatmapDir: staticDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("auth", cfg.AuthMode))
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, func(), error) {
	var (
		store   storage.Store
		closers []func()
	)
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = storage.NewMemory()
	} else {
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { pg.Close() })
		store = pg
	}

	if cfg.RedisAddr != "" {
		client, err := storage.OpenRedis(ctx, storage.RedisOptions{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		store = storage.NewCachedStore(store, client, cfg.HistoryCacheTTL, logger)
	}

	return store, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
