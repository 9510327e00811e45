package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	myPostgresRepo "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/postgres"
	myRedisRepo "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/redis"
	myHttp "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http"
	appsvc "github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/service"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/account-service/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/server"
	"golang.org/x/sync/errgroup"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		lg.Must("").Fatal("failed to load config", zap.Error(err))
	}

	zapLog := lg.Must(cfg.LogLevel)
	defer zapLog.Sync()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := openStore(cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to open account store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	validate := validator.New()
	core, err := appsvc.New(store, cfg.Settings(), validate, zapLog.Named("account"))
	if err != nil {
		zapLog.Fatal("failed to init account service", zap.Error(err))
	}
	svc, err := metrics.Instrument(core, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("failed to register metrics", zap.Error(err))
	}

	router := myHttp.NewRouter(myHttp.Deps{
		Service:  svc,
		Store:    store,
		Gatherer: prometheus.DefaultGatherer,
		Validate: validate,
		Logger:   zapLog,
	}, myHttp.RouterConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: cfg.AllowCredentials,
		ExposeCodes:      cfg.ExposeCodes,
	})

	srv := &http.Server{Addr: cfg.HTTPAddress, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		return server.StartGRPCServer(ctx, cfg.GRPCAddress, store, zapLog)
	})

	g.Go(func() error {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		zapLog.Info("shutdown signal received")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
	}
}

// openStore connects the configured backend and returns the repo with its
// cleanup function.
func openStore(cfg *config.Config, log *zap.Logger) (repo.AccountRepo, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return myRedisRepo.NewRedisAccountRepo(redisCli), func() { _ = redisCli.Close() }, nil

	default:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Up(sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		log.Info("migrations applied")
		return myPostgresRepo.NewPostgresAccountRepo(db), func() { _ = sqlDB.Close() }, nil
	}
}
