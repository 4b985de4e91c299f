package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/geofeed/config"
	"github.com/d60-Lab/geofeed/internal/api"
	"github.com/d60-Lab/geofeed/internal/api/handler"
	"github.com/d60-Lab/geofeed/internal/cache"
	"github.com/d60-Lab/geofeed/internal/push"
	"github.com/d60-Lab/geofeed/internal/ranking"
	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/internal/service"
	"github.com/d60-Lab/geofeed/pkg/database"
	"github.com/d60-Lab/geofeed/pkg/logger"
	"github.com/d60-Lab/geofeed/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Server.Mode, cfg.Server.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, "geofeed", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer shutdown(context.Background()) //nolint:errcheck
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("database init failed", zap.Error(err))
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var (
		locations *cache.LocationCache
		badges    *cache.BadgeCache
	)
	if err := rdb.Ping(ctx).Err(); err != nil {
		// 在场缓存可选：没有 redis 就退化为「发布时不做到场推送」
		logger.Warn("redis unavailable, presence push disabled", zap.Error(err))
	} else {
		locations = cache.NewLocationCache(rdb, 10*time.Minute)
		badges = cache.NewBadgeCache(rdb, 30*time.Second)
	}

	users := repository.NewUserRepository(db)
	places := repository.NewPlaceRepository(db)
	contents := repository.NewContentRepository(db)
	received := repository.NewReceivedRepository(db)
	listens := repository.NewListenRepository(db)

	rank := ranking.NewEngine(cfg.Ranking)
	gateway := push.NewRateLimited(push.LogGateway{}, cfg.Distribution.PushRatePerSec)

	dist := service.NewDistributionEngine(contents, received, listens, places, rank, locations, gateway,
		service.DistributionConfig{
			FanoutWidth:   cfg.Distribution.FanoutWidth,
			BackfillPlace: cfg.Distribution.BackfillPlace,
			BackfillUser:  cfg.Distribution.BackfillUser,
		}).WithBadgeCache(badges)

	repair := service.NewRepairWorker(listens, cfg.Distribution.RepairQueueSize)
	stopRepair := repair.Start(2)
	network := service.NewListenNetwork(listens, dist, service.Sinks{service.LogSink{}, repair})

	contentSvc := service.NewContentService(contents, places, rank, cfg.Tile.Zoom)
	accounts := service.NewAccountService(users, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireHrs)*time.Hour)

	outbox := service.NewOutboxWorker(db, dist, cfg.Distribution.OutboxWorkers, cfg.Distribution.OutboxClaimLimit, 50*time.Millisecond)
	stopOutbox := outbox.Start()

	h := handler.New(accounts, contentSvc, network, dist, places, cfg.Tile.Zoom, cfg.Tile.MaxSpanTiles)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(cfg.Server.Mode, h, accounts),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	_ = stopOutbox(shutdownCtx)
	_ = stopRepair(shutdownCtx)
	_ = rdb.Close()
}
