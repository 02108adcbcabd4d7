package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pricewatch/conf"
	"pricewatch/internal/dao"
	"pricewatch/internal/dao/memory"
	"pricewatch/internal/dao/query"
	"pricewatch/internal/handler/alert"
	"pricewatch/internal/handler/crypto"
	"pricewatch/internal/handler/symbol"
	"pricewatch/internal/market"
	"pricewatch/internal/router"
	"pricewatch/internal/service"
	"pricewatch/pkg/cache"
	"pricewatch/pkg/kafka"
	"pricewatch/pkg/logger"
)

// App 进程内所有长生命周期组件
type App struct {
	Router *router.ApiRouter

	alerts *service.AlertService
	stream *market.TradeStream
	queue  *kafka.Client
	cache  cache.Store
	cfg    *conf.Config
}

// NewDAOs 根据 database.driver 选择存储实现，db 为 nil 时使用内存存储
func NewDAOs(db *gorm.DB) (dao.AlertDAO, dao.SymbolDAO) {
	if db == nil {
		return memory.NewAlertDAO(), memory.NewSymbolDAO()
	}
	return query.NewAlertDAO(db), query.NewSymbolDAO(db)
}

// NewStore 根据 cache.backend 选择查询缓存
func NewStore(cfg conf.CacheConfig, rc *redis.Client) cache.Store {
	if cfg.Backend == "redis" && rc != nil {
		return cache.NewRedisStore(rc, cfg.Prefix, cfg.TTL)
	}
	return cache.NewMemoryStore(cfg.TTL)
}

func InitApp(cfg *conf.Config, db *gorm.DB, rc *redis.Client, queue *kafka.Client) *App {
	alertDAO, symbolDAO := NewDAOs(db)
	store := NewStore(cfg.Cache, rc)

	alertService := service.NewAlertService(alertDAO, store, queue, cfg.Alert, cfg.Cache.TTL)
	stream := market.NewTradeStream(cfg.Stream, alertService)
	alertService.SetSubscriber(stream)

	symbolService := service.NewSymbolService(symbolDAO)
	priceService := service.NewPriceService(cfg.Stream.RestURL, &http.Client{Timeout: 10 * time.Second})

	apiRouter := router.NewApiRouter(
		alert.NewHandler(alertService),
		symbol.NewHandler(symbolService),
		crypto.NewHandler(priceService),
	)

	return &App{
		Router: apiRouter,
		alerts: alertService,
		stream: stream,
		queue:  queue,
		cache:  store,
		cfg:    cfg,
	}
}

// Start 启动后台任务：行情订阅、提醒创建事件消费、过期清理、缓存清理
func (a *App) Start(ctx context.Context) error {
	symbols, err := a.alerts.WatchedSymbols(ctx)
	if err != nil {
		return err
	}
	a.stream.Start(ctx, symbols)

	go func() {
		if err := a.queue.Consume(ctx, kafka.TopicPriceAlerts, a.cfg.Kafka.GroupID, a.alerts.HandleAlertCreated); err != nil {
			logger.Error("price alert consumer exited", logger.Err(err))
		}
	}()
	go a.alerts.RunExpirationSweep(ctx)

	if ms, ok := a.cache.(*cache.MemoryStore); ok {
		go ms.Run(ctx)
	}
	return nil
}

// Stop 关闭行情连接与消息队列
func (a *App) Stop() {
	if err := a.stream.Close(); err != nil {
		logger.Warn("close trade stream", logger.Err(err))
	}
	if err := a.queue.Close(); err != nil {
		logger.Warn("close kafka client", logger.Err(err))
	}
}
