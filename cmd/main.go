package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	api "pricewatch/cmd/pricewatch"
	"pricewatch/conf"
	"pricewatch/internal/middleware"
	"pricewatch/pkg/cache"
	"pricewatch/pkg/db"
	"pricewatch/pkg/kafka"
	"pricewatch/pkg/logger"
)

/*
测试

curl -X POST http://localhost:12180/api/v1/alerts \
  -H "Content-Type: application/json" \
  -d '{"user_id":"u1","symbol":"BTCUSDT","target_price":70000,"type":"ABOVE","duration_type":"ONCE"}'

curl "http://localhost:12180/api/v1/alerts?user_id=u1&page=1&limit=20"
curl "http://localhost:12180/api/v1/crypto/prices?symbols=BTCUSDT,ETHUSDT"
*/

func main() {
	// 加载配置文件
	appCfg, err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(&appCfg.Log, appCfg.AppName)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库，memory 驱动只用于本地调试
	var datasource *gorm.DB
	if appCfg.Db.Driver != "memory" {
		datasource, err = db.Open(db.NewConfig(appCfg.Username, appCfg.Db.Password, appCfg.Host, appCfg.Port, appCfg.DbName))
		if err != nil {
			logger.Fatalf("open database: %v", err)
		}
	}

	// 初始化redis缓存
	var rc *redis.Client
	if appCfg.Cache.Backend == "redis" {
		rc, err = cache.NewRedis(ctx, appCfg.Redis)
		if err != nil {
			logger.Fatalf("init redis: %v", err)
		}
	}

	// 消息队列，重连耗尽时进程退出
	queue, err := kafka.NewClient(appCfg.Kafka, kafka.WithFatalHandler(func(err error) {
		logger.Fatal("kafka unavailable", logger.Err(err))
	}))
	if err != nil {
		logger.Fatalf("init kafka: %v", err)
	}
	if err := queue.EnsureTopics(ctx); err != nil {
		logger.Warnf("ensure kafka topics: %v", err)
	}

	app := api.InitApp(appCfg, datasource, rc, queue)
	if err := app.Start(ctx); err != nil {
		logger.Fatalf("start alert engine: %v", err)
	}

	// 创建并启动服务
	srv := api.NewServer(appCfg)
	srv.RegisterOnShutdown(func() {
		cancel()
		app.Stop()
		if datasource != nil {
			// 关闭主库链接
			if err := db.Close(datasource); err != nil {
				logger.Warnf("close database: %v", err)
			}
		}
		if rc != nil {
			_ = rc.Close()
		}
	})

	srv.Run(middleware.NewMiddleware(), app.Router)
}
