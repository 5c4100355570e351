package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"agrimatch/internal/config"
	"agrimatch/internal/event"
	"agrimatch/internal/matching"
	"agrimatch/internal/model"
	"agrimatch/internal/orders"
	"agrimatch/internal/router"
	"agrimatch/internal/sweeper"
	rediskey "agrimatch/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	// .env 可选，缺失时直接读进程环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(
		&model.AppUser{},
		&model.ProduceListing{},
		&model.BuyerRequest{},
		&model.MatchSuggestion{},
		&model.Order{},
		&model.PayoutQueueEntry{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	// 2. 显式构建依赖：Oracle、撮合、订单侧处理，全部启动时注入一次
	oracle := matching.NewGeminiOracle(cfg.GeminiEndpoint, cfg.GeminiAPIKey, cfg.GeminiModel,
		cfg.GeminiTemp, cfg.GeminiMaxTokens, cfg.OracleTimeout)
	generator := matching.NewGenerator(oracle)
	lifecycle := matching.NewLifecycle(db, generator, cfg.MinScoreThreshold, cfg.SuggestionTTL, cfg.TopNSuggestions)
	orderSvc := orders.NewService(db, rediskey.NewGuard(rdb, 0), cfg.DefaultCurrency)

	// 3. 事件总线：outbox -> relay -> kafka -> consumer 分发触发
	emitter := event.NewEmitter(rdb, cfg.DocEventStream)
	producer := event.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := event.NewRelay(rdb, producer, cfg.DocEventStream, cfg.DocEventGroup, cfg.DocEventConsumer)
	consumer := event.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, event.Handlers{
		OnListingCreated:    lifecycle.HandleNewListing,
		OnRequestCreated:    lifecycle.HandleNewRequest,
		OnSuggestionWritten: orderSvc.CreateFromSuggestion,
		OnOrderWritten:      orderSvc.HandleStatusChange,
	})
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go relay.Run(ctx)
	go consumer.Run(ctx)

	// 4. 过期清扫：每日 cron（时区可配），另有管理端手工入口
	sweep := sweeper.New(db, cfg.SuggestionStaleness)
	cronRunner, err := sweep.Schedule(cfg.SweepCronSpec, cfg.SweepTimezone)
	if err != nil {
		log.Fatalf("sweeper schedule: %v", err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	r := gin.Default()
	router.Setup(r, db, rdb, emitter, sweep, cfg)

	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http serve: %v", err)
	}
}
