package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"kitchenledger/server/internal/alerts"
	"kitchenledger/server/internal/api"
	"kitchenledger/server/internal/catalog"
	"kitchenledger/server/internal/config"
	"kitchenledger/server/internal/database"
	"kitchenledger/server/internal/inventory"
	"kitchenledger/server/internal/lifecycle"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/notify"
	"kitchenledger/server/internal/observability"
	"kitchenledger/server/internal/orders"
	"kitchenledger/server/internal/uow"
	"kitchenledger/server/internal/utils"
)

func main() {
	// .env необязателен: в production переменные приходят из окружения
	envErr := godotenv.Load()

	cfg := config.Load()

	log, err := observability.NewLogger(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if envErr != nil {
		log.Info("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Info("✅ Переменные окружения загружены из .env файла")
	}
	log.Info("📋 DATABASE_URL установлен", zap.String("url", maskURL(cfg.DatabaseURL)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		log.Warn("⚠️ Трейсинг не настроен", zap.Error(err))
	}

	// PostgreSQL обязателен: без него складской учет невозможен
	db, err := database.ConnectPostgres(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("❌ PostgreSQL connection failed", zap.Error(err))
	}
	defer database.ClosePostgres(db)

	if err := models.AutoMigrate(db, orders.TableNames(), log); err != nil {
		log.Fatal("❌ Migration failed", zap.Error(err))
	}
	log.Info("✅ Database migrations completed")

	if cfg.TransactionMode != config.TxModeOff && !database.SupportsTransactions(db) {
		log.Warn("⚠️ Хранилище не поддерживает транзакции, складские операции пойдут в режиме best-effort",
			zap.String("mode", cfg.TransactionMode))
	}

	// Redis опционален: без него нет кэша каталога, Pub/Sub и множества алертов
	var redisUtil *utils.RedisClient
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName, log)
	if err != nil {
		log.Warn("⚠️ Redis connection failed (continuing without Redis)", zap.Error(err))
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
		defer database.CloseRedis(redisClient)
	}

	// Уведомления об изменении остатков
	hub := notify.NewHub(log)
	go hub.Run(ctx)
	log.Info("📱 WebSocket Hub запущен для потока остатков")

	notifiers := notify.Fanout{}
	if redisUtil != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(redisUtil, cfg.StockSyncChannel, log))

		// Все экземпляры сервера получают события друг друга через Redis и отдают их своим WS клиентам
		messages, closeSub := redisUtil.Subscribe(ctx, cfg.StockSyncChannel)
		defer closeSub()
		go hub.RelayFromRedis(ctx, messages)
	} else {
		notifiers = append(notifiers, hub)
	}

	if brokers := notify.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		transport := notify.CreateKafkaTransport(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert, log)
		kafkaNotifier := notify.NewKafkaNotifier(brokers, cfg.StockSyncTopic, transport, log)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
		log.Info("📡 Kafka stock sync включен", zap.Strings("brokers", brokers), zap.String("topic", cfg.StockSyncTopic))
	} else {
		log.Info("ℹ️ KAFKA_BROKERS не установлен, синхронизация через Kafka отключена")
	}

	alertWorker := alerts.NewWorker(db, redisUtil, cfg.AlertQueueSize, log)
	go alertWorker.Run(ctx)

	// Складской движок и диспетчер статусов
	menu := catalog.NewService(db, redisUtil, cfg.CatalogCacheTTL, log)
	warehouses := catalog.NewWarehouses(db)
	repo := orders.NewRepository(db)

	engine := inventory.NewEngine(menu, warehouses, repo, cfg.DefaultWarehouse, log)
	engine.SetNotifier(notifiers)
	engine.SetAlerts(alertWorker)

	dispatcher := lifecycle.NewDispatcher(db, repo, engine, cfg.TransactionMode, cfg.TxMaxRetries, log)
	log.Info("✅ Inventory engine initialized",
		zap.String("tx_mode", cfg.TransactionMode),
		zap.String("default_warehouse", cfg.DefaultWarehouse))

	var receiptUnit uow.UnitOfWork = uow.NewTransactional(db, cfg.TxMaxRetries, log)
	if cfg.TransactionMode == config.TxModeOff {
		receiptUnit = uow.NewBestEffort(db)
	}

	// HTTP API
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	api.SetupRouter(r, api.Controllers{
		Orders:  api.NewOrderController(dispatcher, repo),
		Stock:   api.NewStockController(db, receiptUnit, warehouses, notifiers, alertWorker, cfg.DefaultWarehouse),
		StockWS: api.NewStockWSController(hub, log),
	})

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health
	healthServer := health.NewServer()
	grpcServer := api.NewGRPCServer(healthServer)
	go api.WatchDatabaseHealth(ctx, db, healthServer, 15*time.Second, log)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.Error("❌ failed to listen gRPC", zap.Error(err))
			return
		}
		log.Info("📡 gRPC health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("❌ failed to serve gRPC", zap.Error(err))
		}
	}()

	// Периодическое логирование статистики памяти
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logMemoryStats(log)
			}
		}
	}()

	go func() {
		log.Info("🚀 Server starting", zap.String("port", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("❌ HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("⚠️ HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("⚠️ Tracing shutdown error", zap.Error(err))
	}
	log.Info("✅ Server stopped")
}

// requestLogger логирует все запросы
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("🌐 request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// maskURL скрывает логин и пароль в строке подключения
func maskURL(raw string) string {
	idx := strings.Index(raw, "@")
	schemeIdx := strings.Index(raw, "://")
	if idx > 0 && schemeIdx > 0 && schemeIdx < idx {
		return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
	}
	return raw
}

// logMemoryStats логирует текущую статистику использования памяти
func logMemoryStats(log *zap.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	heapAllocMB := float64(m.HeapAlloc) / 1024 / 1024
	numGoroutines := runtime.NumGoroutine()

	log.Debug("💾 Memory Stats",
		zap.Float64("heap_alloc_mb", heapAllocMB),
		zap.Float64("sys_mb", float64(m.Sys)/1024/1024),
		zap.Uint32("gc", m.NumGC),
		zap.Int("goroutines", numGoroutines))

	if numGoroutines > 100 {
		log.Warn("⚠️ High number of goroutines detected", zap.Int("goroutines", numGoroutines))
	}
}
