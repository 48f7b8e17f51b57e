package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tale-server/internal/config"
	"tale-server/internal/handler"
	"tale-server/internal/messaging"
	appMiddleware "tale-server/internal/middleware"
	"tale-server/internal/repository"
	"tale-server/internal/service"
	"tale-server/migrations"
	"tale-server/pkg/database"
	"tale-server/pkg/logger"
	"tale-server/pkg/migration"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	migrateDown := flag.Bool("migrate-down", false, "откатить все миграции схемы и выйти")
	flag.Parse()

	_ = godotenv.Load()
	log.Println("Запуск Tale Server...")

	// Загружаем конфиг ДО инициализации логгера
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	ctx := context.Background()

	// Подключение к PostgreSQL
	dbPool, err := database.NewPool(ctx, database.Config{
		DSN:             cfg.GetDSN(),
		MaxConns:        cfg.DBMaxConns,
		MaxConnIdleTime: cfg.DBIdleTimeout,
	})
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer dbPool.Close()
	zapLogger.Info("Успешное подключение к PostgreSQL")

	// Миграции схемы
	migrator := migration.NewRunner(dbPool, migrations.FS)
	if *migrateDown {
		if err := migrator.Rollback(); err != nil {
			zapLogger.Fatal("Не удалось откатить миграции", zap.Error(err))
		}
		zapLogger.Info("Миграции откачены")
		return
	}
	schemaVersion, err := migrator.Apply()
	if err != nil {
		zapLogger.Fatal("Не удалось применить миграции", zap.Error(err))
	}
	zapLogger.Info("Схема БД актуальна", zap.Uint("schemaVersion", schemaVersion))

	// Репозитории
	storyRepo := repository.NewPgStoryRepository(dbPool, zapLogger)

	// Кэш страниц поверх репозитория историй (опционально)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zapLogger.Warn("Redis недоступен, кэш страниц отключен", zap.Error(err))
		} else {
			defer redisClient.Close()
			storyRepo = repository.NewCachedStoryRepository(storyRepo, redisClient, cfg.PageCacheTTL, zapLogger)
			zapLogger.Info("Кэш страниц включен", zap.String("addr", cfg.RedisAddr))
		}
	}

	sessionRepo := repository.NewPgSessionRepository(zapLogger)
	unlockRepo := repository.NewPgUnlockedEndingRepository(zapLogger)
	txHelper := repository.NewTransactionHelper(dbPool, zapLogger)

	// Публикация событий завершения сессий (опционально)
	var publisher messaging.SessionEventPublisher
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("Не удалось подключиться к RabbitMQ, события отключены", zap.Error(err))
		} else {
			defer rabbitConn.Close()
			publisher, err = messaging.NewRabbitMQSessionEventPublisher(rabbitConn, cfg.SessionEventQueueName, zapLogger)
			if err != nil {
				zapLogger.Fatal("Не удалось создать SessionEventPublisher", zap.Error(err))
			}
			zapLogger.Info("Успешное подключение к RabbitMQ")
		}
	}

	// Сервисы
	traversalService := service.NewTraversalService(dbPool, txHelper, storyRepo, sessionRepo, unlockRepo, publisher, zapLogger)
	analyticsService := service.NewAnalyticsService(dbPool, sessionRepo, storyRepo, zapLogger)
	endingService := service.NewEndingService(dbPool, storyRepo, unlockRepo, zapLogger)

	traversalHandler := handler.NewTraversalHandler(traversalService, analyticsService, endingService, zapLogger, cfg.JWTSecret, dbPool)

	// Настройка Echo
	e := echo.New()
	e.Validator = handler.NewValidator()
	e.Use(appMiddleware.EchoZapLogger(zapLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	traversalHandler.RegisterRoutes(e)

	zapLogger.Info("Tale Server слушает", zap.String("port", cfg.Port))

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("Ошибка запуска HTTP сервера: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal("Ошибка при graceful shutdown Echo: ", err)
	}

	log.Println("Tale Server успешно остановлен")
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
