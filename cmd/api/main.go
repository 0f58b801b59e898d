package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/actions"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/queue"
	"github.com/Ramsey-B/clover/pkg/ratelimit"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
	"github.com/Ramsey-B/clover/pkg/triggers"
	"github.com/Ramsey-B/clover/pkg/webhooks"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger := newLogger(&cfg)
	ctx := context.Background()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	var (
		db          database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
		processor   *queue.Processor
		checker     *health.Checker
		server      *http.Server
		traceStop   func(context.Context) error
	)

	boot.AddDependency(&startup.Func{
		Name: "tracing",
		StartFunc: func(ctx context.Context) error {
			if !cfg.OTLPEnabled {
				return nil
			}
			stop, err := tracing.Setup(ctx, cfg.AppName, &exporters.OTLPConfig{
				Endpoint: cfg.OTLPEndpoint,
				Protocol: cfg.OTLPProtocol,
				Insecure: cfg.OTLPInsecure,
			})
			if err != nil {
				return err
			}
			traceStop = stop
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if traceStop == nil {
				return nil
			}
			return traceStop(ctx)
		},
	})

	boot.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
				cfg.DatabaseName, cfg.DatabaseSSLMode)

			sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}

			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			db = database.NewDatabaseInstance(sqlxDB, logger)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name: "redis",
		StartFunc: func(ctx context.Context) error {
			client, err := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return err
			}
			redisClient = client
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name: "kafka",
		StartFunc: func(ctx context.Context) error {
			producer = kafka.NewProducer(
				kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaEventTopic, cfg.KafkaActivityTopic),
				logger,
			)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if producer == nil {
				return nil
			}
			return producer.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name:  "processor",
		Needs: []string{"database", "redis", "kafka"},
		StartFunc: func(ctx context.Context) error {
			ruleRepo := repositories.NewAutomationRuleRepository(db, logger)
			logRepo := repositories.NewExecutionLogRepository(db, logger)
			webhookRepo := repositories.NewWebhookRepository(db, logger)
			deliveryRepo := repositories.NewWebhookDeliveryRepository(db, logger)

			mailer := email.NewAPIMailer(email.Config{
				APIURL:      cfg.EmailAPIURL,
				APIToken:    cfg.EmailAPIToken,
				FromAddress: cfg.EmailFromAddress,
			}, httpclient.NewClient(httpclient.DefaultConfig(), logger), logger)

			registry := actions.NewRegistry()
			registry.Register(actions.NewSendEmailAction(mailer, producer, logger))

			dispatcher := triggers.NewDispatcher(ruleRepo, logRepo, registry, logger)
			deliveryEngine := webhooks.NewDeliveryEngine(webhookRepo, deliveryRepo,
				httpclient.NewClient(httpclient.Config{Timeout: cfg.WebhookAttemptTimeout}, logger),
				webhooks.Config{
					AttemptTimeout:    cfg.WebhookAttemptTimeout,
					ResponseBodyLimit: cfg.WebhookResponseBodyLimit,
				}, logger)

			streams := redis.NewStreams(redisClient)
			dlq := redis.NewDeadLetterQueue(redisClient, cfg.RedisStreamsDLQ, logger)

			processorCfg := queue.DefaultProcessorConfig()
			processorCfg.Stream = cfg.RedisStreamsJobQueue
			processorCfg.ConsumerGroup = cfg.RedisStreamsConsumerGroup
			if cfg.RedisStreamsConsumerName != "" {
				processorCfg.ConsumerName = cfg.RedisStreamsConsumerName
			}
			processorCfg.MaxRetries = cfg.QueueMaxJobAttempts
			processorCfg.WorkerCount = cfg.QueueWorkerCount

			processor = queue.NewProcessor(streams, dlq, dispatcher, deliveryEngine, producer, processorCfg, logger)
			return processor.Start(ctx)
		},
		StopFunc: func(ctx context.Context) error {
			if processor == nil {
				return nil
			}
			return processor.Stop(ctx)
		},
	})

	boot.AddDependency(&startup.Func{
		Name:  "http",
		Needs: []string{"database", "redis", "kafka", "processor"},
		StartFunc: func(ctx context.Context) error {
			e := buildServer(cfg, logger, db, redisClient, producer)

			checker = health.NewChecker(db, redisClient, processor, version)
			checker.RegisterRoutes(e)

			server = &http.Server{
				Addr:           fmt.Sprintf(":%d", cfg.Port),
				Handler:        e,
				ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				MaxHeaderBytes: cfg.MaxHeaderBytes,
			}

			go func() {
				logger.Infof("HTTP server listening on :%d", cfg.Port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server error")
				}
			}()

			checker.SetReady(true)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if server == nil {
				return nil
			}
			if checker != nil {
				checker.SetReady(false)
			}
			return server.Shutdown(ctx)
		},
	})

	if err := boot.Start(ctx); err != nil {
		return err
	}

	logger.Infof("%s started", cfg.AppName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return boot.Stop(shutdownCtx)
}

func buildServer(
	cfg *config.Config,
	logger ectologger.Logger,
	db database.DB,
	redisClient *redis.Client,
	producer *kafka.Producer,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ruleRepo := repositories.NewAutomationRuleRepository(db, logger)
	logRepo := repositories.NewExecutionLogRepository(db, logger)
	webhookRepo := repositories.NewWebhookRepository(db, logger)
	deliveryRepo := repositories.NewWebhookDeliveryRepository(db, logger)

	streams := redis.NewStreams(redisClient)
	dlq := redis.NewDeadLetterQueue(redisClient, cfg.RedisStreamsDLQ, logger)
	limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimitFallbackMaxKeys, logger)

	api := e.Group("/api/v1")

	handlers.NewRuleHandler(ruleRepo, logRepo).RegisterRoutes(api)
	handlers.NewWebhookHandler(webhookRepo, deliveryRepo).RegisterRoutes(api)
	handlers.NewExecutionHandler(logRepo).RegisterRoutes(api)
	handlers.NewTriggerHandler(streams, cfg.RedisStreamsJobQueue, limiter,
		cfg.TriggerRateLimit, cfg.TriggerRateWindow, producer, logger).RegisterRoutes(api)
	handlers.NewInboundHandler(webhookRepo, limiter,
		cfg.InboundRateLimit, cfg.InboundRateWindow, producer, logger).RegisterRoutes(api)
	handlers.NewDLQHandler(dlq, streams, cfg.RedisStreamsJobQueue, logger).RegisterRoutes(api)

	return e
}
