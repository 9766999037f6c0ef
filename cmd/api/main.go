package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openprocure/fern/config"
	"github.com/openprocure/fern/internal/database"
	appmiddleware "github.com/openprocure/fern/internal/middleware"
	conflictrepo "github.com/openprocure/fern/internal/repositories/conflict"
	materialrepo "github.com/openprocure/fern/internal/repositories/material"
	observationrepo "github.com/openprocure/fern/internal/repositories/priceobservation"
	orderrepo "github.com/openprocure/fern/internal/repositories/purchaseorder"
	stagingrowrepo "github.com/openprocure/fern/internal/repositories/stagingrow"
	supplierrepo "github.com/openprocure/fern/internal/repositories/supplier"
	uploadrepo "github.com/openprocure/fern/internal/repositories/upload"
	"github.com/openprocure/fern/internal/startup"
	"github.com/openprocure/fern/internal/tracing"
	"github.com/openprocure/fern/internal/tracing/exporters"
	"github.com/openprocure/fern/pkg/conflicts"
	"github.com/openprocure/fern/pkg/events"
	"github.com/openprocure/fern/pkg/ingestion"
	"github.com/openprocure/fern/pkg/kafka"
	"github.com/openprocure/fern/pkg/quality"
	conflictroutes "github.com/openprocure/fern/pkg/routes/conflict"
	"github.com/openprocure/fern/pkg/routes/health"
	uploadroutes "github.com/openprocure/fern/pkg/routes/upload"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sqlxDB   *sqlx.DB
		db       database.DB
		producer *kafka.Producer
		provider *sdktrace.TracerProvider
		server   *echo.Echo
	)

	mgr := startup.NewManager(logger, cfg.StartupMaxAttempts)

	mgr.Add(startup.Func{
		DependencyName: "tracing",
		StartFunc: func(ctx context.Context) error {
			var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}
			if cfg.TracingEnabled {
				otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
					Endpoint: cfg.OTLPEndpoint,
					Protocol: cfg.OTLPProtocol,
					Insecure: cfg.OTLPInsecure,
					Timeout:  10 * time.Second,
				})
				if err != nil {
					return err
				}
				exporter = otlp
			}
			provider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
			otel.SetTracerProvider(provider)
			tracing.SetTracer(provider.Tracer(cfg.AppName))
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})

	mgr.Add(startup.Func{
		DependencyName: "database",
		StartFunc: func(ctx context.Context) error {
			dsn := fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
			)

			conn, err := sqlx.Open(cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			if err := conn.PingContext(ctx); err != nil {
				_ = conn.Close()
				return err
			}

			conn.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			conn.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			conn.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			sqlxDB = conn
			db = database.NewDatabaseInstance(conn, logger)
			return nil
		},
		StopFunc: func(_ context.Context) error {
			if sqlxDB == nil {
				return nil
			}
			return sqlxDB.Close()
		},
	})

	mgr.Add(startup.Func{
		DependencyName: "migrations",
		Requires:       []string{"database"},
		StartFunc: func(_ context.Context) error {
			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			ms := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return ms.Migrate(cfg.DatabaseName, driver)
		},
	})

	mgr.Add(startup.Func{
		DependencyName: "kafka",
		StartFunc: func(_ context.Context) error {
			if !cfg.KafkaProducerEnabled {
				logger.Info("Kafka producer is disabled; events will not be emitted")
				return nil
			}
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				Topic:        cfg.KafkaOutputTopic,
				BatchSize:    cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: cfg.KafkaRequiredAcks,
				Compression:  cfg.KafkaCompression,
			}, logger)
			return nil
		},
		StopFunc: func(_ context.Context) error {
			if producer == nil {
				return nil
			}
			return producer.Close()
		},
	})

	mgr.Add(startup.Func{
		DependencyName: "http-server",
		Requires:       []string{"tracing", "database", "migrations", "kafka"},
		StartFunc: func(_ context.Context) error {
			e, err := buildServer(cfg, db, producer, logger)
			if err != nil {
				return err
			}
			server = e

			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				if err := e.Start(addr); err != nil {
					logger.WithError(err).Info("HTTP server stopped")
				}
			}()
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if server == nil {
				return nil
			}
			return server.Shutdown(ctx)
		},
	})

	if err := mgr.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	logger.WithField("port", cfg.Port).Infof("%s is ready", cfg.AppName)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mgr.Stop(shutdownCtx)
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// buildServer wires repositories and services into the DI container and
// returns the configured echo instance.
func buildServer(cfg config.Config, db database.DB, producer *kafka.Producer, logger ectologger.Logger) (*echo.Echo, error) {
	uploads := uploadrepo.NewRepository(db, logger)
	stagingRows := stagingrowrepo.NewRepository(db, logger)
	suppliers := supplierrepo.NewRepository(db, logger)
	materials := materialrepo.NewRepository(db, logger)
	orders := orderrepo.NewRepository(db, logger)
	observations := observationrepo.NewRepository(db, logger)
	conflictRepo := conflictrepo.NewRepository(db, logger)

	emitter := events.NewEmitter(producer, logger)

	engine := ingestion.NewEngine(ingestion.Config{
		ChunkSize:             cfg.ChunkSize,
		AutoResolveThreshold:  cfg.AutoResolveThreshold,
		ConflictThreshold:     cfg.ConflictThreshold,
		MaxFuzzyCandidates:    cfg.MaxFuzzyCandidates,
		MaxConflictCandidates: cfg.MaxConflictCandidates,
	}, db, uploads, stagingRows, suppliers, materials, orders, observations, conflictRepo, emitter, logger)

	conflictService := conflicts.NewService(conflictRepo, stagingRows, suppliers, materials, emitter, logger)

	qualityService := quality.NewService(
		quality.NewScorer(cfg.AccuracySampleSize),
		uploads, stagingRows, observations, logger,
	)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*uploadrepo.Repository](container, uploads); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*ingestion.Engine](container, engine); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*conflicts.Service](container, conflictService); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*quality.Service](container, qualityService); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = appmiddleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(appmiddleware.Context())
	e.Use(appmiddleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	health.Register(e)
	uploadroutes.Register(e.Group("/uploads"))
	conflictroutes.Register(e.Group("/conflicts"))

	return e, nil
}
