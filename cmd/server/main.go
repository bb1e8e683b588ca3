package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/config"
	"github.com/garyjia/bill-reconciler/internal/extract"
	httpiface "github.com/garyjia/bill-reconciler/internal/interfaces/http"
	"github.com/garyjia/bill-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/bill-reconciler/internal/infrastructure/worker"
	"github.com/garyjia/bill-reconciler/internal/reconcile"
	"github.com/garyjia/bill-reconciler/internal/summary"
	"github.com/garyjia/bill-reconciler/pkg/database"
	"github.com/garyjia/bill-reconciler/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting bill reconciliation service",
		zap.String("tolerance", cfg.Reconcile.Tolerance),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	tolerance, err := cfg.Reconcile.ToleranceDecimal()
	if err != nil {
		logger.Fatal("Invalid tolerance", zap.Error(err))
	}

	// Engine and boundary components
	extractor := extract.NewExtractor(logger)
	summarizer := summary.NewSummarizer(reconcile.Config{Tolerance: tolerance}, logger)

	// Repositories
	billRepo := repository.NewBillRepository(db.DB, logger)
	summaryRepo := repository.NewSummaryRepository(db.DB, logger)

	// Background reconciliation of submitted bills
	workerManager := worker.NewManager(logger)
	if cfg.Worker.Enabled {
		workerManager.Register(worker.NewReconcileWorker(
			worker.ReconcileWorkerConfig{
				PollInterval: cfg.Worker.PollInterval,
				BatchSize:    cfg.Worker.BatchSize,
			},
			billRepo,
			summaryRepo,
			extractor,
			summarizer,
			logger,
		))
	}
	if err := workerManager.StartAll(context.Background()); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	handlers := httpiface.NewHandlers(extractor, summarizer, billRepo, summaryRepo, logger)
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if err := workerManager.StopAll(); err != nil {
		logger.Error("Failed to stop workers", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
