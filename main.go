package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"scopus-loader/config"
	"scopus-loader/models"
	"scopus-loader/services"
	"scopus-loader/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	papersLoadedCounter     prometheus.Counter
	recordsSkippedCounter   prometheus.Counter
	batchesCommittedCounter prometheus.Counter
	batchesFailedCounter    prometheus.Counter
)

func init() {
	papersLoadedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_loaded_total",
			Help: "Total number of papers upserted into the database.",
		},
	)
	recordsSkippedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "records_skipped_total",
			Help: "Total number of malformed records skipped during ingestion.",
		},
	)
	batchesCommittedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_committed_total",
			Help: "Total number of successfully committed ingestion batches.",
		},
	)
	batchesFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_failed_total",
			Help: "Total number of ingestion batches rolled back due to errors.",
		},
	)
	prometheus.MustRegister(papersLoadedCounter, recordsSkippedCounter, batchesCommittedCounter, batchesFailedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// runMu verhindert überlappende Ingestion-Läufe; der Checkpoint macht
// parallele Läufe zwar unkritisch, aber sinnlos.
var runMu sync.Mutex

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	err = db.AutoMigrate(
		&models.Source{}, &models.Author{}, &models.Affiliation{},
		&models.Keyword{}, &models.SubjectArea{}, &models.FundingAgency{},
		&models.Paper{}, &models.PaperAuthor{}, &models.PaperAuthorAffiliation{},
		&models.PaperKeyword{}, &models.PaperSubjectArea{}, &models.PaperFunding{},
		&models.ReferencePaper{}, &models.ProcessedFile{}, &models.IngestRun{},
	)
	if err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	ingestService := services.NewIngestService(cfg, db, logging)

	runIngestion := func(ctx context.Context) error {
		if !runMu.TryLock() {
			logging.Warn("Ingestion run already in progress, skipping trigger")
			return nil
		}
		defer runMu.Unlock()

		if cfg.S3Enabled {
			s3Client, err := storage.NewS3Client(cfg)
			if err != nil {
				logging.Error("S3 client creation failed, continuing with local files", zap.Error(err))
			} else if _, err := storage.SyncExports(ctx, s3Client, cfg, logging); err != nil {
				logging.Error("Export feed sync failed, continuing with local files", zap.Error(err))
			}
		}

		report, err := ingestService.Run(ctx)
		if report != nil {
			papersLoadedCounter.Add(float64(report.PapersLoaded))
			recordsSkippedCounter.Add(float64(report.RecordsSkipped))
			batchesCommittedCounter.Add(float64(report.BatchesCommitted))
			batchesFailedCounter.Add(float64(report.BatchesFailed))
		}
		if err != nil {
			logging.Error("Ingestion run finished with error", zap.Error(err))
		}
		return err
	}

	// Abbruch über SIGINT/SIGTERM greift an Batchgrenzen.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunOnce {
		logging.Info("RUN_ONCE set, executing single ingestion run")
		if err := runIngestion(ctx); err != nil {
			logging.Sync()
			os.Exit(1)
		}
		return
	}

	if cfg.RunOnStart {
		go runIngestion(ctx)
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	setupRunRoutes(router, db, logging, runIngestion)

	// Setup Cron
	if cfg.CronSchedule != "" {
		cronScheduler := cron.New()
		cronScheduler.AddFunc(cfg.CronSchedule, func() {
			logging.Info("Running scheduled ingestion...")
			runIngestion(ctx)
		})
		cronScheduler.Start()
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Failed to run server", zap.Error(err))
	}

	// Auf einen noch laufenden Batch warten, bevor der Prozess endet.
	runMu.Lock()
	runMu.Unlock()
	logging.Info("Server stopped")
}

func setupRunRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger, trigger func(context.Context) error) {
	rg := router.Group("/runs")

	rg.GET("/", func(c *gin.Context) {
		var runs []models.IngestRun
		if err := db.Order("id desc").Limit(50).Find(&runs).Error; err != nil {
			log.Error("Database query for runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var run models.IngestRun
		if err := db.First(&run, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			log.Error("Database query for run failed", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, run)
	})

	rg.POST("/", func(c *gin.Context) {
		go trigger(context.Background())
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingestion run triggered."})
	})
}
