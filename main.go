package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mdverse-hand/config"
	"mdverse-hand/models"
	"mdverse-hand/providers/zenodo"
	"mdverse-hand/services"
	"mdverse-hand/snapshot"
	"mdverse-hand/storage"

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
	datasetsCreatedCounter   prometheus.Counter
	datasetsUpdatedCounter   prometheus.Counter
	datasetsUnchangedCounter prometheus.Counter
	filesCreatedCounter      prometheus.Counter
	ingestWarningsCounter    prometheus.Counter
)

func init() {
	datasetsCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_created_total",
			Help: "Total number of new datasets added to the database.",
		},
	)
	datasetsUpdatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_updated_total",
			Help: "Total number of datasets updated in place.",
		},
	)
	datasetsUnchangedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_unchanged_total",
			Help: "Total number of datasets seen unchanged during ingestion.",
		},
	)
	filesCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "files_created_total",
			Help: "Total number of file records created during ingestion.",
		},
	)
	ingestWarningsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_warnings_total",
			Help: "Total number of referential warnings during ingestion.",
		},
	)
	prometheus.MustRegister(
		datasetsCreatedCounter,
		datasetsUpdatedCounter,
		datasetsUnchangedCounter,
		filesCreatedCounter,
		ingestWarningsCounter,
	)
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

// reportStore hält den Report des letzten Ingestion-Laufs für die API.
type reportStore struct {
	mu     sync.RWMutex
	report *services.Report
}

func (rs *reportStore) set(r *services.Report) {
	rs.mu.Lock()
	rs.report = r
	rs.mu.Unlock()
}

func (rs *reportStore) get() *services.Report {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.report
}

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
	db.AutoMigrate(
		&models.DataSource{}, &models.Author{}, &models.Keyword{},
		&models.Dataset{}, &models.FileType{}, &models.File{},
		&models.Thermostat{}, &models.Barostat{}, &models.Integrator{},
		&models.TopologyFile{}, &models.ParameterFile{}, &models.TrajectoryFile{},
	)

	// Seeding
	seedDefaultDataSources(db, logging)

	// Setup Services
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	fetcher := zenodo.NewFetcher(cfg, logging)
	ingestService := services.NewIngestService(db, logging)
	reports := &reportStore{}

	runIngest := func(ctx context.Context, downloadFirst bool) (*services.Report, error) {
		if downloadFirst {
			paths, err := fetcher.DownloadSnapshots()
			if err != nil {
				return nil, err
			}
			if cfg.MirrorSnapshots {
				if err := storage.MirrorSnapshots(s3Client, cfg, paths); err != nil {
					logging.Warn("Snapshot-Spiegelung nach S3 fehlgeschlagen", zap.Error(err))
				}
			}
		}

		report, err := ingestService.Run(ctx, snapshotPaths(cfg.SnapshotDir))
		if err != nil {
			return nil, err
		}
		reports.set(report)
		datasetsCreatedCounter.Add(float64(report.DatasetsCreated))
		datasetsUpdatedCounter.Add(float64(report.DatasetsUpdated))
		datasetsUnchangedCounter.Add(float64(report.DatasetsUnchanged))
		filesCreatedCounter.Add(float64(report.FilesCreated))
		ingestWarningsCounter.Add(float64(report.Warnings))
		return report, nil
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupDatasetRoutes(router, db, logging)
	setupIngestRoutes(router, logging, reports, ingestService, runIngest)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled ingest job...")
		report, err := runIngest(context.Background(), true)
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed",
				zap.Int("created", report.DatasetsCreated),
				zap.Int("updated", report.DatasetsUpdated),
				zap.Int("unchanged", report.DatasetsUnchanged))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// snapshotPaths leitet die erwarteten Snapshot-Dateien aus dem Verzeichnis
// ab. Die Simulations-Metadaten sind optional.
func snapshotPaths(dir string) snapshot.Paths {
	optional := func(name string) string {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			return ""
		}
		return path
	}
	return snapshot.Paths{
		Datasets:     filepath.Join(dir, "datasets.csv"),
		Files:        filepath.Join(dir, "files.csv"),
		Topologies:   optional("gromacs_gro_files_info.csv"),
		Parameters:   optional("gromacs_mdp_files_info.csv"),
		Trajectories: optional("gromacs_xtc_files_info.csv"),
	}
}

func setupDatasetRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/datasets")

	// Einfacher GET-Endpunkt, um alle Datensätze abzurufen (ohne Filter)
	rg.GET("/", func(c *gin.Context) {
		var datasets []models.Dataset
		if err := db.Limit(500).Find(&datasets).Error; err != nil {
			log.Error("Database query for all datasets failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, datasets)
	})

	// Body-gesteuerter Endpunkt für komplexe Abfragen
	rg.POST("/query", func(c *gin.Context) {
		type DatasetQuery struct {
			DataSource     string `json:"data_source"`
			IDInDataSource string `json:"id_in_data_source"`
			DOI            string `json:"doi"`
			TitleContains  string `json:"title_contains"`
			Keyword        string `json:"keyword"`
			Author         string `json:"author"`
			Limit          int    `json:"limit"`
		}

		var req DatasetQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Dataset{}).
			Preload("Authors").Preload("Keywords")

		if req.DataSource != "" {
			query = query.
				Joins("JOIN data_sources ON data_sources.data_source_id = datasets.data_source_id").
				Where("data_sources.name = ?", req.DataSource)
		}
		if req.IDInDataSource != "" {
			query = query.Where("datasets.id_in_data_source = ?", req.IDInDataSource)
		}
		if req.DOI != "" {
			query = query.Where("datasets.doi = ?", req.DOI)
		}
		if req.TitleContains != "" {
			query = query.Where("LOWER(datasets.title) LIKE ?", "%"+strings.ToLower(req.TitleContains)+"%")
		}
		if req.Keyword != "" {
			query = query.
				Joins("JOIN datasets_keywords_link ON datasets_keywords_link.dataset_id = datasets.dataset_id").
				Joins("JOIN keywords ON keywords.keyword_id = datasets_keywords_link.keyword_id").
				Where("keywords.entry = ?", strings.ToLower(req.Keyword))
		}
		if req.Author != "" {
			query = query.
				Joins("JOIN datasets_authors_link ON datasets_authors_link.dataset_id = datasets.dataset_id").
				Joins("JOIN authors ON authors.author_id = datasets_authors_link.author_id").
				Where("authors.name = ?", req.Author)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		} else {
			query = query.Limit(500)
		}

		var datasets []models.Dataset
		if err := query.Order("datasets.dataset_id").Find(&datasets).Error; err != nil {
			log.Error("Database query for datasets failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, datasets)
	})

	// GET - Datensatz samt Dateien und Simulations-Metadaten
	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var dataset models.Dataset
		err := db.
			Preload("Authors").
			Preload("Keywords").
			Preload("Files").
			Preload("Files.FileType").
			Preload("Files.TopologyFile").
			Preload("Files.ParameterFile").
			Preload("Files.TrajectoryFile").
			First(&dataset, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
				return
			}
			log.Error("DB error fetching dataset", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, dataset)
	})
}

func setupIngestRoutes(router *gin.Engine, log *zap.Logger, reports *reportStore, ingestService *services.IngestService, runIngest func(context.Context, bool) (*services.Report, error)) {
	rg := router.Group("/ingest")

	// POST - Ingest über die lokal vorhandenen Snapshot-Dateien starten
	rg.POST("/run", func(c *gin.Context) {
		go func() {
			if _, err := runIngest(context.Background(), false); err != nil {
				log.Error("Async ingest failed", zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingest triggered."})
	})

	// POST - Snapshots frisch von Zenodo holen und dann ingestieren
	rg.POST("/fetch-and-run", func(c *gin.Context) {
		go func() {
			if _, err := runIngest(context.Background(), true); err != nil {
				log.Error("Async fetch-and-ingest failed", zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Fetch and ingest triggered."})
	})

	// GET - Report des letzten Laufs
	rg.GET("/report", func(c *gin.Context) {
		report := reports.get()
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no ingest run recorded yet"})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	// GET - Zeilenzahlen aller Entitätstabellen
	rg.GET("/table-counts", func(c *gin.Context) {
		counts, err := ingestService.TableCounts(c.Request.Context())
		if err != nil {
			log.Error("Table count query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, counts)
	})
}

func seedDefaultDataSources(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.DataSource{}).Count(&count)
	if count > 0 {
		return
	}
	sources := []models.DataSource{
		{Name: "zenodo", URL: "https://zenodo.org"},
		{Name: "figshare", URL: "https://figshare.com"},
		{Name: "osf", URL: "https://osf.io"},
	}
	if err := db.Create(&sources).Error; err != nil {
		logger.Warn("Failed to seed default data sources", zap.Error(err))
	} else {
		logger.Info("Default data sources seeded.")
	}
}
