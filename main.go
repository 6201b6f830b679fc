package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thumbcache/internal/database"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/handlers"
	"thumbcache/internal/indexer"
	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/metrics"
	"thumbcache/internal/middleware"
	"thumbcache/internal/startup"
	"thumbcache/internal/thumbnail"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Must run before significant allocations
	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion, false)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	if err := thumbnail.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
	}
	defer thumbnail.ShutdownVips()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion, thumbnail.IsVipsAvailable())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error("Failed to close database: %v", err)
		}
	}()
	indexed, err := db.Count(ctx)
	if err != nil {
		logging.Warn("Failed to count indexed images: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), indexed)

	thumbs := startup.NewThumbnailService(config)
	svc := thumbs.Service
	startup.LogThumbnailInit(thumbnail.IsVipsAvailable(), thumbs.Decoder.Codecs(), thumbs.LockKind)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	collector := metrics.NewCollector(metrics.StatsProviderFunc(func() (metrics.Stats, error) {
		stats, err := svc.CollectStats()
		if err != nil {
			return stats, err
		}
		db.UpdateDBMetrics()
		stats.Images, err = db.Count(ctx)
		return stats, err
	}), time.Minute)
	if config.MetricsEnabled {
		collector.Start()
	}

	idx := indexer.New(db, svc, config.MediaDir)
	idx.SetIntervals(config.IndexIntervalDuration(), config.IndexPollIntervalDuration())
	idx.Start(ctx)

	h := handlers.New(svc, db, config.MediaDir,
		handlers.WithBatchWorkers(config.Workers),
		handlers.WithThrottle(monitor),
		handlers.WithBaseContext(ctx),
		handlers.WithIndexer(idx),
	)

	router := setupRouter(h, config.MetricsEnabled)
	startup.LogHTTPRoutes(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Synchronous generation of a large source can take a while
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleShutdown(srv, cancel, h, idx, monitor, collector, config.MetricsEnabled)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	if metricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods("GET", "HEAD")
	api.HandleFunc("/thumbnail/{path:.*}", h.InvalidateThumbnail).Methods("DELETE")
	api.HandleFunc("/rotate/{path:.*}", h.RotateImage).Methods("POST")
	api.HandleFunc("/metadata/{path:.*}", h.GetMetadata).Methods("GET")
	api.HandleFunc("/images", h.ListImages).Methods("GET")
	api.HandleFunc("/populate", h.Populate).Methods("POST")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/index", h.GetIndexStatus).Methods("GET")
	api.HandleFunc("/index", h.TriggerIndex).Methods("POST")

	return r
}

func handleShutdown(srv *http.Server, cancel context.CancelFunc, h *handlers.Handlers, idx *indexer.Indexer,
	monitor *memory.Monitor, collector *metrics.Collector, collectorRunning bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Waiting for background thumbnail generation")
	cancel()
	h.Wait()
	startup.LogShutdownStepComplete("Background generation finished")

	startup.LogShutdownStep("Stopping indexer")
	idx.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	monitor.Stop()
	if collectorRunning {
		collector.Stop()
	}

	startup.LogShutdownComplete()
}
