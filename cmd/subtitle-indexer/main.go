package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"subtitle-indexer/internal/database"
	"subtitle-indexer/internal/handlers"
	"subtitle-indexer/internal/indexer"
	"subtitle-indexer/internal/jobs"
	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/mediatypes"
	"subtitle-indexer/internal/memory"
	"subtitle-indexer/internal/metrics"
	"subtitle-indexer/internal/middleware"
	"subtitle-indexer/internal/startup"
	"subtitle-indexer/internal/status"
	"subtitle-indexer/internal/subtitle"
	"subtitle-indexer/internal/workers"
)

const (
	shutdownTimeout         = 30 * time.Second
	metricsCollectInterval  = time.Minute
	defaultParallelWorkers  = 8
	serverReadHeaderTimeout = 10 * time.Second
)

func main() {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath, nil)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	st := status.NewStore(config.StatusPath, nil)

	mon := memory.NewMonitor(nil)
	mon.Start()

	maxWorkers := config.Index.Workers
	if maxWorkers <= 0 {
		maxWorkers = workers.ForIO(defaultParallelWorkers)
	}
	startup.LogIndexerInit(config.Index, maxWorkers)

	idx, err := indexer.New(db, st, indexerConfig(config, maxWorkers, mon))
	if err != nil {
		startup.LogFatal("Failed to initialize indexer: %v", err)
	}
	startup.LogIndexerStarted()

	scheduler := cron.New()
	if err := scheduleIndexing(scheduler, config.Index.Schedule, idx); err != nil {
		startup.LogFatal("Invalid index schedule: %v", err)
	}
	scheduler.Start()

	if config.Index.OnStart {
		if res := idx.Start(true); !res.Accepted {
			logging.Warn("Initial indexing not started: %s", res.Reason)
		}
	}

	jm := jobs.NewManager(0)

	metrics.InitializeMetrics()
	collector := metrics.NewCollector(db, metricsCollectInterval)
	collector.Start()

	h := handlers.New(db, idx, jm, config)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := newServer(":"+config.Port, buildHandler(router, config))

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(":"+config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, func() {
		startup.LogShutdownStep("Stopping scheduler")
		<-scheduler.Stop().Done()
		startup.LogShutdownStepComplete("Scheduler stopped")

		startup.LogShutdownStep("Stopping indexer")
		idx.Close()
		startup.LogShutdownStepComplete("Indexer stopped")

		collector.Stop()
		mon.Stop()

		startup.LogShutdownStep("Flushing indexing status")
		if err := st.Close(); err != nil {
			logging.Warn("Failed to flush indexing status: %v", err)
		}

		startup.LogShutdownStep("Closing database")
		if err := db.Close(); err != nil {
			logging.Warn("Database close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Database closed")
		}
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-shutdownDone
}

// shutdownDone is closed once handleShutdown has released every resource.
var shutdownDone = make(chan struct{})

func indexerConfig(config *startup.Config, maxWorkers int, mon *memory.Monitor) indexer.Config {
	cfg := indexer.Config{
		MediaDir:          config.MediaDir,
		Strategy:          config.Index.Strategy,
		MaxWorkers:        maxWorkers,
		MinEnglishRatio:   config.Index.MinEnglishRatio,
		MediaExtensions:   mediatypes.NewExtensionSet(config.Index.MediaExtensions...),
		SubtitleExtension: config.Index.SubtitleExtension,
		Processor: subtitle.Options{
			MaxProcessingTime: config.Index.MaxProcessingTime.Duration,
			DetectLanguage:    config.Index.DetectLanguage,
		},
	}
	// A disabled monitor never reports pressure, so leave the gate unset.
	if mon.Enabled() {
		cfg.Gate = mon
	}
	return cfg
}

// indexStarter is the part of the orchestrator the scheduler drives.
type indexStarter interface {
	Start(incremental bool) indexer.Result
}

// scheduleIndexing registers an incremental run on the cron schedule. An
// empty schedule disables scheduled runs.
func scheduleIndexing(c *cron.Cron, schedule string, idx indexStarter) error {
	if schedule == "" {
		startup.LogSchedulerInit("", time.Time{})
		return nil
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return err
	}
	c.Schedule(sched, cron.FuncJob(func() {
		logging.Info("Scheduled incremental indexing triggered")
		if res := idx.Start(true); !res.Accepted {
			logging.Info("Scheduled indexing skipped: %s", res.Reason)
		}
	}))
	startup.LogSchedulerInit(schedule, sched.Next(time.Now()))
	return nil
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Indexing control
	api.HandleFunc("/index/start", h.StartIndexing).Methods("POST")
	api.HandleFunc("/index/pause", h.PauseIndexing).Methods("POST")
	api.HandleFunc("/index/resume", h.ResumeIndexing).Methods("POST")
	api.HandleFunc("/index/stop", h.StopIndexing).Methods("POST")
	api.HandleFunc("/index/reset", h.ResetIndexStatus).Methods("POST")
	api.HandleFunc("/index/status", h.GetIndexStatus).Methods("GET")
	api.HandleFunc("/index/rebuild", h.RebuildIndex).Methods("POST")

	// Search
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/search/estimate", h.EstimateSearch).Methods("GET")

	// Jobs
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST")

	// Store
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/media/{id:[0-9]+}/subtitles", h.GetMediaSubtitles).Methods("GET")
	api.HandleFunc("/maintenance/{op}", h.RunMaintenance).Methods("POST")

	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	return r
}

// buildHandler wraps the router in logging and compression.
func buildHandler(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	logged := middleware.Logger(loggingConfig)(router)

	return middleware.Compression(middleware.DefaultCompressionConfig())(logged)
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func newMetricsServer(addr string, h *handlers.Handlers) *http.Server {
	sm := http.NewServeMux()
	sm.Handle("/metrics", h.MetricsHandler())
	sm.HandleFunc("/health", h.LivenessCheck)
	return &http.Server{
		Addr:              addr,
		Handler:           sm,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// handleShutdown waits for SIGINT or SIGTERM, stops the HTTP servers, then
// runs cleanup.
func handleShutdown(srv, metricsSrv *http.Server, cleanup func()) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	cleanup()
	startup.LogShutdownComplete()
}
