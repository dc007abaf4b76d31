package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/app"
	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/cachedstats"
	"site-timelapse/pkg/config"
	"site-timelapse/pkg/database"
	"site-timelapse/pkg/events"
	"site-timelapse/pkg/handlers"
	"site-timelapse/pkg/logging"
	"site-timelapse/pkg/models"
	"site-timelapse/pkg/server"
	"site-timelapse/pkg/services/indexer"
	"site-timelapse/pkg/services/photo"
	"site-timelapse/pkg/services/requests"
	"site-timelapse/pkg/services/share"
	"site-timelapse/pkg/services/video"
	"site-timelapse/pkg/stats"
	"site-timelapse/pkg/worker"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"))
	config.LoadConfig()
	cfg := &config.AppConfig
	logging.Setup(cfg.LogLevel)

	for _, dir := range cfg.Dirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create data directory")
		}
	}

	// One server per data directory.
	lock := flock.New(filepath.Join(cfg.DataDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to lock data directory")
	}
	if !locked {
		log.Fatal().Str("data_dir", cfg.DataDir).Msg("FATAL: another server is using this data directory")
	}
	defer lock.Unlock()

	if err := database.InitDB(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := database.EnsureAdmin(cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("FATAL: cannot create the initial admin user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenJobStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer closeStore()

	frames, err := app.OpenArchive(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open frame archive")
	}
	cache := archive.NewIndexCache(cfg.IndexDir)
	defer cache.Close()
	index := archive.NewIndex(frames, cache)
	materializer := archive.NewMaterializer(frames, cfg.MediaRoot)

	var publisher events.Publisher
	if cfg.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nats.Close()
		publisher = nats
	}

	encoder := video.NewEncoder(video.FFmpegRunner{}, cfg.BatchSize, cfg.KeepFailedArtifacts)
	scheduler := worker.NewScheduler(store, map[models.JobKind]worker.Processor{
		models.KindVideo: video.NewProcessor(encoder, materializer, cfg.MusicDir),
		models.KindPhoto: photo.NewPackager(materializer, cfg.ArchiveCompression),
	}, publisher)
	if err := scheduler.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover interrupted jobs")
	}

	svc := requests.NewService(index, materializer, scheduler, store, cfg.ExportDir)
	statsCache := cachedstats.New(store)

	stats.StartStatsCollector()
	statsCache.RunUpdater(ctx, cachedstats.UpdateInterval)
	share.StartShareLinkCleanupScheduler(ctx, share.CleanupInterval)
	refresher := indexer.NewRefresher(index, cfg.IndexDir, time.Duration(cfg.IndexRefreshIntervalSec)*time.Second)
	refresher.Start(ctx)

	mediaRoot := ""
	if frames.Backend() == "local" {
		mediaRoot = cfg.MediaRoot
	}
	router := server.SetupRouter(handlers.New(index, svc, statsCache, cfg.UploadDir), mediaRoot)
	if err := server.StartServer(ctx, cfg.ListenAddr, router); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Waiting for the running job to finish")
	scheduler.Wait()
	log.Info().Msg("✅ Shutdown complete")
}
