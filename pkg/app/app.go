// Package app builds the collaborators shared by the server and the ops CLI
// from the loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/archive"
	"site-timelapse/pkg/config"
	"site-timelapse/pkg/database"
	"site-timelapse/pkg/jobs"
)

// OpenArchive returns the frame store selected by STORAGE_BACKEND.
func OpenArchive(ctx context.Context, cfg *config.Config) (archive.Store, error) {
	if cfg.StorageBackend == "s3" {
		return archive.NewS3Store(ctx, archive.S3Options{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PresignExpiry:   cfg.PresignExpiry(),
		})
	}
	return archive.NewLocalStore(cfg.MediaRoot), nil
}

// OpenJobStore returns the job record store selected by STORE_DRIVER and a
// function releasing it. The sqlite store shares the connection opened by
// database.InitDB, which must have run first.
func OpenJobStore(ctx context.Context, cfg *config.Config) (jobs.Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		store, err := jobs.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("Using PostgreSQL job store")
		return store, store.Close, nil
	default:
		db := database.GetDB()
		if db == nil {
			return nil, nil, fmt.Errorf("database is not initialized")
		}
		store, err := jobs.NewSQLiteStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
