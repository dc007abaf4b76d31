// Package share runs the housekeeping of share links.
package share

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/database"
)

// CleanupInterval is how often expired links are purged.
const CleanupInterval = time.Hour

// StartShareLinkCleanupScheduler purges expired links every interval until
// ctx is done.
func StartShareLinkCleanupScheduler(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("Starting share link cleanup scheduler")
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := database.DeleteExpiredShareLinks(); err != nil {
					log.Error().Err(err).Msg("Error cleaning up expired share links")
				}
			}
		}
	}()
}
