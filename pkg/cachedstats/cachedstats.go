package cachedstats

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/jobs"
	"site-timelapse/pkg/stats"
)

// UpdateInterval is how often the dashboard data is recomputed.
const UpdateInterval = 30 * time.Second

// CachedStats holds the dashboard data served by /api/stats.
type CachedStats struct {
	sync.RWMutex
	Data          gin.H
	store         jobs.Store
	isInitialized bool
}

func New(store jobs.Store) *CachedStats {
	return &CachedStats{Data: make(gin.H), store: store}
}

// RunUpdater refreshes the cache immediately and then every interval until
// ctx is done.
func (cs *CachedStats) RunUpdater(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			cs.Update(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Update recomputes the data. The expensive parts run before the lock is
// taken.
func (cs *CachedStats) Update(ctx context.Context) {
	data := gin.H{
		"system_info": stats.GetSystemInfo(),
		"export":      stats.GetExportDiskUsage(),
		"updated_at":  time.Now().UTC(),
	}
	if cs.store != nil {
		counts, err := stats.JobCounts(ctx, cs.store)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to count jobs for stats")
		} else {
			data["jobs"] = counts
		}
	}

	cs.Lock()
	cs.Data = data
	cs.isInitialized = true
	cs.Unlock()
}

// GetData returns the last computed data, or a loading placeholder before the
// first update.
func (cs *CachedStats) GetData() gin.H {
	cs.RLock()
	defer cs.RUnlock()
	if !cs.isInitialized {
		return gin.H{
			"is_loading":  true,
			"system_info": "Loading...",
			"export":      "Loading...",
		}
	}
	return cs.Data
}
