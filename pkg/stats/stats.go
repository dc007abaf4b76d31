package stats

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"site-timelapse/pkg/config"
	"site-timelapse/pkg/jobs"
	"site-timelapse/pkg/models"
)

const loading = "Loading..."

var (
	cpuMu      sync.RWMutex
	cpuPercent = -1.0
	collector  sync.Once
)

// StartStatsCollector samples CPU usage in the background; GetSystemInfo
// reports the last sample.
func StartStatsCollector() {
	collector.Do(func() {
		go func() {
			for {
				percents, err := cpu.Percent(time.Second, false)
				if err != nil || len(percents) == 0 {
					log.Warn().Err(err).Msg("CPU sampling failed")
					time.Sleep(10 * time.Second)
					continue
				}
				cpuMu.Lock()
				cpuPercent = percents[0]
				cpuMu.Unlock()
				time.Sleep(4 * time.Second)
			}
		}()
	})
}

// GetSystemInfo reports host, CPU, memory and data disk usage.
var GetSystemInfo = func() gin.H {
	info := gin.H{
		"os_type":      runtime.GOOS,
		"cpu_usage":    loading,
		"memory_usage": "N/A",
		"disk_usage":   "N/A",
		"uptime":       "N/A",
	}

	cpuMu.RLock()
	if cpuPercent >= 0 {
		info["cpu_usage"] = fmt.Sprintf("%.1f%%", cpuPercent)
	}
	cpuMu.RUnlock()

	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_usage"] = fmt.Sprintf("%.1f%%", vm.UsedPercent)
		info["memory_total"] = humanize.IBytes(vm.Total)
	}
	if du, err := disk.Usage(config.AppConfig.DataDir); err == nil {
		info["disk_usage"] = fmt.Sprintf("%.1f%%", du.UsedPercent)
		info["disk_free"] = humanize.IBytes(du.Free)
	}
	if h, err := host.Info(); err == nil {
		info["os_type"] = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
		info["uptime"] = humanize.RelTime(time.Now().Add(-time.Duration(h.Uptime)*time.Second), time.Now(), "", "")
	}
	return info
}

// GetExportDiskUsage sums the size of everything under the export directory.
var GetExportDiskUsage = func() gin.H {
	var total int64
	var files int
	err := filepath.WalkDir(config.AppConfig.ExportDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		files++
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", config.AppConfig.ExportDir).Msg("Error calculating export disk usage")
		return gin.H{"export_size": "N/A", "export_files": 0}
	}
	return gin.H{"export_size": humanize.Bytes(uint64(total)), "export_files": files}
}

// JobCounts tallies jobs by kind and status.
func JobCounts(ctx context.Context, store jobs.Store) (map[models.JobKind]map[models.JobStatus]int, error) {
	list, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	counts := map[models.JobKind]map[models.JobStatus]int{
		models.KindVideo: {},
		models.KindPhoto: {},
	}
	for _, job := range list {
		if counts[job.Kind] == nil {
			counts[job.Kind] = map[models.JobStatus]int{}
		}
		counts[job.Kind][job.Status]++
	}
	return counts, nil
}
