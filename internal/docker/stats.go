package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/hangar-sh/hangar/internal/domain"
)

// ContainerMetrics takes a single stats reading and derives point-in-time
// usage figures from its primed previous CPU counters. Missing counters
// yield zero values rather than errors; a 0/0 memory reading means
// "no data", not "idle".
func (c *Client) ContainerMetrics(ctx context.Context, name string) (domain.MetricsSample, error) {
	reader, err := c.stats(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return domain.MetricsSample{}, ErrNotFound
		}
		return domain.MetricsSample{}, fmt.Errorf("container stats: %w", err)
	}
	defer reader.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(reader.Body).Decode(&stats); err != nil {
		return domain.MetricsSample{}, fmt.Errorf("decode container stats: %w", err)
	}

	usage, limit := memoryUsage(stats.MemoryStats)
	return domain.MetricsSample{
		CPUPercent:  cpuPercent(stats.PreCPUStats, stats.CPUStats),
		MemoryUsage: usage,
		MemoryLimit: limit,
		SampledAt:   time.Now().UTC(),
	}, nil
}

// cpuPercent derives CPU utilisation from two counter samples. It returns
// exactly 0 when either delta is non-positive or counters are missing, and
// never a negative value or NaN.
func cpuPercent(previous, current container.CPUStats) float64 {
	if current.CPUUsage.TotalUsage <= previous.CPUUsage.TotalUsage {
		return 0
	}
	if current.SystemUsage <= previous.SystemUsage {
		return 0
	}
	cpuDelta := float64(current.CPUUsage.TotalUsage - previous.CPUUsage.TotalUsage)
	systemDelta := float64(current.SystemUsage - previous.SystemUsage)

	cpus := float64(current.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(current.CPUUsage.PercpuUsage))
	}
	if cpus == 0 {
		return 0
	}
	return cpuDelta / systemDelta * cpus * 100
}

// memoryUsage subtracts cache accounting from the raw resident figure so
// usage reflects the working set, not the page cache.
func memoryUsage(mem container.MemoryStats) (usage, limit uint64) {
	usage = mem.Usage
	if cache, ok := cacheBytes(mem.Stats); ok && cache <= usage {
		usage -= cache
	}
	return usage, mem.Limit
}

func cacheBytes(stats map[string]uint64) (uint64, bool) {
	// cgroup v1 reports "cache"; v2 accounts reclaimable cache as
	// inactive file pages.
	for _, key := range []string{"cache", "total_inactive_file", "inactive_file"} {
		if v, ok := stats[key]; ok {
			return v, true
		}
	}
	return 0, false
}
