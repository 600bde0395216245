package domain

import (
	"fmt"
	"time"
)

// SourceKind identifies where a project's image came from.
type SourceKind string

const (
	SourceDirect SourceKind = "direct"
	SourceGithub SourceKind = "github"
)

// Project describes a deployed workload. The container and volume names are
// derivable from the row alone; no separate lookup table exists.
type Project struct {
	ID            int64
	Name          string
	Owner         string
	ContainerName string
	SourceKind    SourceKind
	SourceLocator string
	ImageTag      string
	// EnvVars maps variable names to independently encrypted,
	// base64-encoded values.
	EnvVars      map[string]string
	VolumePath   string
	VolumeName   string
	Participants []string
	CreatedAt    time.Time
}

// ContainerName derives the runtime container name for a project.
func ContainerName(prefix, project string) string {
	return fmt.Sprintf("%s-%s", prefix, project)
}

// VolumeName derives the persistent volume name for a project.
func VolumeName(prefix, project string) string {
	return fmt.Sprintf("%s-%s-data", prefix, project)
}

// ContainerState is a point-in-time view of a managed container.
type ContainerState struct {
	Running    bool
	Status     string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// MetricsSample is a single derived resource-usage observation. A zero
// usage and zero limit together mean "no data", not "idle".
type MetricsSample struct {
	CPUPercent  float64
	MemoryUsage uint64
	MemoryLimit uint64
	SampledAt   time.Time
}

// DownProject reports a project whose container is stopped.
type DownProject struct {
	Project         Project
	StoppedAt       time.Time
	DowntimeSeconds int64
}

// GlobalMetrics aggregates usage across all managed containers.
type GlobalMetrics struct {
	TotalProjects     int64
	RunningContainers int64
	CPUPercent        float64
	MemoryUsage       uint64
}
