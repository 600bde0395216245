// Package docker wraps the Docker SDK with the fixed container policy
// applied to every managed project.
package docker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Options fixes the resource and discovery policy for project containers.
type Options struct {
	AppPrefix           string
	DomainSuffix        string
	Network             string
	TraefikEntrypoint   string
	TraefikCertResolver string
	MemoryMB            int64
	CPUQuota            int64
}

// Client wraps the Docker SDK client.
type Client struct {
	inner  *client.Client
	opts   Options
	logger *slog.Logger

	// stats fetches a single stats reading. Injectable so the sampling
	// path can be exercised without a daemon.
	stats func(ctx context.Context, name string) (container.StatsResponseReader, error)
}

// New creates a Docker client using environment defaults. An explicit host
// overrides DOCKER_HOST.
func New(host string, opts Options, logger *slog.Logger) (*Client, error) {
	cliOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		cliOpts = append(cliOpts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(cliOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{inner: inner, opts: opts, logger: logger}
	// stream=false, not one-shot: the daemon primes precpu_stats with an
	// extra read so a single response carries a usable previous sample.
	c.stats = func(ctx context.Context, name string) (container.StatsResponseReader, error) {
		return inner.ContainerStats(ctx, name, false)
	}
	return c, nil
}

// Ping validates connectivity to the Docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return fmt.Errorf("docker client not initialized")
	}
	var ping types.Ping
	ping, err := c.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases resources held by the Docker client.
func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
