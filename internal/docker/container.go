package docker

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"github.com/hangar-sh/hangar/internal/domain"
)

// appPort is the fixed internal port reverse-proxy traffic is routed to.
const appPort = nat.Port("80/tcp")

// ContainerSpec describes a project container to create.
type ContainerSpec struct {
	Name        string
	ProjectName string
	Image       string
	// Env holds decrypted KEY=VALUE pairs.
	Env        []string
	VolumeName string
	VolumePath string
}

// CreateProjectContainer creates and starts a container under the fixed
// hardening policy. A start failure triggers a detached best-effort removal
// of the just-created container; its own failure is only logged.
func (c *Client) CreateProjectContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(spec.Image) == "" {
		return "", fmt.Errorf("image name cannot be empty")
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       c.discoveryLabels(spec.ProjectName),
		ExposedPorts: map[nat.Port]struct{}{appPort: {}},
	}

	hostCfg := c.hardenedHostConfig()
	if spec.VolumeName != "" && spec.VolumePath != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: spec.VolumeName,
			Target: spec.VolumePath,
		})
	}

	var netCfg *network.NetworkingConfig
	if c.opts.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{c.opts.Network: {}},
		}
	}

	created, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := c.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		name := spec.Name
		go func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if removeErr := c.RemoveContainer(cleanupCtx, name); removeErr != nil {
				c.logger.Error("rollback failed: could not remove container after start failure",
					"container", name, "error", removeErr)
			} else {
				c.logger.Info("rolled back container after start failure", "container", name)
			}
		}()
		return "", fmt.Errorf("container start: %w", err)
	}
	return created.ID, nil
}

// StartContainer starts a stopped container. An absent container maps to
// ErrNotFound so the caller can surface a lost-container condition.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	if err := c.inner.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("container start: %w", err)
	}
	return nil
}

// StopContainer stops a running container; absent or already stopped is
// treated as success.
func (c *Client) StopContainer(ctx context.Context, name string) error {
	if err := c.inner.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

// RestartContainer restarts a container, mapping absence to ErrNotFound.
func (c *Client) RestartContainer(ctx context.Context, name string) error {
	if err := c.inner.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("container restart: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container; absence is success.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if err := c.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// InspectContainer returns the container state, or nil when the container
// does not exist.
func (c *Client) InspectContainer(ctx context.Context, name string) (*domain.ContainerState, error) {
	info, err := c.inner.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("container inspect: %w", err)
	}
	state := &domain.ContainerState{}
	if info.State != nil {
		state.Running = info.State.Running
		state.Status = info.State.Status
		state.ExitCode = info.State.ExitCode
		state.StartedAt = parseDockerTime(info.State.StartedAt)
		state.FinishedAt = parseDockerTime(info.State.FinishedAt)
	}
	return state, nil
}

// ContainerLogs returns up to tail lines of combined stdout/stderr output.
func (c *Client) ContainerLogs(ctx context.Context, name string, tail int) (string, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	rc, err := c.inner.ContainerLogs(ctx, name, opts)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("container logs: %w", err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", fmt.Errorf("demultiplex container logs: %w", err)
	}
	if stderr.Len() == 0 {
		return stdout.String(), nil
	}
	return stdout.String() + stderr.String(), nil
}

// hardenedHostConfig is the non-negotiable policy applied to every project.
func (c *Client) hardenedHostConfig() *container.HostConfig {
	pidsLimit := int64(256)
	swappiness := int64(0)
	oomKillDisable := false
	return &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		SecurityOpt: []string{
			"no-new-privileges:true",
			"apparmor:docker-default",
		},
		ReadonlyRootfs: false,
		Privileged:     false,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
		Resources: container.Resources{
			Memory:           c.opts.MemoryMB * 1024 * 1024,
			CPUQuota:         c.opts.CPUQuota,
			PidsLimit:        &pidsLimit,
			OomKillDisable:   &oomKillDisable,
			MemorySwappiness: &swappiness,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 2048},
				{Name: "nproc", Soft: 64, Hard: 128},
			},
		},
	}
}

// discoveryLabels derives the reverse-proxy routing labels for a project.
func (c *Client) discoveryLabels(projectName string) map[string]string {
	hostname := fmt.Sprintf("%s.%s", projectName, c.opts.DomainSuffix)
	return map[string]string{
		"app":            c.opts.AppPrefix,
		"traefik.enable": "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", projectName):                      fmt.Sprintf("Host(`%s`)", hostname),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", projectName):               c.opts.TraefikEntrypoint,
		fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", projectName):          c.opts.TraefikCertResolver,
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", projectName): appPort.Port(),
	}
}

func parseDockerTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
