package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// CreateVolume creates a named volume for a project's persistent path.
func (c *Client) CreateVolume(ctx context.Context, name string) error {
	_, err := c.inner.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: map[string]string{"app": c.opts.AppPrefix},
	})
	if err != nil {
		return fmt.Errorf("create volume %s: %w", name, err)
	}
	return nil
}

// RemoveVolume force-removes a named volume; absence is success.
func (c *Client) RemoveVolume(ctx context.Context, name string) error {
	if err := c.inner.VolumeRemove(ctx, name, true); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove volume %s: %w", name, err)
	}
	return nil
}
