package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
)

// PullImage pulls an image from its registry, draining the progress stream.
// Registry 401/403 responses surface as ErrUnauthorized so the caller can
// distinguish a private package from a generic pull failure.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	rc, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		if errdefs.IsUnauthorized(err) || errdefs.IsForbidden(err) {
			return fmt.Errorf("pull image %s: %w", ref, ErrUnauthorized)
		}
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer rc.Close()

	decoder := json.NewDecoder(rc)
	for {
		var msg streamMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode pull output: %w", err)
		}
		if errMsg := msg.errorMessage(); errMsg != "" {
			if isAccessDeniedMessage(errMsg) {
				return fmt.Errorf("pull image %s: %s: %w", ref, errMsg, ErrUnauthorized)
			}
			return fmt.Errorf("pull image %s: %s", ref, errMsg)
		}
		if msg.Status != "" {
			c.logger.Debug("image pull progress", "image", ref, "status", msg.Status)
		}
	}
	return nil
}

// RemoveImage force-removes an image; absence is success.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	if _, err := c.inner.ImageRemove(ctx, ref, image.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

// BuildImage creates an image from the provided directory using its
// Dockerfile, tagging the result.
func (c *Client) BuildImage(ctx context.Context, dir, tag string) error {
	if dir == "" {
		return fmt.Errorf("build directory cannot be empty")
	}
	if tag == "" {
		return fmt.Errorf("image tag cannot be empty")
	}
	buildCtx, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildCtx.Close()

	opts := types.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	}
	resp, err := c.inner.ImageBuild(ctx, buildCtx, opts)
	if err != nil {
		return fmt.Errorf("docker image build: %w", err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var msg streamMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode build output: %w", err)
		}
		if errMsg := msg.errorMessage(); errMsg != "" {
			return fmt.Errorf("docker image build: %s", errMsg)
		}
		if line := strings.TrimSpace(msg.Stream); line != "" {
			c.logger.Debug("image build output", "tag", tag, "line", line)
		}
	}
	return nil
}

// streamMessage is the JSON envelope emitted by the daemon's pull and build
// progress streams.
type streamMessage struct {
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

func (m streamMessage) errorMessage() string {
	if strings.TrimSpace(m.Error) != "" {
		return strings.TrimSpace(m.Error)
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}

func isAccessDeniedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "denied") ||
		strings.Contains(lower, "401") ||
		strings.Contains(lower, "403")
}
