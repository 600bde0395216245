// Package source turns a deployment request's source reference into a local,
// scanned image ready to run.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hangar-sh/hangar/internal/apperr"
	"github.com/hangar-sh/hangar/internal/docker"
	"github.com/hangar-sh/hangar/internal/domain"
	"github.com/hangar-sh/hangar/internal/git"
	"github.com/hangar-sh/hangar/internal/github"
	"github.com/hangar-sh/hangar/internal/validate"
)

// githubVolumePath is where built-from-source projects keep persistent data.
const githubVolumePath = "/app/data"

// Runtime is the slice of the container runtime the resolver needs.
type Runtime interface {
	PullImage(ctx context.Context, ref string) error
	BuildImage(ctx context.Context, dir, tag string) error
	RemoveImage(ctx context.Context, ref string) error
}

// Scanner gates images on vulnerability findings.
type Scanner interface {
	Scan(ctx context.Context, imageRef string) error
}

// AppClient is the slice of the GitHub App client the resolver needs.
type AppClient interface {
	FindInstallation(ctx context.Context, owner string) (int64, error)
	InstallationToken(ctx context.Context, installationID int64) (string, error)
	CheckRepoAccess(ctx context.Context, token, owner, repo string) error
}

// Workspaces provisions scratch directories for clones and builds.
type Workspaces interface {
	Prepare(projectName string) (string, error)
	Cleanup(path string) error
}

type cloneFunc func(ctx context.Context, repoURL, dest string) error
type tokenCloneFunc func(ctx context.Context, repoURL, token, dest string) error

// Resolved is the outcome of source acquisition: a locally present, scanned
// image plus the volume mount path the project should use.
type Resolved struct {
	ImageTag   string
	VolumePath string
}

// Options fixes the build parameters for GitHub-sourced projects.
type Options struct {
	// BaseImage is the image source trees are layered onto when the
	// repository ships no Dockerfile.
	BaseImage string
	// LocalNamespace prefixes locally built image tags.
	LocalNamespace string
}

// Resolver acquires sources. Safe for concurrent use.
type Resolver struct {
	runtime    Runtime
	scanner    Scanner
	app        AppClient
	workspaces Workspaces
	opts       Options
	logger     *slog.Logger

	clone          cloneFunc
	cloneWithToken tokenCloneFunc
}

// New builds a resolver over the given collaborators.
func New(runtime Runtime, scanner Scanner, app AppClient, workspaces Workspaces, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		runtime:        runtime,
		scanner:        scanner,
		app:            app,
		workspaces:     workspaces,
		opts:           opts,
		logger:         logger,
		clone:          git.Clone,
		cloneWithToken: git.CloneWithToken,
	}
}

// Resolve acquires the source named by kind and locator and returns the image
// to run. volumePath is honored for direct sources only; built sources use a
// fixed path inside the image.
func (r *Resolver) Resolve(ctx context.Context, kind domain.SourceKind, locator, projectName, volumePath string) (Resolved, error) {
	switch kind {
	case domain.SourceDirect:
		return r.resolveDirect(ctx, locator, volumePath)
	case domain.SourceGithub:
		return r.resolveGithub(ctx, locator, projectName)
	default:
		return Resolved{}, apperr.Validation("unknown source kind %q", kind)
	}
}

func (r *Resolver) resolveDirect(ctx context.Context, imageRef, volumePath string) (Resolved, error) {
	if err := validate.ImageRef(imageRef); err != nil {
		return Resolved{}, err
	}

	if err := r.runtime.PullImage(ctx, imageRef); err != nil {
		if errors.Is(err, docker.ErrUnauthorized) && strings.HasPrefix(imageRef, "ghcr.io/") {
			return Resolved{}, apperr.Source(apperr.CodePackageNotPublic,
				fmt.Sprintf("package %s is not public", imageRef), err)
		}
		return Resolved{}, apperr.Source(apperr.CodePullFailed,
			fmt.Sprintf("could not pull image %s", imageRef), err)
	}

	if err := r.scanner.Scan(ctx, imageRef); err != nil {
		r.discardImage(imageRef)
		return Resolved{}, err
	}
	return Resolved{ImageTag: imageRef, VolumePath: volumePath}, nil
}

func (r *Resolver) resolveGithub(ctx context.Context, repoURL, projectName string) (Resolved, error) {
	owner, repo, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return Resolved{}, err
	}

	dir, err := r.cloneSource(ctx, repoURL, owner, repo, projectName)
	if err != nil {
		return Resolved{}, err
	}
	defer func() {
		if cleanupErr := r.workspaces.Cleanup(dir); cleanupErr != nil {
			r.logger.Error("could not clean up build workspace", "path", dir, "error", cleanupErr)
		}
	}()

	if err := r.ensureDockerfile(dir); err != nil {
		return Resolved{}, apperr.Internal(err)
	}

	tag := fmt.Sprintf("%s/%s:latest", r.opts.LocalNamespace, projectName)
	if err := r.runtime.BuildImage(ctx, dir, tag); err != nil {
		return Resolved{}, apperr.Source(apperr.CodeBuildFailed,
			fmt.Sprintf("could not build image for %s/%s", owner, repo), err)
	}

	if err := r.scanner.Scan(ctx, tag); err != nil {
		r.discardImage(tag)
		return Resolved{}, err
	}
	return Resolved{ImageTag: tag, VolumePath: githubVolumePath}, nil
}

// cloneSource tries an anonymous shallow clone first and falls back to the
// GitHub App installation flow when the remote refuses access.
func (r *Resolver) cloneSource(ctx context.Context, repoURL, owner, repo, projectName string) (string, error) {
	dir, err := r.workspaces.Prepare(projectName)
	if err != nil {
		return "", apperr.Internal(err)
	}

	cloneErr := r.clone(ctx, repoURL, dir)
	if cloneErr == nil {
		return dir, nil
	}
	if cleanupErr := r.workspaces.Cleanup(dir); cleanupErr != nil {
		r.logger.Error("could not clean up failed clone workspace", "path", dir, "error", cleanupErr)
	}
	if !errors.Is(cloneErr, git.ErrAccessDenied) {
		return "", apperr.Source(apperr.CodeCloneFailed,
			fmt.Sprintf("could not clone %s/%s", owner, repo), cloneErr)
	}
	if r.app == nil {
		return "", apperr.Source(apperr.CodeCloneFailed,
			fmt.Sprintf("%s/%s requires authentication and no app credentials are configured", owner, repo), cloneErr)
	}

	installationID, err := r.app.FindInstallation(ctx, owner)
	if err != nil {
		return "", err
	}
	token, err := r.app.InstallationToken(ctx, installationID)
	if err != nil {
		return "", err
	}
	if err := r.app.CheckRepoAccess(ctx, token, owner, repo); err != nil {
		return "", err
	}

	dir, err = r.workspaces.Prepare(projectName)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if err := r.cloneWithToken(ctx, repoURL, token, dir); err != nil {
		if cleanupErr := r.workspaces.Cleanup(dir); cleanupErr != nil {
			r.logger.Error("could not clean up failed clone workspace", "path", dir, "error", cleanupErr)
		}
		return "", apperr.Source(apperr.CodeCloneFailed,
			fmt.Sprintf("could not clone %s/%s with installation credentials", owner, repo), err)
	}
	return dir, nil
}

// ensureDockerfile writes the standard build recipe when the repository does
// not ship its own Dockerfile.
func (r *Resolver) ensureDockerfile(dir string) error {
	path := filepath.Join(dir, "Dockerfile")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("check for Dockerfile: %w", err)
	}

	dockerfile := fmt.Sprintf("FROM %s\nCOPY . /app\nWORKDIR /app\n", r.opts.BaseImage)
	if err := os.WriteFile(path, []byte(dockerfile), 0o644); err != nil {
		return fmt.Errorf("write synthesized Dockerfile: %w", err)
	}
	return nil
}

// discardImage removes an image that failed the scan gate without blocking
// the caller. Failure leaves the image behind and is only logged.
func (r *Resolver) discardImage(imageRef string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.runtime.RemoveImage(ctx, imageRef); err != nil {
			r.logger.Error("could not remove image after failed scan", "image", imageRef, "error", err)
		}
	}()
}
