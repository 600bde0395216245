package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hangar-sh/hangar/internal/apperr"
	"github.com/hangar-sh/hangar/internal/docker"
	"github.com/hangar-sh/hangar/internal/domain"
	"github.com/hangar-sh/hangar/internal/git"
)

type fakeRuntime struct {
	pullErr   error
	buildErr  error
	removeErr error

	pulled  []string
	built   []string
	removed chan string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{removed: make(chan string, 4)}
}

func (f *fakeRuntime) PullImage(_ context.Context, ref string) error {
	f.pulled = append(f.pulled, ref)
	return f.pullErr
}

func (f *fakeRuntime) BuildImage(_ context.Context, _, tag string) error {
	f.built = append(f.built, tag)
	return f.buildErr
}

func (f *fakeRuntime) RemoveImage(_ context.Context, ref string) error {
	f.removed <- ref
	return f.removeErr
}

func (f *fakeRuntime) awaitRemoval(t *testing.T) string {
	t.Helper()
	select {
	case ref := <-f.removed:
		return ref
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for image removal")
		return ""
	}
}

type fakeScanner struct {
	err     error
	scanned []string
}

func (f *fakeScanner) Scan(_ context.Context, imageRef string) error {
	f.scanned = append(f.scanned, imageRef)
	return f.err
}

type fakeApp struct {
	installationErr error
	tokenErr        error
	accessErr       error
}

func (f *fakeApp) FindInstallation(context.Context, string) (int64, error) {
	if f.installationErr != nil {
		return 0, f.installationErr
	}
	return 9, nil
}

func (f *fakeApp) InstallationToken(context.Context, int64) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "ghs_minted", nil
}

func (f *fakeApp) CheckRepoAccess(context.Context, string, string, string) error {
	return f.accessErr
}

type fakeWorkspaces struct {
	root     string
	counter  int
	cleaned  []string
	prepared []string
}

func (f *fakeWorkspaces) Prepare(projectName string) (string, error) {
	f.counter++
	dir := filepath.Join(f.root, fmt.Sprintf("%s-%d", projectName, f.counter))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f.prepared = append(f.prepared, dir)
	return dir, nil
}

func (f *fakeWorkspaces) Cleanup(path string) error {
	f.cleaned = append(f.cleaned, path)
	return os.RemoveAll(path)
}

type fixture struct {
	resolver   *Resolver
	runtime    *fakeRuntime
	scanner    *fakeScanner
	app        *fakeApp
	workspaces *fakeWorkspaces
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		runtime:    newFakeRuntime(),
		scanner:    &fakeScanner{},
		app:        &fakeApp{},
		workspaces: &fakeWorkspaces{root: t.TempDir()},
	}
	f.resolver = New(f.runtime, f.scanner, f.app, f.workspaces, Options{
		BaseImage:      "hangar-base:bookworm",
		LocalNamespace: "hangar-local",
	}, slog.Default())
	f.resolver.clone = func(context.Context, string, string) error { return nil }
	f.resolver.cloneWithToken = func(context.Context, string, string, string) error { return nil }
	return f
}

func TestResolveDirectPullsAndScans(t *testing.T) {
	f := newFixture(t)

	resolved, err := f.resolver.Resolve(context.Background(), domain.SourceDirect, "nginx:1.27", "blog", "/srv/data")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.ImageTag != "nginx:1.27" {
		t.Fatalf("image tag = %q", resolved.ImageTag)
	}
	if resolved.VolumePath != "/srv/data" {
		t.Fatalf("volume path = %q", resolved.VolumePath)
	}
	if len(f.runtime.pulled) != 1 || len(f.scanner.scanned) != 1 {
		t.Fatalf("pulled %v, scanned %v", f.runtime.pulled, f.scanner.scanned)
	}
}

func TestResolveDirectRejectsBadReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Resolve(context.Background(), domain.SourceDirect, "nginx; rm -rf /", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("code = %v, want validation", apperr.CodeOf(err))
	}
	if len(f.runtime.pulled) != 0 {
		t.Fatal("pull must not run for an invalid reference")
	}
}

func TestResolveDirectPrivateGhcrPackage(t *testing.T) {
	f := newFixture(t)
	f.runtime.pullErr = fmt.Errorf("pull image: %w", docker.ErrUnauthorized)

	_, err := f.resolver.Resolve(context.Background(), domain.SourceDirect, "ghcr.io/acme/blog:latest", "blog", "")
	if apperr.CodeOf(err) != apperr.CodePackageNotPublic {
		t.Fatalf("code = %v, want package-not-public", apperr.CodeOf(err))
	}
}

func TestResolveDirectUnauthorizedElsewhereIsPullFailed(t *testing.T) {
	f := newFixture(t)
	f.runtime.pullErr = fmt.Errorf("pull image: %w", docker.ErrUnauthorized)

	_, err := f.resolver.Resolve(context.Background(), domain.SourceDirect, "registry.example.com/blog:latest", "blog", "")
	if apperr.CodeOf(err) != apperr.CodePullFailed {
		t.Fatalf("code = %v, want pull-failed", apperr.CodeOf(err))
	}
}

func TestResolveDirectScanFailureRemovesImage(t *testing.T) {
	f := newFixture(t)
	f.scanner.err = apperr.ScanFailed("zlib High", errors.New("exit status 1"))

	_, err := f.resolver.Resolve(context.Background(), domain.SourceDirect, "nginx:1.27", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeScanFailed {
		t.Fatalf("code = %v, want scan-failed", apperr.CodeOf(err))
	}
	if removed := f.runtime.awaitRemoval(t); removed != "nginx:1.27" {
		t.Fatalf("removed %q, want nginx:1.27", removed)
	}
}

func TestResolveGithubAnonymousClone(t *testing.T) {
	f := newFixture(t)

	resolved, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.ImageTag != "hangar-local/blog:latest" {
		t.Fatalf("image tag = %q", resolved.ImageTag)
	}
	if resolved.VolumePath != "/app/data" {
		t.Fatalf("volume path = %q, want /app/data", resolved.VolumePath)
	}
	if len(f.runtime.built) != 1 {
		t.Fatalf("built = %v", f.runtime.built)
	}
	// The build workspace is always cleaned up.
	if len(f.workspaces.cleaned) != 1 {
		t.Fatalf("cleaned = %v", f.workspaces.cleaned)
	}
}

func TestResolveGithubSynthesizesDockerfile(t *testing.T) {
	f := newFixture(t)

	var dockerfile []byte
	f.resolver.clone = func(_ context.Context, _, dest string) error {
		return os.WriteFile(filepath.Join(dest, "main.py"), []byte("print('hi')\n"), 0o644)
	}
	realBuild := f.runtime.BuildImage
	buildDir := ""
	f.resolver.runtime = runtimeFunc{
		pull: f.runtime.PullImage,
		build: func(ctx context.Context, dir, tag string) error {
			buildDir = dir
			dockerfile, _ = os.ReadFile(filepath.Join(dir, "Dockerfile"))
			return realBuild(ctx, dir, tag)
		},
		remove: f.runtime.RemoveImage,
	}

	if _, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if buildDir == "" {
		t.Fatal("build never ran")
	}
	want := "FROM hangar-base:bookworm\nCOPY . /app\nWORKDIR /app\n"
	if string(dockerfile) != want {
		t.Fatalf("Dockerfile = %q, want %q", dockerfile, want)
	}
}

func TestResolveGithubKeepsExistingDockerfile(t *testing.T) {
	f := newFixture(t)

	own := "FROM scratch\n"
	var dockerfile []byte
	f.resolver.clone = func(_ context.Context, _, dest string) error {
		return os.WriteFile(filepath.Join(dest, "Dockerfile"), []byte(own), 0o644)
	}
	realBuild := f.runtime.BuildImage
	f.resolver.runtime = runtimeFunc{
		pull: f.runtime.PullImage,
		build: func(ctx context.Context, dir, tag string) error {
			dockerfile, _ = os.ReadFile(filepath.Join(dir, "Dockerfile"))
			return realBuild(ctx, dir, tag)
		},
		remove: f.runtime.RemoveImage,
	}

	if _, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(dockerfile) != own {
		t.Fatalf("Dockerfile = %q, repository's own file must win", dockerfile)
	}
}

func TestResolveGithubFallsBackToAppAuth(t *testing.T) {
	f := newFixture(t)

	var tokenCloneCalls int
	f.resolver.clone = func(context.Context, string, string) error {
		return fmt.Errorf("%w: authentication failed", git.ErrAccessDenied)
	}
	f.resolver.cloneWithToken = func(_ context.Context, _, token, _ string) error {
		tokenCloneCalls++
		if token != "ghs_minted" {
			t.Fatalf("token = %q", token)
		}
		return nil
	}

	if _, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tokenCloneCalls != 1 {
		t.Fatalf("token clone calls = %d, want 1", tokenCloneCalls)
	}
}

func TestResolveGithubAccountNotLinked(t *testing.T) {
	f := newFixture(t)
	f.resolver.clone = func(context.Context, string, string) error {
		return fmt.Errorf("%w: could not read username", git.ErrAccessDenied)
	}
	f.app.installationErr = apperr.Source(apperr.CodeAccountNotLinked, "not installed", nil)

	_, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeAccountNotLinked {
		t.Fatalf("code = %v, want account-not-linked", apperr.CodeOf(err))
	}
	if len(f.runtime.built) != 0 {
		t.Fatal("build must not run when the account is not linked")
	}
}

func TestResolveGithubRepoNotAccessible(t *testing.T) {
	f := newFixture(t)
	f.resolver.clone = func(context.Context, string, string) error {
		return fmt.Errorf("%w: repository not found", git.ErrAccessDenied)
	}
	f.app.accessErr = apperr.Source(apperr.CodeRepoNotAccessible, "not visible", nil)

	_, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeRepoNotAccessible {
		t.Fatalf("code = %v, want repo-not-accessible", apperr.CodeOf(err))
	}
}

func TestResolveGithubTransientCloneFailure(t *testing.T) {
	f := newFixture(t)
	f.resolver.clone = func(context.Context, string, string) error {
		return errors.New("git clone failed: could not resolve host")
	}

	_, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeCloneFailed {
		t.Fatalf("code = %v, want clone-failed", apperr.CodeOf(err))
	}
}

func TestResolveGithubBuildFailure(t *testing.T) {
	f := newFixture(t)
	f.runtime.buildErr = errors.New("image build: step 2 failed")

	_, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeBuildFailed {
		t.Fatalf("code = %v, want build-failed", apperr.CodeOf(err))
	}
}

func TestResolveGithubScanFailureRemovesBuiltImage(t *testing.T) {
	f := newFixture(t)
	f.scanner.err = apperr.ScanFailed("openssl Critical", errors.New("exit status 1"))

	_, err := f.resolver.Resolve(context.Background(), domain.SourceGithub,
		"https://github.com/acmecorp/blog", "blog", "")
	if apperr.CodeOf(err) != apperr.CodeScanFailed {
		t.Fatalf("code = %v, want scan-failed", apperr.CodeOf(err))
	}
	if removed := f.runtime.awaitRemoval(t); removed != "hangar-local/blog:latest" {
		t.Fatalf("removed %q, want the built image", removed)
	}
}

// runtimeFunc adapts closures to the Runtime interface for tests that need to
// observe the build context.
type runtimeFunc struct {
	pull   func(ctx context.Context, ref string) error
	build  func(ctx context.Context, dir, tag string) error
	remove func(ctx context.Context, ref string) error
}

func (r runtimeFunc) PullImage(ctx context.Context, ref string) error    { return r.pull(ctx, ref) }
func (r runtimeFunc) BuildImage(ctx context.Context, dir, tag string) error {
	return r.build(ctx, dir, tag)
}
func (r runtimeFunc) RemoveImage(ctx context.Context, ref string) error { return r.remove(ctx, ref) }
