// Package git shells out to the git binary for shallow clones of project
// sources.
package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// ErrAccessDenied reports that the remote rejected the clone for
// authentication or authorization reasons rather than a transient failure.
var ErrAccessDenied = errors.New("git: repository access denied")

// Clone performs a shallow clone of repoURL into dest. The destination must
// already exist and be empty.
func Clone(ctx context.Context, repoURL, dest string) error {
	return clone(ctx, repoURL, dest)
}

// CloneWithToken clones a private repository by embedding an installation
// access token into the HTTPS remote URL. The token never reaches logs; on
// failure the reported URL has the credential stripped.
func CloneWithToken(ctx context.Context, repoURL, token, dest string) error {
	authenticated, err := injectToken(repoURL, token)
	if err != nil {
		return err
	}
	if err := clone(ctx, authenticated, dest); err != nil {
		return errors.New(strings.ReplaceAll(err.Error(), token, "***"))
	}
	return nil
}

func clone(ctx context.Context, repoURL, dest string) error {
	if repoURL == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}
	if dest == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, ".")
	cmd.Dir = dest
	// Never prompt for credentials; a private repository must fail fast so
	// the caller can retry with an installation token.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		if accessDenied(string(output)) {
			return fmt.Errorf("%w: %s", ErrAccessDenied, strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("git clone failed: %w: %s", err, string(output))
	}
	return nil
}

func injectToken(repoURL, token string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repository URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("token clone requires an https URL, got %q", parsed.Scheme)
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}

// accessDenied classifies git output that indicates the remote refused the
// request, as opposed to network trouble or a bad ref.
func accessDenied(output string) bool {
	lowered := strings.ToLower(output)
	for _, marker := range []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"repository not found",
		"403",
		"401",
	} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
