// Package scanner gates freshly acquired images behind a vulnerability scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/hangar-sh/hangar/internal/apperr"
)

// runner executes the scan command and returns its combined output. Split
// out so tests can substitute the external binary.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Scanner runs grype against local images and fails deployments whose images
// carry fixable vulnerabilities at or above the configured severity.
type Scanner struct {
	failOn string
	run    runner
	logger *slog.Logger
}

// New returns a scanner that fails on fixable findings at or above
// failOnSeverity (e.g. "high").
func New(failOnSeverity string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		failOn: failOnSeverity,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		logger: logger,
	}
}

// Scan inspects the image and returns nil when it passes the gate. A failed
// gate carries the scanner's report so the caller can show the findings; an
// inability to run the scanner at all is an internal error.
func (s *Scanner) Scan(ctx context.Context, imageRef string) error {
	if strings.TrimSpace(imageRef) == "" {
		return apperr.Internal(fmt.Errorf("scan target image cannot be empty"))
	}

	output, err := s.run(ctx, "grype", imageRef, "--only-fixed", "--fail-on", s.failOn)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		report := strings.TrimSpace(string(output))
		s.logger.Warn("image failed vulnerability gate",
			"image", imageRef, "fail_on", s.failOn, "exit_code", exitErr.ExitCode())
		return apperr.ScanFailed(report, err)
	}
	return apperr.Internal(fmt.Errorf("run vulnerability scanner on %s: %w", imageRef, err))
}
