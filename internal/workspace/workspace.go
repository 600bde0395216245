// Package workspace manages the scratch directories source builds run in.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Manager owns per-build working directories under a common root.
type Manager struct {
	root string
}

// New ensures the workspace root exists and is accessible.
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Prepare creates a fresh build directory for the project. The directory name
// carries a random suffix so concurrent builds of differently named projects
// never collide with leftovers.
func (m *Manager) Prepare(projectName string) (string, error) {
	if projectName == "" {
		return "", fmt.Errorf("project name cannot be empty")
	}
	dir := filepath.Join(m.root, fmt.Sprintf("%s-%s", projectName, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create build workspace: %w", err)
	}
	return dir, nil
}

// Cleanup removes a build directory. Paths outside the configured root are
// refused.
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to cleanup path outside workspace root")
	}
	return os.RemoveAll(path)
}
