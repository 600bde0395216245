// Package validate holds the syntactic checks applied to user input before
// any side effect occurs.
package validate

import (
	"path"
	"strings"

	"github.com/hangar-sh/hangar/internal/apperr"
)

const maxProjectNameLen = 63

// shell metacharacters that must never reach an exec'd command line.
const forbiddenChars = " $`'\"\\"

// reservedEnvNames are variable names the platform refuses to override.
var reservedEnvNames = map[string]struct{}{
	"PATH":     {},
	"HOME":     {},
	"HOSTNAME": {},
	"USER":     {},
	"SHELL":    {},
}

// ProjectName checks that a name is DNS-label shaped.
func ProjectName(name string) error {
	if name == "" {
		return apperr.Validation("project name cannot be empty")
	}
	if len(name) > maxProjectNameLen {
		return apperr.Validation("project name cannot exceed %d characters", maxProjectNameLen)
	}
	for _, r := range name {
		if !isAlnum(r) && r != '-' {
			return apperr.Validation("project name can only contain letters, numbers, and hyphens")
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return apperr.Validation("project name cannot start or end with a hyphen")
	}
	return nil
}

// ImageRef checks an image reference for emptiness and shell metacharacters.
func ImageRef(ref string) error {
	if ref == "" {
		return apperr.Validation("image reference cannot be empty")
	}
	if strings.ContainsAny(ref, forbiddenChars) {
		return apperr.Validation("image reference contains invalid characters")
	}
	return nil
}

// VolumePath checks a user-supplied mount path.
func VolumePath(p string) error {
	if p == "" {
		return apperr.Validation("volume path cannot be empty")
	}
	if !strings.HasPrefix(p, "/") {
		return apperr.Validation("volume path must be absolute")
	}
	if strings.ContainsAny(p, forbiddenChars) {
		return apperr.Validation("volume path contains invalid characters")
	}
	if cleaned := path.Clean(p); cleaned != p || strings.Contains(p, "..") {
		return apperr.Validation("volume path must be a clean absolute path")
	}
	return nil
}

// EnvVarName checks a POSIX-style variable name and rejects reserved names.
// The offending variable is carried in the error payload.
func EnvVarName(name string) error {
	if name == "" {
		return apperr.Validation("environment variable name cannot be empty")
	}
	if _, reserved := reservedEnvNames[name]; reserved {
		err := apperr.Validation("environment variable %q is reserved", name)
		err.Report = name
		return err
	}
	for i, r := range name {
		if r == '_' || isAlpha(r) {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		err := apperr.Validation("environment variable %q has an invalid name", name)
		err.Report = name
		return err
	}
	return nil
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isAlnum(r rune) bool {
	return isAlpha(r) || (r >= '0' && r <= '9')
}
