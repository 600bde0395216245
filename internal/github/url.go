package github

import (
	"net/url"
	"strings"

	"github.com/hangar-sh/hangar/internal/apperr"
)

// reservedOwners are top-level github.com paths that can never be user or
// organization accounts.
var reservedOwners = map[string]struct{}{
	"about":       {},
	"apps":        {},
	"collections": {},
	"features":    {},
	"marketplace": {},
	"orgs":        {},
	"pricing":     {},
	"settings":    {},
	"sponsors":    {},
	"topics":      {},
}

// ParseRepoURL extracts owner and repository name from a github.com URL.
// A trailing ".git" is accepted and stripped.
func ParseRepoURL(rawURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", "", apperr.Validation("repository URL cannot be empty")
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return "", "", apperr.Validation("repository URL is not a valid URL")
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", "", apperr.Validation("repository URL must use http or https")
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", apperr.Validation("repository URL must point at github.com")
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", "", apperr.Validation("repository URL must contain owner and repository")
	}
	owner = segments[0]
	repo = strings.TrimSuffix(segments[1], ".git")
	if owner == "" || repo == "" {
		return "", "", apperr.Validation("repository URL must contain owner and repository")
	}
	if _, reserved := reservedOwners[strings.ToLower(owner)]; reserved {
		return "", "", apperr.Validation("%s is not a github account", owner)
	}
	return owner, repo, nil
}
