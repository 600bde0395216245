package docker

import "errors"

// ErrNotFound indicates the requested Docker resource was not found.
var ErrNotFound = errors.New("docker: resource not found")

// ErrUnauthorized indicates the registry refused access to an image.
var ErrUnauthorized = errors.New("docker: registry access denied")
