package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and compensation decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindSource
	KindRuntime
	KindPersistence
	KindTenantDB
	KindNotFound
)

// Code is a stable machine-readable identifier carried to API consumers.
type Code string

const (
	CodeInternal          Code = "internal_error"
	CodeValidation        Code = "validation_failed"
	CodeConflict          Code = "conflict"
	CodeNotFound          Code = "not_found"
	CodePullFailed        Code = "image_pull_failed"
	CodePackageNotPublic  Code = "package_not_public"
	CodeAccountNotLinked  Code = "github_account_not_linked"
	CodeRepoNotAccessible Code = "github_repo_not_accessible"
	CodeCloneFailed       Code = "clone_failed"
	CodeBuildFailed       Code = "build_failed"
	CodeScanFailed        Code = "scan_failed"
	CodeRuntimeFailed     Code = "runtime_failed"
	CodeLostContainer     Code = "lost_container"
	CodePersistence       Code = "persistence_failed"
	CodeTenantProvision   Code = "tenant_provisioning_failed"
	CodeTenantDeprovision Code = "tenant_deprovisioning_failed"
)

// Error is the closed error type used across the orchestration pipeline.
// Report carries variant payload such as scanner output or the name of a
// rejected environment variable.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Report  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text shown to API consumers. Kinds rooted in
// security-sensitive internals collapse to a generic message; full detail
// stays in server logs.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindInternal, KindRuntime, KindPersistence:
		return "an internal error occurred"
	default:
		return e.Message
	}
}

// UserCode returns the code shown to API consumers, collapsing internal
// mechanisms the same way UserMessage does.
func (e *Error) UserCode() Code {
	switch e.Kind {
	case KindInternal, KindRuntime, KindPersistence:
		return CodeInternal
	default:
		return e.Code
	}
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the Code of err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Validation builds a zero-side-effect bad-request error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds an error for uniqueness violations detected before or
// during persistence.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent or inaccessible resource. The message is
// identical in both cases so existence is not leaked.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// Source builds a source-acquisition error with the given code.
func Source(code Code, message string, err error) *Error {
	return &Error{Kind: KindSource, Code: code, Message: message, Err: err}
}

// ScanFailed carries the scanner report for the caller to surface.
func ScanFailed(report string, err error) *Error {
	return &Error{Kind: KindSource, Code: CodeScanFailed, Message: "image scan found vulnerabilities at or above the configured severity", Report: report, Err: err}
}

// Runtime wraps a container runtime failure.
func Runtime(message string, err error) *Error {
	return &Error{Kind: KindRuntime, Code: CodeRuntimeFailed, Message: message, Err: err}
}

// LostContainer reports a container that disappeared out from under us.
func LostContainer(name string) *Error {
	return &Error{Kind: KindRuntime, Code: CodeLostContainer, Message: fmt.Sprintf("container %s no longer exists", name)}
}

// Persistence wraps a primary-store failure.
func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: CodePersistence, Message: message, Err: err}
}

// TenantDB builds a secondary-engine provisioning error.
func TenantDB(code Code, message string, err error) *Error {
	return &Error{Kind: KindTenantDB, Code: code, Message: message, Err: err}
}
