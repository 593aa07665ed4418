package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies errors for the API surface.
//
// Each kind surfaces as a distinct code in responses.
type ErrKind string

const (
	KindValidation   ErrKind = "VALIDATION"
	KindPrecondition ErrKind = "PRECONDITION"
	KindNotFound     ErrKind = "NOT_FOUND"
	KindExternal     ErrKind = "EXTERNAL"
	KindTimeout      ErrKind = "TIMEOUT"
	KindInternal     ErrKind = "INTERNAL"
)

// Error is a classified domain error.
type Error struct {
	Kind ErrKind

	// machine-readable code, e.g. "CANNOT_DEPLOY_ONGOING_EXISTS".
	Code string

	// field path for validation errors; empty otherwise.
	Field string

	Message  string
	CausedBy error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.CausedBy != nil {
		return fmt.Sprintf("%s (%s) / caused by: %v", msg, e.Code, e.CausedBy)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Code)
}

func (e *Error) Unwrap() error {
	return e.CausedBy
}

// Is matches two *Error by Code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func NewValidation(field string, message string) error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Field: field, Message: message}
}

func NewExternal(code string, message string, causedBy error) error {
	return &Error{Kind: KindExternal, Code: code, Message: message, CausedBy: causedBy}
}

func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// sentinels of the operation surface. Compare with errors.Is.
var (
	ErrCannotDeployOngoingExists = &Error{
		Kind: KindPrecondition, Code: "CANNOT_DEPLOY_ONGOING_EXISTS",
		Message: "another deployment of this environment is in progress",
	}
	ErrCannotGetRevision = &Error{
		Kind: KindExternal, Code: "CANNOT_GET_REVISION",
		Message: "cannot resolve the requested source revision",
	}
	ErrCannotDeployApp = &Error{
		Kind: KindPrecondition, Code: "CANNOT_DEPLOY_APP",
		Message: "application is not deployable",
	}
	ErrDeploymentNotFound = &Error{
		Kind: KindNotFound, Code: "DEPLOYMENT_NOT_FOUND",
		Message: "deployment not found",
	}
	ErrDeployInterrupted = &Error{
		Kind: KindPrecondition, Code: "DEPLOY_INTERRUPTED",
		Message: "deployment was interrupted",
	}
	ErrDeployInterruptionFailed = &Error{
		Kind: KindPrecondition, Code: "DEPLOY_INTERRUPTION_FAILED",
		Message: "deployment cannot be interrupted",
	}
	ErrNoAllocationPolicy = &Error{
		Kind: KindPrecondition, Code: "NO_ALLOCATION_POLICY",
		Message: "tenant has no cluster allocation policy",
	}
	ErrNoMatchingAllocationRule = &Error{
		Kind: KindPrecondition, Code: "NO_MATCHING_ALLOCATION_RULE",
		Message: "no allocation rule matches the request",
	}
	ErrProcessNotFound = &Error{
		Kind: KindNotFound, Code: "PROCESS_NOT_FOUND",
		Message: "process not found",
	}
	ErrInvalidSourceDirectory = &Error{
		Kind: KindValidation, Code: "INVALID_SOURCE_DIRECTORY",
		Message: "source directory escapes the repository root",
	}
	ErrWatchTimeout = &Error{
		Kind: KindTimeout, Code: "WATCH_TIMEOUT",
		Message: "watch closed by server-side timeout",
	}
	ErrMissing = &Error{
		Kind: KindNotFound, Code: "MISSING",
		Message: "requested entity is absent",
	}
	ErrClusterInUse = &Error{
		Kind: KindPrecondition, Code: "CLUSTER_IN_USE",
		Message: "cluster is still referenced",
	}
)
