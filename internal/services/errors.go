package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSetup         = errors.New("setup error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
	ErrTimeout       = errors.New("timeout")
	ErrListing       = errors.New("listing error")
	ErrCanceled      = errors.New("canceled")
)

// ErrorKind is the stable classification recorded alongside failures in logs.
type ErrorKind string

const (
	KindSetup         ErrorKind = "setup"
	KindConfiguration ErrorKind = "configuration"
	KindExternalTool  ErrorKind = "external_tool"
	KindTimeout       ErrorKind = "timeout"
	KindListing       ErrorKind = "listing"
	KindCanceled      ErrorKind = "canceled"
	KindUnknown       ErrorKind = "unknown"
)

// ErrorDetails is the structured view of an error produced by Wrap.
type ErrorDetails struct {
	Kind      ErrorKind
	Component string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

type wrappedError struct {
	marker    error
	component string
	operation string
	message   string
	cause     error
}

func (e *wrappedError) Error() string {
	detail := buildDetail(e.component, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *wrappedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	return &wrappedError{
		marker:    marker,
		component: strings.TrimSpace(component),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

// Details extracts the structured fields from err. Errors not produced by Wrap
// still yield a kind derived from any marker they wrap.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: kindOf(err), Hint: hintFor(kindOf(err))}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		details.Component = wrapped.component
		details.Operation = wrapped.operation
		details.Message = wrapped.message
		details.Cause = wrapped.cause
	}
	if details.Message == "" {
		details.Message = err.Error()
	}
	return details
}

// IsFatal reports whether err must stop the monitor before or instead of the
// watch loop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSetup) || errors.Is(err, ErrConfiguration)
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSetup):
		return KindSetup
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrListing):
		return KindListing
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	default:
		return KindUnknown
	}
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case KindSetup:
		return "verify watch_dir, reconstruction dir and executable exist"
	case KindConfiguration:
		return "run `meltwatch config validate`"
	case KindTimeout:
		return "raise the stage timeout or inspect the stage log"
	case KindListing:
		return "check that the watched directory is mounted and readable"
	case KindExternalTool:
		return "inspect the stage log for the failing command"
	default:
		return ""
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
