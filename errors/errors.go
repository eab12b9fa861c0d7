package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies a failure for the agent's retry policy.
type Kind int

const (
	KindUnknown Kind = iota
	// KindProvider is fatal: missing or invalid credential, invalid
	// configuration, unreachable bridge at startup.
	KindProvider
	// KindNetwork is a transport failure or timeout on a decision request.
	KindNetwork
	// KindProtocol is a non-success status or an unusable envelope from a
	// provider's transport layer.
	KindProtocol
	// KindParse means no decision could be read from the provider text.
	KindParse
	// KindExecution means the executor is unavailable or rejected the action.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindProvider:
		return "provider"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindParse:
		return "parse"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error carries a Kind, the call site that created it and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	location string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.location, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.location, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return &Error{Message: fmt.Sprintf(format, a...), location: caller(2)}
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil. The kind of err, if any,
// is preserved.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Message: fmt.Sprintf(format, a...), Err: err, location: caller(2)}
}

// Sentinel returns a comparable error without call-site information, for
// package-level error values.
func Sentinel(msg string) error { return stderrors.New(msg) }

// E creates a kinded error.
func E(kind Kind, format string, a ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), location: caller(2)}
}

// Wrap wraps err with a kind. Unlike Wrapf, the new kind replaces any kind
// err already carries. A nil err yields nil.
func Wrap(kind Kind, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), Err: err, location: caller(2)}
}

// KindOf returns the outermost kind found in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Is and As forward to the standard library so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
