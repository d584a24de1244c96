package reform

import (
	"fmt"

	"github.com/antgroup/gitreform/modules/command"
)

// Kind identifies which subsystem raised an error, matching the taxonomy
// a caller needs to pick remediation (retry, surface a flag hint, abort).
type Kind int

const (
	KindConfig Kind = iota + 1
	KindParse
	KindTransform
	KindPathCompat
	KindChildProcess
	KindFinalize
	KindSanity
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindParse:
		return "parse"
	case KindTransform:
		return "transform"
	case KindPathCompat:
		return "path-compat"
	case KindChildProcess:
		return "child-process"
	case KindFinalize:
		return "finalize"
	case KindSanity:
		return "sanity"
	}
	return "unknown"
}

// Error wraps an underlying cause with the kind of failure that produced
// it, plus an optional truncated snippet of the offending input.
type Error struct {
	kind    Kind
	message string
	input   string
	cause   error
}

func (e *Error) Error() string {
	if len(e.input) != 0 {
		return fmt.Sprintf("%s: %s (input: %s)", e.kind, e.message, e.input)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Kind() Kind {
	return e.kind
}

const inputTruncateAt = 120

func truncate(s string) string {
	if len(s) <= inputTruncateAt {
		return s
	}
	return s[:inputTruncateAt] + "..."
}

func newError(kind Kind, input string, cause error, format string, args ...any) *Error {
	return &Error{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
		input:   truncate(input),
		cause:   cause,
	}
}

func NewConfigError(format string, args ...any) error {
	return newError(KindConfig, "", nil, format, args...)
}

func NewParseError(input string, format string, args ...any) error {
	return newError(KindParse, input, nil, format, args...)
}

func NewTransformError(cause error, format string, args ...any) error {
	return newError(KindTransform, "", cause, format, args...)
}

func NewPathCompatError(path string, format string, args ...any) error {
	return newError(KindPathCompat, path, nil, format, args...)
}

// NewChildProcessError captures a child's exit status and bounded stderr via
// command.FromError, matching the way the rest of the tree reports exec
// failures.
func NewChildProcessError(name string, err error) error {
	return newError(KindChildProcess, "", err, "%s: %s", name, command.FromError(err))
}

func NewFinalizeError(cause error, format string, args ...any) error {
	return newError(KindFinalize, "", cause, format, args...)
}

func NewSanityError(format string, args ...any) error {
	return newError(KindSanity, "", nil, format, args...)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*Error)
	return ok && e.kind == kind
}
