package backend

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind uint8

const (
	KindCommandFailed ErrorKind = iota
	KindNotARepository
	KindDirtyWorktreeConflict
	KindNetworkFailure
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotARepository:
		return "not a repository"
	case KindDirtyWorktreeConflict:
		return "dirty worktree conflict"
	case KindNetworkFailure:
		return "network failure"
	case KindTransient:
		return "transient"
	default:
		return "command failed"
	}
}

// ErrNoRemote is wrapped by push failures when no remote is configured.
var ErrNoRemote = errors.New("no remote configured")

// Error is the typed failure every Backend call returns.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain. Errors that
// are not backend errors are reported as KindCommandFailed.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindCommandFailed
}

// IsKind reports whether err carries a backend error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}
