package recordstore

import (
	"errors"
	"fmt"
)

// Kind classifies a failed store operation.
type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindMissingIdentifier Kind = "missing-identifier"
	KindNotFound          Kind = "not-found"
	KindUnavailable       Kind = "unavailable"
	KindInvalidRecord     Kind = "invalid-record"
)

// Sentinels for errors.Is checks against an *Error of the same kind.
var (
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrMissingIdentifier = &Error{Kind: KindMissingIdentifier}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
	ErrInvalidRecord     = &Error{Kind: KindInvalidRecord}
)

// Error is the single error value returned by store operations.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindUnavailable for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// wrap annotates err with op and path, mapping foreign errors to KindUnavailable.
func wrap(op string, p Path, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.Path == "" && len(p) > 0 {
			out.Path = p.String()
		}
		return &out
	}
	return &Error{Kind: KindUnavailable, Op: op, Path: p.String(), Err: err}
}
