package model

import "errors"

// Kind classifies failures surfaced by the serving, listing and caption layers.
type Kind string

const (
	KindInvalidPath     Kind = "invalid_path"
	KindNotFound        Kind = "not_found"
	KindIOFailure       Kind = "io_failure"
	KindNotReady        Kind = "not_ready"
	KindDialogCancelled Kind = "dialog_cancelled"
)

// Sentinels for errors.Is comparisons. A *Error matches the sentinel of its Kind.
var (
	ErrInvalidPath     = &Error{Kind: KindInvalidPath}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrIOFailure       = &Error{Kind: KindIOFailure}
	ErrNotReady        = &Error{Kind: KindNotReady}
	ErrDialogCancelled = &Error{Kind: KindDialogCancelled}
)

// Error carries a Kind plus the operation and path it happened on.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if e == nil || !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an *Error; err may be nil.
func NewError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}
