// Package apperr defines the closed error taxonomy shared by the ledger,
// stats and consolidation services. Callers branch on Kind rather than on
// error strings.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	// KindNotFound means the referenced owner, entry or consolidation is absent.
	KindNotFound Kind = iota + 1
	// KindConflict means a concurrent writer won (latest flip race) or an
	// entry was already reconciled.
	KindConflict
	// KindValidation means the request violates an invariant (empty delta,
	// summary mismatch, delete on an immutable chain).
	KindValidation
	// KindDataQuality marks non-fatal data issues such as unknown operation codes.
	KindDataQuality
	// KindUpstream means a backing store or provider is unavailable.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindDataQuality:
		return "data_quality"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

// Error carries the kind plus enough structure (operation, offending key) for
// the caller to decide whether a retry makes sense.
type Error struct {
	Kind Kind
	Op   string // e.g. "consolidation.append"
	Key  string // offending id, if any
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (%s %s)", e.Op, msg, e.Kind, e.Key)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error without a wrapped cause.
func New(kind Kind, op, key, msg string) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, op, key, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches taxonomy to an underlying error.
func Wrap(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// KindOf extracts the Kind from err, or 0 if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsUpstream(err error) bool   { return KindOf(err) == KindUpstream }
