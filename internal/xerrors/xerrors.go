// Package xerrors defines the typed failures surfaced by the transfer engine.
//
// Every failure carries a Kind so callers can branch on the category
// (errors.Is against the Err* sentinels, or KindOf) without parsing messages.
package xerrors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind classifies sfs errors.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindSourceIO
	KindTransport
	KindAuthentication
	KindTruncatedStream
	KindUnsupportedCombination
	KindPartialBatchFailure
	KindStreamState
	KindNotFound
	KindConflict
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrSourceIO               = &Error{Kind: KindSourceIO}
	ErrTransport              = &Error{Kind: KindTransport}
	ErrAuthentication         = &Error{Kind: KindAuthentication}
	ErrTruncatedStream        = &Error{Kind: KindTruncatedStream}
	ErrUnsupportedCombination = &Error{Kind: KindUnsupportedCombination}
	ErrPartialBatchFailure    = &Error{Kind: KindPartialBatchFailure}
	ErrStreamState            = &Error{Kind: KindStreamState}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrInvalid                = &Error{Kind: KindInvalid}
)

// Error wraps an underlying error with additional metadata.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Kind.String()
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	if e.Path != "" {
		base += " " + e.Path
	}
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Path != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid argument"
	case KindSourceIO:
		return "source read failed"
	case KindTransport:
		return "transport failed"
	case KindAuthentication:
		return "authentication failed (wrong password or corrupted data)"
	case KindTruncatedStream:
		return "stream truncated before final chunk"
	case KindUnsupportedCombination:
		return "unsupported combination"
	case KindPartialBatchFailure:
		return "one or more parts failed"
	case KindStreamState:
		return "stream already finished"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "already exists"
	default:
		return "internal error"
	}
}

// Wrap annotates err with the given metadata. If err is nil, Wrap returns nil.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// E creates a new error with the provided metadata (no underlying error).
func E(kind Kind, op, path string) error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Errorf creates an error of the given kind with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err. The outermost classified error wins, so
// a batch failure is reported as such even though its parts carry their own
// kinds.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case *BatchError:
			return KindPartialBatchFailure
		}
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrExist):
		return KindConflict
	case errors.Is(err, fs.ErrInvalid):
		return KindInvalid
	default:
		return KindInternal
	}
}

// PartFailure is the failure of a single part of a multipart transfer.
type PartFailure struct {
	PartNumber int
	Err        error
}

func (f *PartFailure) Error() string {
	return fmt.Sprintf("part %d: %v", f.PartNumber, f.Err)
}

func (f *PartFailure) Unwrap() error { return f.Err }

// BatchError aggregates every failure of one concurrent batch.
type BatchError struct {
	Batch    int
	Failures []*PartFailure
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("batch %d: %d part(s) failed: %s", e.Batch, len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every part failure to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Is matches ErrPartialBatchFailure.
func (e *BatchError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t == ErrPartialBatchFailure
}

// PartNumbers returns the numbers of the failed parts in failure order.
func (e *BatchError) PartNumbers() []int {
	nums := make([]int, 0, len(e.Failures))
	for _, f := range e.Failures {
		nums = append(nums, f.PartNumber)
	}
	return nums
}
