package store

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittodir/pkg/dn"
)

// StoreError represents a domain error from store operations.
//
// These are directory errors (no such entry, entry already exists, ...) as
// opposed to infrastructure errors. Infrastructure errors are wrapped in a
// StoreError with code ErrIOFailure so callers can always switch on Code.
//
// The protocol layer translates ErrorCode values to LDAP result codes.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// DN is the distinguished name the error relates to (if applicable)
	DN string

	// Err is the underlying cause, set for ErrIOFailure
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.DN != "" {
		msg += ": " + e.DN
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the target entry does not exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates an entry with the same DN (or entryUUID) exists
	ErrAlreadyExists

	// ErrNoSuchParent indicates the parent of the target DN does not exist
	ErrNoSuchParent

	// ErrNotAllowedOnNonLeaf indicates the entry still has children
	ErrNotAllowedOnNonLeaf

	// ErrIOFailure indicates a filesystem error (permission, disk full,
	// path length limits, corrupt record)
	ErrIOFailure

	// ErrInvalidArgument indicates malformed input, such as an empty DN or a
	// move of an entry beneath itself
	ErrInvalidArgument

	// ErrNotAllowedOnRDN indicates a modification would remove a naming value
	ErrNotAllowedOnRDN

	// ErrNoSuchAttribute indicates a modification deletes a missing attribute or value
	ErrNoSuchAttribute

	// ErrAttributeOrValueExists indicates a modification adds an existing value
	ErrAttributeOrValueExists

	// ErrNotSupported indicates the operation is not supported by the store variant
	ErrNotSupported
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:               "NotFound",
	ErrAlreadyExists:          "AlreadyExists",
	ErrNoSuchParent:           "NoSuchParent",
	ErrNotAllowedOnNonLeaf:    "NotAllowedOnNonLeaf",
	ErrIOFailure:              "IoFailure",
	ErrInvalidArgument:        "InvalidArgument",
	ErrNotAllowedOnRDN:        "NotAllowedOnRDN",
	ErrNoSuchAttribute:        "NoSuchAttribute",
	ErrAttributeOrValueExists: "AttributeOrValueExists",
	ErrNotSupported:           "NotSupported",
}

// String returns the error code name.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// NewError creates a StoreError for d.
func NewError(code ErrorCode, d dn.DN, message string) *StoreError {
	return &StoreError{Code: code, Message: message, DN: d.String()}
}

// NewNotFoundError creates an ErrNotFound error for d.
func NewNotFoundError(d dn.DN) *StoreError {
	return NewError(ErrNotFound, d, "no such entry")
}

// NewAlreadyExistsError creates an ErrAlreadyExists error for d.
func NewAlreadyExistsError(d dn.DN) *StoreError {
	return NewError(ErrAlreadyExists, d, "entry already exists")
}

// NewNoSuchParentError creates an ErrNoSuchParent error for the parent of d.
func NewNoSuchParentError(d dn.DN) *StoreError {
	return NewError(ErrNoSuchParent, d, "parent entry does not exist")
}

// NewOutsideSuffixError reports a DN whose ancestors are not held by the
// partition rooted at suffix. Such a parent is absent here, so the code is
// ErrNoSuchParent.
func NewOutsideSuffixError(d, suffix dn.DN) *StoreError {
	return NewError(ErrNoSuchParent, d, "entry is outside the partition suffix "+suffix.String())
}

// NewIOError wraps an infrastructure error as ErrIOFailure.
func NewIOError(d dn.DN, op string, err error) *StoreError {
	return &StoreError{
		Code:    ErrIOFailure,
		Message: op + " failed",
		DN:      d.String(),
		Err:     err,
	}
}

// IsCode reports whether err is (or wraps) a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// CodeOf returns the code of a StoreError, or ErrIOFailure for any other error.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrIOFailure
}
